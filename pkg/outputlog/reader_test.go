package outputlog

import (
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReader_Next(t *testing.T) {
	input := "daemon 2025-01-07T12:34:56.789000000Z 12: Hello world\n\n"

	chunk, err := NewReader(strings.NewReader(input)).Next()
	require.NoError(t, err)
	require.Equal(t, "daemon", chunk.Stream)
	require.Equal(t, time.Date(2025, 1, 7, 12, 34, 56, 789000000, time.UTC), chunk.Timestamp)
	require.Equal(t, "Hello world\n", string(chunk.Data))
}

func TestReader_ContentWithEmbeddedSeparators(t *testing.T) {
	input := "check 2025-01-07T12:00:00.000000000Z 10: a: b 1: c\n\n"

	chunk, err := NewReader(strings.NewReader(input)).Next()
	require.NoError(t, err)
	require.Equal(t, "a: b 1: c\n", string(chunk.Data))
}

func TestReader_EOF(t *testing.T) {
	_, err := NewReader(strings.NewReader("")).Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReader_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "truncated stream", input: "daemon", want: "reading stream"},
		{name: "invalid stream", input: "bad:name 2025-01-07T12:00:00.000000000Z 1: x\n", want: "invalid stream name"},
		{name: "invalid timestamp", input: "daemon yesterday 1: x\n", want: "parsing timestamp"},
		{name: "invalid length", input: "daemon 2025-01-07T12:00:00.000000000Z abc: x\n", want: "parsing length"},
		{name: "negative length", input: "daemon 2025-01-07T12:00:00.000000000Z -1: x\n", want: "parsing length"},
		{name: "missing space", input: "daemon 2025-01-07T12:00:00.000000000Z 1:x\n", want: "expected space"},
		{name: "short content", input: "daemon 2025-01-07T12:00:00.000000000Z 10: x\n", want: "reading content"},
		{name: "missing separator", input: "daemon 2025-01-07T12:00:00.000000000Z 1: xy", want: "expected newline"},
		{name: "truncated separator", input: "daemon 2025-01-07T12:00:00.000000000Z 1: x", want: "reading separator"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(strings.NewReader(tt.input)).Next()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestReader_HugeLengthWithShortContent(t *testing.T) {
	input := "daemon 2025-01-07T12:00:00.000000000Z 999999999999: x\n"

	_, err := NewReader(strings.NewReader(input)).Next()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
	require.Contains(t, err.Error(), "reading content")
}

func TestReader_LengthOverflow(t *testing.T) {
	input := "daemon 2025-01-07T12:00:00.000000000Z 99999999999999999999999: x\n"

	_, err := NewReader(strings.NewReader(input)).Next()
	require.Error(t, err)
	require.Contains(t, err.Error(), "parsing length")
}

func TestReader_TruncatedIsUnexpectedEOF(t *testing.T) {
	_, err := NewReader(strings.NewReader("daemon 2025-01-07T12:00:00.000000000Z 10: x")).Next()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReader_ChannelDeliversError(t *testing.T) {
	input := "daemon 2025-01-07T12:00:00.000000000Z 2: a\n\n" + "garbage"

	var chunks []Chunk
	for chunk := range NewReader(strings.NewReader(input)).Channel() {
		chunks = append(chunks, chunk)
	}
	require.Len(t, chunks, 2)
	require.NoError(t, chunks[0].Error)
	require.Error(t, chunks[1].Error)
}

func TestReader_All_MixedStreams(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Record(StreamDaemon, []byte("one\n")))
	require.NoError(t, w.Record(StreamCheck, []byte("ok check_line \"one\"\n")))
	require.NoError(t, w.Record(StreamDaemon, []byte("two\n")))
	require.NoError(t, w.Close())

	all, err := NewReader(&buf).All()
	require.NoError(t, err)
	require.Equal(t, "one\ntwo\n", string(all[StreamDaemon]))
	require.Equal(t, "ok check_line \"one\"\n", string(all[StreamCheck]))
}

func TestReader_All_Empty(t *testing.T) {
	all, err := NewReader(strings.NewReader("")).All()
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestReader_Stream_FiltersOthers(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Record(StreamCheck, []byte("ignored")))
	require.NoError(t, w.Record(StreamDaemon, []byte("kept\n")))
	require.NoError(t, w.Close())

	data, err := NewReader(&buf).Stream(StreamDaemon)
	require.NoError(t, err)
	require.Equal(t, "kept\n", string(data))
}

func TestReader_LargeBinaryRoundTrip(t *testing.T) {
	payload := bytes.Repeat(allBytes(), 1024)

	var buf bytes.Buffer
	w := NewWriter(&buf)
	require.NoError(t, w.Record(StreamDaemon, payload))
	require.NoError(t, w.Close())

	data, err := NewReader(&buf).Stream(StreamDaemon)
	require.NoError(t, err)
	require.Equal(t, payload, data)
}
