package outputlog

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"
)

// initialContentSize bounds the allocation made up front for one record.
const initialContentSize = 64 * 1024

// Reader parses a transcript.
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a Reader on r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the next chunk. It returns io.EOF at a clean end of input and
// a descriptive error for a truncated or malformed record.
func (rd *Reader) Next() (Chunk, error) {
	var chunk Chunk

	stream, err := rd.r.ReadString(' ')
	if err != nil {
		if errors.Is(err, io.EOF) && stream == "" {
			return chunk, io.EOF
		}
		return chunk, fmt.Errorf("reading stream: %w", unexpected(err))
	}
	chunk.Stream = stream[:len(stream)-1]
	if !ValidStream(chunk.Stream) {
		return chunk, fmt.Errorf("invalid stream name %q", chunk.Stream)
	}

	ts, err := rd.r.ReadString(' ')
	if err != nil {
		return chunk, fmt.Errorf("reading timestamp: %w", unexpected(err))
	}
	chunk.Timestamp, err = time.Parse(timestampLayout, ts[:len(ts)-1])
	if err != nil {
		return chunk, fmt.Errorf("parsing timestamp: %w", err)
	}

	lengthStr, err := rd.r.ReadString(':')
	if err != nil {
		return chunk, fmt.Errorf("reading length: %w", unexpected(err))
	}
	length, err := strconv.Atoi(lengthStr[:len(lengthStr)-1])
	if err != nil || length < 0 {
		return chunk, fmt.Errorf("parsing length %q", lengthStr[:len(lengthStr)-1])
	}

	if b, err := rd.r.ReadByte(); err != nil {
		return chunk, fmt.Errorf("reading space after colon: %w", unexpected(err))
	} else if b != ' ' {
		return chunk, fmt.Errorf("expected space after colon, got %q", b)
	}

	// The length comes from the file, so the buffer only grows as content
	// actually arrives.
	var content bytes.Buffer
	content.Grow(min(length, initialContentSize))
	if _, err := io.CopyN(&content, rd.r, int64(length)); err != nil {
		return chunk, fmt.Errorf("reading content (%d bytes): %w", length, unexpected(err))
	}
	chunk.Data = content.Bytes()

	if b, err := rd.r.ReadByte(); err != nil {
		return chunk, fmt.Errorf("reading separator: %w", unexpected(err))
	} else if b != '\n' {
		return chunk, fmt.Errorf("expected newline separator, got %q", b)
	}

	return chunk, nil
}

// Channel emits chunks until the end of input. A parse failure is delivered
// as a final chunk with Error set.
func (rd *Reader) Channel() <-chan Chunk {
	ch := make(chan Chunk)
	go func() {
		defer close(ch)
		for {
			chunk, err := rd.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				chunk.Error = err
				ch <- chunk
				return
			}
			ch <- chunk
		}
	}()
	return ch
}

// All reads the whole transcript and concatenates the data of each stream.
func (rd *Reader) All() (map[string][]byte, error) {
	result := make(map[string][]byte)
	for {
		chunk, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		result[chunk.Stream] = append(result[chunk.Stream], chunk.Data...)
	}
}

// Stream returns the concatenated data of a single stream, ignoring all
// others.
func (rd *Reader) Stream(name string) ([]byte, error) {
	var out []byte
	for {
		chunk, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if chunk.Stream == name {
			out = append(out, chunk.Data...)
		}
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
