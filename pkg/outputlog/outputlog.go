package outputlog

import (
	"fmt"
	"regexp"
	"time"
)

const (
	// StreamDaemon carries the daemon's combined stdout and stderr.
	StreamDaemon = "daemon"

	// StreamCheck carries one record per executed check.
	StreamCheck = "check"
)

const timestampLayout = "2006-01-02T15:04:05.000000000Z"

var streamRe = regexp.MustCompile(`^[a-zA-Z0-9_./-]{1,64}$`)

// Chunk is a single transcript record.
type Chunk struct {
	Stream    string
	Timestamp time.Time // UTC
	Data      []byte
	Error     error // set by Reader when the record could not be parsed
}

// ValidStream reports whether name can be used as a stream name.
func ValidStream(name string) bool {
	return streamRe.MatchString(name)
}

// FormatChunk encodes chunk as "stream timestamp length: content\n".
func FormatChunk(chunk Chunk) []byte {
	timestamp := chunk.Timestamp.UTC().Format(timestampLayout)
	out := fmt.Appendf(nil, "%s %s %d: ", chunk.Stream, timestamp, len(chunk.Data))
	out = append(out, chunk.Data...)
	return append(out, '\n')
}
