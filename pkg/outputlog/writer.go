package outputlog

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Writer serialises chunks from any number of goroutines onto one
// io.Writer. A single goroutine owns the destination, so records never
// interleave.
type Writer struct {
	chunks chan Chunk
	done   chan struct{}

	mu     sync.RWMutex
	closed bool

	err error // first write error, owned by the writer goroutine until done
}

// NewWriter starts a Writer on w. Call Close to flush it.
func NewWriter(w io.Writer) *Writer {
	o := &Writer{
		chunks: make(chan Chunk, 100),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(o.done)
		for chunk := range o.chunks {
			if o.err != nil {
				continue
			}
			if _, err := w.Write(FormatChunk(chunk)); err != nil {
				o.err = fmt.Errorf("failed to write transcript: %w", err)
			}
		}
	}()

	return o
}

// Stream returns an io.Writer that records every Write as one chunk of the
// named stream. It panics if name is not a valid stream name.
func (o *Writer) Stream(name string) io.Writer {
	if !ValidStream(name) {
		panic(fmt.Sprintf("outputlog: invalid stream name %q", name))
	}
	return &streamWriter{stream: name, out: o}
}

// Record adds one chunk with the current time. The data is copied.
func (o *Writer) Record(stream string, data []byte) error {
	return o.send(Chunk{
		Stream:    stream,
		Timestamp: time.Now().UTC(),
		Data:      append([]byte(nil), data...),
	})
}

// Recordf records a formatted message.
func (o *Writer) Recordf(stream, format string, args ...any) error {
	return o.send(Chunk{
		Stream:    stream,
		Timestamp: time.Now().UTC(),
		Data:      fmt.Appendf(nil, format, args...),
	})
}

func (o *Writer) send(chunk Chunk) error {
	if !ValidStream(chunk.Stream) {
		return fmt.Errorf("invalid stream name %q", chunk.Stream)
	}

	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.closed {
		return io.ErrClosedPipe
	}
	o.chunks <- chunk
	return nil
}

// Close waits for all pending chunks to be written and returns the first
// write error. Writes after Close fail with io.ErrClosedPipe.
func (o *Writer) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		<-o.done
		return o.err
	}
	o.closed = true
	close(o.chunks)
	o.mu.Unlock()

	<-o.done
	return o.err
}

type streamWriter struct {
	stream string
	out    *Writer
}

func (sw *streamWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if err := sw.out.Record(sw.stream, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
