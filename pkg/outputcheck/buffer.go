package outputcheck

import (
	"sync"
	"time"
)

// lineBuffer is the FIFO between the reader goroutine and the assertion
// methods. Every mutation is followed by exactly one wake release.
type lineBuffer struct {
	mu    sync.Mutex
	lines []string
	eof   bool

	// wake holds at most one pending notification. Releases that find it
	// full coalesce, which is safe because waiters always re-check lines
	// and eof after waking.
	wake chan struct{}
}

func newLineBuffer() *lineBuffer {
	return &lineBuffer{
		wake: make(chan struct{}, 1),
	}
}

// publish appends complete lines and releases the wake signal once, even when
// lines is empty.
func (b *lineBuffer) publish(lines []string) {
	b.mu.Lock()
	if !b.eof {
		b.lines = append(b.lines, lines...)
	}
	b.mu.Unlock()
	b.release()
}

// finish marks end of stream. It is called once, by the reader goroutine.
func (b *lineBuffer) finish() {
	b.mu.Lock()
	b.eof = true
	b.mu.Unlock()
	b.release()
}

func (b *lineBuffer) release() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// pop removes the oldest line. When ok is false, eof tells whether more lines
// can still arrive.
func (b *lineBuffer) pop() (line string, ok bool, eof bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.lines) == 0 {
		return "", false, b.eof
	}
	line = b.lines[0]
	b.lines[0] = ""
	b.lines = b.lines[1:]
	return line, true, b.eof
}

// drain empties the buffer and returns what it held.
func (b *lineBuffer) drain() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	lines := b.lines
	b.lines = nil
	return lines
}

// wait blocks until the wake signal is released or deadline passes. It
// returns false on deadline. A deadline already in the past still consumes a
// pending release without blocking.
func (b *lineBuffer) wait(deadline time.Time) bool {
	remaining := time.Until(deadline)
	if remaining <= 0 {
		select {
		case <-b.wake:
			return true
		default:
			return false
		}
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-b.wake:
		return true
	case <-timer.C:
		return false
	}
}
