package outputcheck

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

const (
	// DefaultWakeInterval bounds how long the reader goroutine blocks before
	// it re-checks for a forced close.
	DefaultWakeInterval = 100 * time.Millisecond

	// DefaultReadSize is the size of a single read from the pipe.
	DefaultReadSize = 1024
)

// Checker drains the read end of a pipe in the background and provides
// blocking, timeout-bounded assertions on the lines read from it.
//
// The assertion methods (CheckLine, CheckLineRe, CheckNoLine, CheckNoLineRe
// and Clear) must be called from one goroutine at a time. Lines are popped
// destructively, so concurrent callers would race for them.
type Checker struct {
	output       io.Writer
	logger       *slog.Logger
	wakeInterval time.Duration
	readSize     int

	r   *os.File
	raw syscall.RawConn

	wMu sync.Mutex
	w   *os.File

	closeReadOnce sync.Once
	closing       atomic.Bool

	lines *lineBuffer
	done  chan struct{}

	errMu   sync.Mutex
	readErr error
}

// Option configures a Checker.
type Option func(*Checker)

// WithOutput sets the sink that receives a verbatim copy of everything read.
// The default is os.Stdout. Pass io.Discard to silence it.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.output = w
	}
}

// WithLogger sets the logger used for reader diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithWakeInterval sets how often the reader wakes up while no data arrives.
// It is also the upper bound on how long ForceClose takes to unblock a
// waiting assertion.
func WithWakeInterval(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.wakeInterval = d
		}
	}
}

// WithReadSize sets the maximum number of bytes taken from the pipe per read.
func WithReadSize(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.readSize = n
		}
	}
}

// New creates a pipe and starts draining its read end. Attach WriteEnd to the
// child and call WriterAttached once the child has been started.
func New(opts ...Option) (*Checker, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	return newChecker(r, w, opts)
}

func newChecker(r, w *os.File, opts []Option) (*Checker, error) {
	c := &Checker{
		output:       os.Stdout,
		logger:       slog.Default(),
		wakeInterval: DefaultWakeInterval,
		readSize:     DefaultReadSize,
		r:            r,
		w:            w,
		lines:        newLineBuffer(),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	raw, err := r.SyscallConn()
	if err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, fmt.Errorf("failed to access read end: %w", err)
	}
	c.raw = raw

	go c.readLoop()

	return c, nil
}

// WriteEnd returns the write end of the pipe, to be used as the child's stdout
// and stderr. It returns nil after WriterAttached.
func (c *Checker) WriteEnd() *os.File {
	c.wMu.Lock()
	defer c.wMu.Unlock()
	return c.w
}

// WriterAttached closes the Checker's own copy of the write end. Call it once
// the child holds its copy, otherwise the stream never reaches end of file.
// Calling it again is a no-op.
func (c *Checker) WriterAttached() error {
	c.wMu.Lock()
	defer c.wMu.Unlock()

	if c.w == nil {
		return nil
	}
	err := c.w.Close()
	c.w = nil
	if err != nil {
		return fmt.Errorf("failed to close write end: %w", err)
	}
	return nil
}

// Clear removes and returns all buffered lines without blocking. It does not
// affect end of stream.
func (c *Checker) Clear() []string {
	return c.lines.drain()
}

// AssertClosed waits up to timeout for the stream to end and the reader
// goroutine to exit. It fails with ErrNotClosed otherwise.
func (c *Checker) AssertClosed(timeout time.Duration) error {
	select {
	case <-c.done:
		return nil
	default:
	}

	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
		return nil
	case <-timer.C:
		return &AssertionError{
			Kind:    ErrNotClosed,
			Timeout: timeout,
			Elapsed: time.Since(start),
			Message: "write side has not been closed yet",
		}
	}
}

// ForceClose closes the read end, even while a read is in progress, and
// blocks until the reader goroutine has exited. Assertions waiting at that
// moment fail with ErrEndOfStream.
func (c *Checker) ForceClose() {
	c.closing.Store(true)
	c.closeRead()
	<-c.done
}

// Close releases both ends of the pipe. It is safe to call on every exit path
// and more than once.
func (c *Checker) Close() error {
	c.ForceClose()
	return c.WriterAttached()
}

// Done is closed when the reader goroutine has exited.
func (c *Checker) Done() <-chan struct{} {
	return c.done
}

// Err returns the read error that ended the stream, if it was neither a
// regular end of file nor a forced close.
func (c *Checker) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.readErr
}

func (c *Checker) closeRead() {
	c.closeReadOnce.Do(func() {
		if err := c.r.Close(); err != nil {
			c.logger.Debug("closing read end", "error", err)
		}
	})
}

func (c *Checker) setErr(err error) {
	c.errMu.Lock()
	c.readErr = err
	c.errMu.Unlock()
}
