package outputcheck

import (
	"bytes"
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// readLoop is the reader goroutine. It is the only writer of c.lines and the
// only place that ends the stream.
func (c *Checker) readLoop() {
	defer close(c.done)

	buf := make([]byte, c.readSize)
	var pending []byte
	mirrorFailed := false

	// Pipes are registered with the runtime poller and support read
	// deadlines. Other descriptors fall back to poll(2) on the raw fd.
	deadlines := c.deadlinesWork()

	for {
		if deadlines {
			if err := c.r.SetReadDeadline(time.Now().Add(c.wakeInterval)); err != nil {
				c.finish(pending, err)
				return
			}
		} else {
			ready, err := c.pollReadable()
			if err != nil {
				c.finish(pending, err)
				return
			}
			if !ready {
				continue
			}
		}

		n, err := c.r.Read(buf)
		if n > 0 {
			if _, werr := c.output.Write(buf[:n]); werr != nil && !mirrorFailed {
				mirrorFailed = true
				c.logger.Warn("failed to mirror output", "error", werr)
			}

			var lines []string
			lines, pending = splitLines(pending, buf[:n])
			c.lines.publish(lines)
		}
		if err != nil {
			if wouldBlock(err) {
				continue
			}
			c.finish(pending, err)
			return
		}
		if n == 0 {
			c.finish(pending, io.EOF)
			return
		}
	}
}

// deadlinesWork reports whether read deadlines can interrupt a read on the
// read end. SetReadDeadline also succeeds on a file that was switched back to
// blocking mode by a call to Fd, but a read on it then blocks in the kernel.
func (c *Checker) deadlinesWork() bool {
	if c.r.SetReadDeadline(time.Time{}) != nil {
		return false
	}

	var (
		flags int
		ferr  error
	)
	err := c.raw.Control(func(fd uintptr) {
		flags, ferr = unix.FcntlInt(fd, unix.F_GETFL, 0)
	})
	if err != nil || ferr != nil {
		return false
	}
	return flags&unix.O_NONBLOCK != 0
}

// pollReadable waits up to one wake interval for the read end to become
// readable. The raw fd stays referenced for the duration of the poll, so a
// concurrent close takes effect between polls.
func (c *Checker) pollReadable() (bool, error) {
	var (
		n    int
		perr error
	)
	timeout := int(c.wakeInterval / time.Millisecond)

	err := c.raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, perr = unix.Poll(fds, timeout)
	})
	if c.closing.Load() {
		return false, os.ErrClosed
	}
	if err != nil {
		return false, err
	}
	if perr != nil {
		if errors.Is(perr, unix.EINTR) {
			return false, nil
		}
		return false, perr
	}
	return n > 0, nil
}

// finish closes the read end and marks end of stream.
func (c *Checker) finish(pending []byte, err error) {
	c.closeRead()

	switch {
	case c.closing.Load() || errors.Is(err, os.ErrClosed):
		c.logger.Debug("read end closed")
	case errors.Is(err, io.EOF):
		c.logger.Debug("end of stream")
	case errors.Is(err, syscall.EIO), errors.Is(err, syscall.EBADF):
		// EIO is what a PTY master returns once the slave side hung up.
		c.logger.Debug("end of stream", "reason", err)
	default:
		c.setErr(err)
		c.logger.Warn("unexpected read error, treating as end of stream", "error", err)
	}

	if len(pending) > 0 {
		c.logger.Debug("discarding unterminated line", "bytes", len(pending))
	}

	c.lines.finish()
}

func wouldBlock(err error) bool {
	return errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, syscall.EAGAIN) ||
		errors.Is(err, syscall.EINTR)
}

// splitLines joins pending and data and splits the result on newlines. All
// complete lines are returned in order; the unterminated remainder becomes the
// new pending fragment.
func splitLines(pending, data []byte) ([]string, []byte) {
	joined := append(pending, data...)
	parts := bytes.Split(joined, []byte{'\n'})

	last := len(parts) - 1
	lines := make([]string, 0, last)
	for _, part := range parts[:last] {
		lines = append(lines, string(part))
	}

	rest := append([]byte(nil), parts[last]...)
	return lines, rest
}
