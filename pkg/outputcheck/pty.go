package outputcheck

import (
	"fmt"
	"os"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

// NewPTY is like New, but the child writes to the slave side of a
// pseudo-terminal instead of a pipe, so isatty(1) is true inside the child.
// Output post-processing is switched off on the slave so lines end in "\n"
// rather than "\r\n".
//
// Once the child exits and WriterAttached has been called, reads from the
// master fail with EIO, which ends the stream like end of file.
func NewPTY(opts ...Option) (*Checker, error) {
	ptmx, tty, err := pty.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open pty: %w", err)
	}

	if err := disableOutputProcessing(tty); err != nil {
		_ = ptmx.Close()
		_ = tty.Close()
		return nil, err
	}

	master, err := pollable(ptmx)
	if err != nil {
		_ = tty.Close()
		return nil, err
	}

	return newChecker(master, tty, opts)
}

// pollable returns a non-blocking copy of f registered with the runtime
// poller, and closes f. pty.Open calls Fd on the master, which puts it back
// into blocking mode, so reads on it could not be interrupted by Close.
func pollable(f *os.File) (*os.File, error) {
	defer f.Close()

	fd, err := unix.Dup(int(f.Fd()))
	if err != nil {
		return nil, fmt.Errorf("failed to duplicate pty master: %w", err)
	}
	unix.CloseOnExec(fd)
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("failed to set pty master non-blocking: %w", err)
	}
	return os.NewFile(uintptr(fd), f.Name()), nil
}
