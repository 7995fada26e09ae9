package outputcheck

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// disableOutputProcessing clears ONLCR on a terminal so "\n" is not turned
// into "\r\n".
func disableOutputProcessing(tty *os.File) error {
	raw, err := tty.SyscallConn()
	if err != nil {
		return fmt.Errorf("failed to access tty: %w", err)
	}

	var ioctlErr error
	err = raw.Control(func(fd uintptr) {
		termios, err := unix.IoctlGetTermios(int(fd), ioctlGetTermios)
		if err != nil {
			ioctlErr = err
			return
		}
		termios.Oflag &^= unix.ONLCR
		ioctlErr = unix.IoctlSetTermios(int(fd), ioctlSetTermios, termios)
	})
	if err != nil {
		return fmt.Errorf("failed to access tty: %w", err)
	}
	if ioctlErr != nil {
		return fmt.Errorf("failed to set tty flags: %w", ioctlErr)
	}
	return nil
}
