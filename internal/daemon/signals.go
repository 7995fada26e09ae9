package daemon

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Signal describes a Unix signal.
type Signal struct {
	Number      int
	Name        string
	Description string
}

// Signals returns the standard signals 1 to 31 that the platform knows by
// name.
func Signals() []Signal {
	var out []Signal
	for n := 1; n <= 31; n++ {
		sig := unix.Signal(n)
		name := unix.SignalName(sig)
		if name == "" {
			continue
		}
		out = append(out, Signal{Number: n, Name: name, Description: sig.String()})
	}
	return out
}

// ParseSignal accepts a signal by name ("SIGTERM" or "TERM", any case) or by
// number ("15").
func ParseSignal(s string) (unix.Signal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty signal")
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 || n > 31 {
			return 0, fmt.Errorf("invalid signal number: %d", n)
		}
		return unix.Signal(n), nil
	}

	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal: %s", s)
	}
	return sig, nil
}
