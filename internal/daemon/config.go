package daemon

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// DefaultStopTimeout is how long Stop waits after each signal.
const DefaultStopTimeout = 5 * time.Second

// Config describes how to run the daemon.
type Config struct {
	// Name is used in log messages.
	Name string

	// Binary is the executable to run.
	Binary string

	// Args are passed to Binary.
	Args []string

	// Env entries (key=value) are added to the inherited environment.
	Env []string

	// Dir is the working directory. Empty means the current one.
	Dir string

	// Valgrind runs the daemon under valgrind --leak-check=full.
	Valgrind bool

	// ValgrindSuppressions is passed as --suppressions when non-empty.
	ValgrindSuppressions string

	// Strace runs the daemon under strace -ff.
	Strace bool

	// TTY attaches the daemon's output to a pseudo-terminal instead of a pipe.
	TTY bool

	// StopSignal is sent first by Stop. Zero means SIGTERM.
	StopSignal unix.Signal

	// StopTimeout bounds each wait in Stop. Zero means DefaultStopTimeout.
	StopTimeout time.Duration

	// Output receives a verbatim copy of the daemon's output. Nil means
	// os.Stdout.
	Output io.Writer

	// Logger is used for supervision messages. Nil means slog.Default().
	Logger *slog.Logger
}

// ConfigFromEnv builds a Config for the named daemon using the environment
// of the test run:
//
//   - TOP_BUILD_DIR: directory containing the binary. Without it, ./name is
//     used if it exists, otherwise name is looked up in $PATH.
//   - VALGRIND: if set, run under valgrind. If it names an existing file, it
//     is used as suppressions file.
//   - STRACE: if set and not "0", run under strace -ff.
func ConfigFromEnv(name string, args ...string) Config {
	cfg := Config{
		Name:   name,
		Binary: ResolveBinary(name),
		Args:   args,
	}

	if v, ok := os.LookupEnv("VALGRIND"); ok {
		cfg.Valgrind = true
		if v != "" && fileExists(v) {
			cfg.ValgrindSuppressions = v
		}
	}

	if v := os.Getenv("STRACE"); v != "" && v != "0" {
		cfg.Strace = true
	}

	return cfg
}

// ResolveBinary returns the path used to run the named binary.
func ResolveBinary(name string) string {
	if dir := os.Getenv("TOP_BUILD_DIR"); dir != "" {
		return filepath.Join(dir, name)
	}
	local := "./" + name
	if fileExists(local) {
		return local
	}
	return name
}

// Argv returns the full command line, including valgrind and strace
// wrappers.
func (c Config) Argv() []string {
	argv := append([]string{c.Binary}, c.Args...)

	if c.Valgrind {
		wrapper := []string{"valgrind", "--leak-check=full"}
		if c.ValgrindSuppressions != "" {
			wrapper = append(wrapper, "--suppressions="+c.ValgrindSuppressions)
		}
		argv = append(wrapper, argv...)
	}

	if c.Strace {
		argv = append([]string{"strace", "-ff"}, argv...)
	}

	return argv
}

// wrapped reports whether the daemon is not the direct child.
func (c Config) wrapped() bool {
	return c.Valgrind || c.Strace
}

func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = filepath.Base(c.Binary)
	}
	if c.StopSignal == 0 {
		c.StopSignal = unix.SIGTERM
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
