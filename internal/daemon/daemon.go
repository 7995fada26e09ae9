package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"outputcheck/pkg/outputcheck"
)

// closeTimeout bounds the wait for the output stream to end once the daemon
// has exited.
const closeTimeout = time.Second

var (
	// ErrKilled is returned by Stop when the daemon ignored the stop signal
	// and had to be aborted.
	ErrKilled = errors.New("daemon had to be killed")
)

// ExitCodeError is returned by Stop when the daemon exited with an
// unexpected code.
type ExitCodeError struct {
	Name   string
	Want   int
	Got    int
	Signal string
}

func (e *ExitCodeError) Error() string {
	if e.Signal != "" {
		return fmt.Sprintf("%s exited with code %d (signal %s), want %d", e.Name, e.Got, e.Signal, e.Want)
	}
	return fmt.Sprintf("%s exited with code %d, want %d", e.Name, e.Got, e.Want)
}

// Result describes a finished daemon run.
type Result struct {
	Name      string
	PID       int
	StartTime time.Time
	EndTime   time.Time
	ExitCode  int
	Signal    string // name of the terminating signal, if any
}

// Daemon is a running daemon under test.
type Daemon struct {
	cfg    Config
	cmd    *exec.Cmd
	output *outputcheck.Checker
	logger *slog.Logger

	exited chan struct{}

	mu     sync.Mutex
	result Result
}

// Start runs the daemon with its stdout and stderr attached to a new
// outputcheck.Checker. The Checker's copy of the write end is released before
// Start returns.
func Start(ctx context.Context, cfg Config) (*Daemon, error) {
	cfg = cfg.withDefaults()
	logger := cfg.Logger.With("daemon", cfg.Name)

	opts := []outputcheck.Option{outputcheck.WithLogger(logger)}
	if cfg.Output != nil {
		opts = append(opts, outputcheck.WithOutput(cfg.Output))
	}

	var (
		chk *outputcheck.Checker
		err error
	)
	if cfg.TTY {
		chk, err = outputcheck.NewPTY(opts...)
	} else {
		chk, err = outputcheck.New(opts...)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to set up output capture: %w", err)
	}

	argv := cfg.Argv()
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Dir = cfg.Dir
	if cfg.Env != nil {
		cmd.Env = append(os.Environ(), cfg.Env...)
	}
	cmd.Stdout = chk.WriteEnd()
	cmd.Stderr = chk.WriteEnd()

	logger.Info("starting daemon", "argv", argv)

	if err := cmd.Start(); err != nil {
		_ = chk.Close()
		return nil, fmt.Errorf("starting %s: %w", cfg.Name, err)
	}

	d := &Daemon{
		cfg:    cfg,
		cmd:    cmd,
		output: chk,
		logger: logger,
		exited: make(chan struct{}),
		result: Result{
			Name:      cfg.Name,
			PID:       cmd.Process.Pid,
			StartTime: time.Now(),
		},
	}
	go d.wait()

	if err := chk.WriterAttached(); err != nil {
		d.Kill()
		return nil, err
	}

	logger.Info("daemon started", "pid", cmd.Process.Pid)
	return d, nil
}

func (d *Daemon) wait() {
	defer close(d.exited)

	err := d.cmd.Wait()

	exitCode := 0
	signalName := ""
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
			if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
				signalName = unix.SignalName(status.Signal())
			}
		} else {
			exitCode = 1
		}
	}

	d.mu.Lock()
	d.result.EndTime = time.Now()
	d.result.ExitCode = exitCode
	d.result.Signal = signalName
	d.mu.Unlock()

	d.logger.Info("daemon exited", "exit_code", exitCode, "signal", signalName)
}

// Output returns the Checker attached to the daemon's stdout and stderr.
func (d *Daemon) Output() *outputcheck.Checker {
	return d.output
}

// PID returns the process ID of the direct child, which is the wrapper when
// running under valgrind or strace.
func (d *Daemon) PID() int {
	return d.cmd.Process.Pid
}

// Exited is closed once the direct child has exited.
func (d *Daemon) Exited() <-chan struct{} {
	return d.exited
}

// Result returns the outcome of the run. It is only complete after Exited is
// closed.
func (d *Daemon) Result() Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.result
}

// Stop sends the stop signal and waits for the daemon to exit with retcode
// and close its output. If the daemon does not exit within the stop timeout
// it is sent SIGABRT and Stop returns ErrKilled.
func (d *Daemon) Stop(retcode int) error {
	pid := d.targetPID()
	d.logger.Info("stopping daemon", "pid", pid, "signal", unix.SignalName(d.cfg.StopSignal))

	if err := signalPID(pid, d.cfg.StopSignal); err != nil {
		d.logger.Warn("failed to send stop signal", "pid", pid, "error", err)
	}

	if d.waitExit(d.cfg.StopTimeout) {
		res := d.Result()
		if res.ExitCode != retcode {
			return &ExitCodeError{Name: d.cfg.Name, Want: retcode, Got: res.ExitCode, Signal: res.Signal}
		}
		return d.output.AssertClosed(closeTimeout)
	}

	d.logger.Warn("stop timeout, sending SIGABRT", "pid", pid, "timeout", d.cfg.StopTimeout)
	if err := signalPID(pid, unix.SIGABRT); err != nil {
		d.logger.Warn("failed to send SIGABRT", "pid", pid, "error", err)
	}

	if !d.waitExit(d.cfg.StopTimeout) {
		d.Kill()
		return fmt.Errorf("%w: did not exit after SIGABRT", ErrKilled)
	}
	if err := d.output.AssertClosed(closeTimeout); err != nil {
		return errors.Join(ErrKilled, err)
	}
	return ErrKilled
}

// Kill sends SIGKILL to the daemon's process group, waits for it to exit and
// force closes the output. It is safe to call after Stop.
func (d *Daemon) Kill() {
	select {
	case <-d.exited:
	default:
		if err := unix.Kill(-d.cmd.Process.Pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			d.logger.Warn("failed to kill process group", "error", err)
		}
		<-d.exited
	}
	d.output.ForceClose()
}

func (d *Daemon) waitExit(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-d.exited:
		return true
	case <-timer.C:
		return false
	}
}

// targetPID returns the PID that should receive signals.
func (d *Daemon) targetPID() int {
	pid := d.cmd.Process.Pid
	if !d.cfg.wrapped() {
		return pid
	}
	child, err := firstChild(pid)
	if err != nil {
		d.logger.Debug("no wrapped child found, signalling wrapper", "pid", pid, "error", err)
		return pid
	}
	return child
}

func signalPID(pid int, sig unix.Signal) error {
	if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return err
	}
	return nil
}
