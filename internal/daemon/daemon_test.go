package daemon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"outputcheck/pkg/outputcheck"
)

func shellConfig(t *testing.T, script string) Config {
	t.Helper()
	return Config{
		Name:        "sh",
		Binary:      "/bin/sh",
		Args:        []string{"-c", script},
		StopTimeout: time.Second,
		Output:      io.Discard,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func startShell(t *testing.T, cfg Config) *Daemon {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	d, err := Start(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(d.Kill)
	return d
}

const loop = `echo ready; while :; do sleep 0.05; done`

func TestStartStop(t *testing.T) {
	d := startShell(t, shellConfig(t, `trap 'echo bye; exit 0' TERM; `+loop))

	_, err := d.Output().CheckLine("ready", 5*time.Second, "")
	require.NoError(t, err)

	require.NoError(t, d.Stop(0))

	res := d.Result()
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, d.PID(), res.PID)
	assert.False(t, res.EndTime.Before(res.StartTime))

	select {
	case <-d.Exited():
	default:
		t.Fatal("Exited not closed after Stop")
	}
}

func TestStop_ExitCodeMismatch(t *testing.T) {
	d := startShell(t, shellConfig(t, `trap 'exit 3' TERM; `+loop))

	_, err := d.Output().CheckLine("ready", 5*time.Second, "")
	require.NoError(t, err)

	err = d.Stop(0)
	var exitErr *ExitCodeError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 0, exitErr.Want)
	assert.Equal(t, 3, exitErr.Got)
}

func TestStop_IgnoredSignalIsKilled(t *testing.T) {
	cfg := shellConfig(t, `trap '' TERM; `+loop)
	cfg.StopTimeout = 300 * time.Millisecond
	d := startShell(t, cfg)

	_, err := d.Output().CheckLine("ready", 5*time.Second, "")
	require.NoError(t, err)

	err = d.Stop(0)
	require.ErrorIs(t, err, ErrKilled)
}

func TestStop_CustomSignal(t *testing.T) {
	cfg := shellConfig(t, `trap 'exit 0' USR1; `+loop)
	cfg.StopSignal = unix.SIGUSR1
	d := startShell(t, cfg)

	_, err := d.Output().CheckLine("ready", 5*time.Second, "")
	require.NoError(t, err)
	require.NoError(t, d.Stop(0))
}

func TestStop_AlreadyExited(t *testing.T) {
	d := startShell(t, shellConfig(t, `echo done`))

	_, err := d.Output().CheckLine("done", 5*time.Second, "")
	require.NoError(t, err)

	<-d.Exited()
	require.NoError(t, d.Stop(0))
}

func TestKill_EndsOutput(t *testing.T) {
	d := startShell(t, shellConfig(t, loop))

	_, err := d.Output().CheckLine("ready", 5*time.Second, "")
	require.NoError(t, err)

	d.Kill()

	_, err = d.Output().CheckLine("never", time.Second, "")
	require.ErrorIs(t, err, outputcheck.ErrEndOfStream)
	assert.Equal(t, "SIGKILL", d.Result().Signal)
}

func TestStart_TTY(t *testing.T) {
	if _, err := os.Stat("/dev/ptmx"); err != nil {
		t.Skip("no pseudo-terminal support")
	}
	cfg := shellConfig(t, `if [ -t 1 ]; then echo tty; else echo pipe; fi`)
	cfg.TTY = true
	d := startShell(t, cfg)

	lines, err := d.Output().CheckLine("tty", 5*time.Second, "")
	require.NoError(t, err)
	assert.Equal(t, "tty", lines[len(lines)-1])

	<-d.Exited()
	require.NoError(t, d.Stop(0))
}

func TestStart_Env(t *testing.T) {
	cfg := shellConfig(t, `echo "value=$OUTPUTCHECK_TEST"`)
	cfg.Env = []string{"OUTPUTCHECK_TEST=42"}
	d := startShell(t, cfg)

	_, err := d.Output().CheckLine("value=42", 5*time.Second, "")
	require.NoError(t, err)
}

func TestStart_MissingBinary(t *testing.T) {
	cfg := shellConfig(t, "")
	cfg.Binary = filepath.Join(t.TempDir(), "does-not-exist")
	cfg.Args = nil

	_, err := Start(context.Background(), cfg)
	require.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	dir := t.TempDir()
	supp := filepath.Join(dir, "daemon.supp")
	require.NoError(t, os.WriteFile(supp, nil, 0o644))

	t.Setenv("TOP_BUILD_DIR", dir)
	t.Setenv("VALGRIND", supp)
	t.Setenv("STRACE", "1")

	cfg := ConfigFromEnv("thermald", "--no-daemon")
	assert.Equal(t, filepath.Join(dir, "thermald"), cfg.Binary)
	assert.True(t, cfg.Valgrind)
	assert.Equal(t, supp, cfg.ValgrindSuppressions)
	assert.True(t, cfg.Strace)

	assert.Equal(t, []string{
		"strace", "-ff",
		"valgrind", "--leak-check=full", "--suppressions=" + supp,
		filepath.Join(dir, "thermald"), "--no-daemon",
	}, cfg.Argv())
}

func TestConfigFromEnv_Plain(t *testing.T) {
	t.Setenv("TOP_BUILD_DIR", "")
	t.Setenv("STRACE", "0")
	t.Setenv("VALGRIND", "")
	require.NoError(t, os.Unsetenv("VALGRIND"))

	cfg := ConfigFromEnv("outputcheck-test-binary")
	assert.Equal(t, "outputcheck-test-binary", cfg.Binary)
	assert.False(t, cfg.Valgrind)
	assert.False(t, cfg.Strace)
	assert.False(t, cfg.wrapped())
	assert.Equal(t, []string{"outputcheck-test-binary"}, cfg.Argv())
}

func TestConfigFromEnv_ValgrindWithoutSuppressions(t *testing.T) {
	t.Setenv("TOP_BUILD_DIR", "")
	t.Setenv("VALGRIND", "")

	cfg := ConfigFromEnv("d")
	assert.True(t, cfg.Valgrind)
	assert.Empty(t, cfg.ValgrindSuppressions)
	assert.Equal(t, []string{"valgrind", "--leak-check=full", "d"}, cfg.Argv())
}

func TestWithDefaults(t *testing.T) {
	cfg := Config{Binary: "/usr/sbin/thermald"}.withDefaults()
	assert.Equal(t, "thermald", cfg.Name)
	assert.Equal(t, unix.SIGTERM, cfg.StopSignal)
	assert.Equal(t, DefaultStopTimeout, cfg.StopTimeout)
	assert.NotNil(t, cfg.Logger)
}

func TestParseSignal(t *testing.T) {
	tests := []struct {
		in      string
		want    unix.Signal
		wantErr bool
	}{
		{in: "SIGTERM", want: unix.SIGTERM},
		{in: "term", want: unix.SIGTERM},
		{in: " USR1 ", want: unix.SIGUSR1},
		{in: "15", want: unix.SIGTERM},
		{in: "9", want: unix.SIGKILL},
		{in: "0", wantErr: true},
		{in: "32", wantErr: true},
		{in: "SIGNOPE", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSignal(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSignals(t *testing.T) {
	sigs := Signals()
	require.NotEmpty(t, sigs)

	seen := map[string]int{}
	for _, s := range sigs {
		assert.NotEmpty(t, s.Description)
		seen[s.Name] = s.Number
	}
	assert.Equal(t, int(unix.SIGTERM), seen["SIGTERM"])
	assert.Equal(t, int(unix.SIGKILL), seen["SIGKILL"])
}

func TestExitCodeError(t *testing.T) {
	err := &ExitCodeError{Name: "thermald", Want: 0, Got: -1, Signal: "SIGSEGV"}
	assert.Equal(t, "thermald exited with code -1 (signal SIGSEGV), want 0", err.Error())
	assert.False(t, errors.Is(err, ErrKilled))
}
