package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"outputcheck/internal/daemon"
	"outputcheck/pkg/outputcheck"
	"outputcheck/pkg/outputlog"
)

// RunOptions configures Run.
type RunOptions struct {
	// Output receives the daemon's output verbatim. Nil means os.Stdout.
	Output io.Writer

	// Logger receives supervision and check diagnostics. Nil means
	// slog.Default().
	Logger *slog.Logger

	// Transcript, if set, records the daemon's output and every check
	// result. The caller closes it.
	Transcript *outputlog.Writer

	// Env entries (key=value) are added to the daemon's environment after
	// the scenario's own.
	Env []string
}

// Report is the outcome of a scenario run.
type Report struct {
	Name     string
	Argv     []string
	Started  time.Time
	Duration time.Duration
	Steps    []StepResult
	Stop     *StopResult // nil if the stop was not reached
	Daemon   daemon.Result
}

// StepResult is the outcome of a single step.
type StepResult struct {
	Index    int
	Action   string
	Pattern  string
	Consumed []string
	Duration time.Duration
	Err      error
}

// StopResult is the outcome of stopping the daemon.
type StopResult struct {
	Retcode  int
	Duration time.Duration
	Err      error
}

// Passed reports whether every step and the stop succeeded.
func (r *Report) Passed() bool {
	return r.Err() == nil
}

// Err returns the first failure of the run.
func (r *Report) Err() error {
	for _, step := range r.Steps {
		if step.Err != nil {
			return fmt.Errorf("step %d (%s): %w", step.Index+1, step.Action, step.Err)
		}
	}
	if r.Stop == nil {
		return errors.New("daemon was not stopped")
	}
	if r.Stop.Err != nil {
		return fmt.Errorf("stop: %w", r.Stop.Err)
	}
	return nil
}

// Run starts the scenario's daemon, executes the steps in order and stops the
// daemon. It stops at the first failing step and kills the daemon instead of
// stopping it. The returned error is the first failure; the report is
// complete up to that point. A nil report means the daemon could not be
// started.
func Run(ctx context.Context, sc *Scenario, opts RunOptions) (*Report, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("scenario", sc.DisplayName())

	cfg, err := daemonConfig(sc, opts, logger)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Name:    sc.DisplayName(),
		Argv:    cfg.Argv(),
		Started: time.Now(),
	}

	d, err := daemon.Start(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer d.Kill()

	rec := recorder{w: opts.Transcript, logger: logger}
	chk := d.Output()

	failed := false
	for i, step := range sc.Steps {
		if err := ctx.Err(); err != nil {
			report.Steps = append(report.Steps, StepResult{Index: i, Action: step.Action(), Pattern: step.Pattern(), Err: err})
			failed = true
			break
		}

		res := runStep(chk, i, step)
		rec.step(res)
		report.Steps = append(report.Steps, res)
		if res.Err != nil {
			failed = true
			break
		}
	}

	if failed {
		d.Kill()
	} else {
		begin := time.Now()
		err := d.Stop(sc.Stop.Retcode)
		report.Stop = &StopResult{
			Retcode:  sc.Stop.Retcode,
			Duration: time.Since(begin),
			Err:      err,
		}
		rec.stop(report.Stop)
	}

	<-d.Exited()
	report.Daemon = d.Result()
	report.Duration = time.Since(report.Started)

	return report, report.Err()
}

func daemonConfig(sc *Scenario, opts RunOptions, logger *slog.Logger) (daemon.Config, error) {
	cfg := daemon.ConfigFromEnv(sc.daemonName(), sc.Daemon.Args...)
	if sc.Daemon.Binary != "" {
		cfg.Binary = sc.Daemon.Binary
	}
	cfg.Dir = sc.Daemon.Dir
	cfg.TTY = sc.Daemon.TTY
	cfg.StopTimeout = sc.Daemon.StopTimeout.Std()
	cfg.Logger = logger

	if env := append(sc.Daemon.env(), opts.Env...); len(env) > 0 {
		cfg.Env = env
	}

	if sc.Daemon.StopSignal != "" {
		sig, err := daemon.ParseSignal(sc.Daemon.StopSignal)
		if err != nil {
			return cfg, err
		}
		cfg.StopSignal = sig
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if opts.Transcript != nil {
		out = io.MultiWriter(out, opts.Transcript.Stream(outputlog.StreamDaemon))
	}
	cfg.Output = out

	return cfg, nil
}

func runStep(chk *outputcheck.Checker, i int, step Step) StepResult {
	res := StepResult{
		Index:   i,
		Action:  step.Action(),
		Pattern: step.Pattern(),
	}
	begin := time.Now()

	switch res.Action {
	case ActionCheckLine:
		res.Consumed, res.Err = chk.CheckLine(res.Pattern, step.timeout().Std(), step.FailMsg)
	case ActionCheckLineRe:
		res.Consumed, res.Err = chk.CheckLineRe(res.Pattern, step.timeout().Std(), step.FailMsg)
	case ActionCheckNoLine:
		res.Consumed, res.Err = chk.CheckNoLine(res.Pattern, step.wait().Std(), step.FailMsg)
	case ActionCheckNoLineRe:
		res.Consumed, res.Err = chk.CheckNoLineRe(res.Pattern, step.wait().Std(), step.FailMsg)
	case ActionClear:
		res.Consumed = chk.Clear()
	default:
		res.Err = errors.New("invalid step")
	}

	// Failed checks return no lines, but the error still carries what was
	// consumed before the failure.
	var aerr *outputcheck.AssertionError
	if errors.As(res.Err, &aerr) {
		res.Consumed = aerr.Consumed
	}

	res.Duration = time.Since(begin)
	return res
}

// recorder writes check results to the transcript and the log.
type recorder struct {
	w      *outputlog.Writer
	logger *slog.Logger
}

func (r recorder) step(res StepResult) {
	target := res.Action
	if res.Action != ActionClear {
		target = fmt.Sprintf("%s %q", res.Action, res.Pattern)
	}

	if res.Err != nil {
		r.logger.Error("check failed", "step", res.Index+1, "action", res.Action, "pattern", res.Pattern, "error", res.Err)
		r.record("FAIL %s (%s): %v", target, res.Duration.Round(time.Millisecond), res.Err)
		return
	}
	r.logger.Info("check passed", "step", res.Index+1, "action", res.Action, "pattern", res.Pattern, "lines", len(res.Consumed))
	r.record("ok %s (%s)", target, res.Duration.Round(time.Millisecond))
}

func (r recorder) stop(res *StopResult) {
	if res.Err != nil {
		r.logger.Error("stop failed", "retcode", res.Retcode, "error", res.Err)
		r.record("FAIL stop retcode=%d: %v", res.Retcode, res.Err)
		return
	}
	r.logger.Info("daemon stopped", "retcode", res.Retcode)
	r.record("ok stop retcode=%d (%s)", res.Retcode, res.Duration.Round(time.Millisecond))
}

func (r recorder) record(format string, args ...any) {
	if r.w == nil {
		return
	}
	if err := r.w.Recordf(outputlog.StreamCheck, format, args...); err != nil {
		r.logger.Warn("failed to record check result", "error", err)
	}
}
