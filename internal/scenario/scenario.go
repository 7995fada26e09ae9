// Package scenario runs a daemon against an ordered list of output checks
// described in YAML.
package scenario

import (
	"fmt"
	"maps"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"outputcheck/internal/daemon"
)

// Defaults for steps that do not set timeout or wait.
const (
	DefaultTimeout = Duration(time.Second)
	DefaultWait    = Duration(time.Second)
)

// Step actions.
const (
	ActionCheckLine     = "check_line"
	ActionCheckLineRe   = "check_line_re"
	ActionCheckNoLine   = "check_no_line"
	ActionCheckNoLineRe = "check_no_line_re"
	ActionClear         = "clear"
)

// Scenario is a single test case.
type Scenario struct {
	Name   string     `yaml:"name"`
	Daemon DaemonSpec `yaml:"daemon"`
	Steps  []Step     `yaml:"steps"`
	Stop   StopSpec   `yaml:"stop"`
}

// DaemonSpec describes the daemon to start. Binary overrides the lookup by
// name (TOP_BUILD_DIR, ./name, $PATH).
type DaemonSpec struct {
	Name        string            `yaml:"name"`
	Binary      string            `yaml:"binary"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	Dir         string            `yaml:"dir"`
	TTY         bool              `yaml:"tty"`
	StopSignal  string            `yaml:"stop_signal"`
	StopTimeout Duration          `yaml:"stop_timeout"`
}

// StopSpec describes the expected shutdown.
type StopSpec struct {
	Retcode int `yaml:"retcode"`
}

// Step is one check. Exactly one action field must be set.
type Step struct {
	CheckLine     *string  `yaml:"check_line"`
	CheckLineRe   *string  `yaml:"check_line_re"`
	CheckNoLine   *string  `yaml:"check_no_line"`
	CheckNoLineRe *string  `yaml:"check_no_line_re"`
	Clear         bool     `yaml:"clear"`
	Timeout       Duration `yaml:"timeout"`
	Wait          Duration `yaml:"wait"`
	FailMsg       string   `yaml:"failmsg"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	sc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

// Parse decodes and validates a scenario.
func Parse(data []byte) (*Scenario, error) {
	sc := &Scenario{}
	if err := yaml.Unmarshal(data, sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("validating scenario: %w", err)
	}
	return sc, nil
}

// Validate checks the scenario for errors.
func (s *Scenario) Validate() error {
	var errs []string

	if s.Daemon.Name == "" && s.Daemon.Binary == "" {
		errs = append(errs, "daemon.name or daemon.binary is required")
	}
	if s.Daemon.StopSignal != "" {
		if _, err := daemon.ParseSignal(s.Daemon.StopSignal); err != nil {
			errs = append(errs, fmt.Sprintf("daemon.stop_signal: %v", err))
		}
	}
	if s.Daemon.StopTimeout < 0 {
		errs = append(errs, "daemon.stop_timeout must not be negative")
	}

	for i, step := range s.Steps {
		for _, e := range step.validate() {
			errs = append(errs, fmt.Sprintf("steps[%d]: %s", i, e))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// DisplayName returns the scenario name, or the daemon name if unset.
func (s *Scenario) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	return s.daemonName()
}

func (s *Scenario) daemonName() string {
	if s.Daemon.Name != "" {
		return s.Daemon.Name
	}
	return s.Daemon.Binary
}

// env returns the daemon's extra environment sorted by key.
func (d DaemonSpec) env() []string {
	var out []string
	for _, k := range slices.Sorted(maps.Keys(d.Env)) {
		out = append(out, k+"="+d.Env[k])
	}
	return out
}

// Action returns the name of the step's action, or "" if none is set.
func (s Step) Action() string {
	actions := s.actions()
	if len(actions) != 1 {
		return ""
	}
	return actions[0]
}

// Pattern returns the needle or regular expression of the step.
func (s Step) Pattern() string {
	for _, p := range []*string{s.CheckLine, s.CheckLineRe, s.CheckNoLine, s.CheckNoLineRe} {
		if p != nil {
			return *p
		}
	}
	return ""
}

func (s Step) actions() []string {
	var actions []string
	if s.CheckLine != nil {
		actions = append(actions, ActionCheckLine)
	}
	if s.CheckLineRe != nil {
		actions = append(actions, ActionCheckLineRe)
	}
	if s.CheckNoLine != nil {
		actions = append(actions, ActionCheckNoLine)
	}
	if s.CheckNoLineRe != nil {
		actions = append(actions, ActionCheckNoLineRe)
	}
	if s.Clear {
		actions = append(actions, ActionClear)
	}
	return actions
}

func (s Step) validate() []string {
	actions := s.actions()
	switch len(actions) {
	case 0:
		return []string{"no action set"}
	case 1:
	default:
		return []string{fmt.Sprintf("more than one action set: %s", strings.Join(actions, ", "))}
	}

	var errs []string
	if s.Timeout < 0 || s.Wait < 0 {
		errs = append(errs, "timeout and wait must not be negative")
	}

	switch actions[0] {
	case ActionCheckLine, ActionCheckLineRe:
		if s.Wait != 0 {
			errs = append(errs, fmt.Sprintf("wait is not valid for %s, use timeout", actions[0]))
		}
	case ActionCheckNoLine, ActionCheckNoLineRe:
		if s.Timeout != 0 {
			errs = append(errs, fmt.Sprintf("timeout is not valid for %s, use wait", actions[0]))
		}
	case ActionClear:
		if s.Timeout != 0 || s.Wait != 0 || s.FailMsg != "" {
			errs = append(errs, "clear takes no options")
		}
	}

	switch actions[0] {
	case ActionCheckLineRe, ActionCheckNoLineRe:
		if _, err := regexp.Compile(s.Pattern()); err != nil {
			errs = append(errs, fmt.Sprintf("invalid pattern: %v", err))
		}
	}

	return errs
}

func (s Step) timeout() Duration {
	if s.Timeout == 0 {
		return DefaultTimeout
	}
	return s.Timeout
}

func (s Step) wait() Duration {
	if s.Wait == 0 {
		return DefaultWait
	}
	return s.Wait
}
