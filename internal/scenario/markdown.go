package scenario

import (
	"fmt"
	"strings"
	"time"
)

// Markdown renders the report as a Markdown document.
func (r *Report) Markdown() string {
	var b strings.Builder

	status := "PASS"
	if !r.Passed() {
		status = "FAIL"
	}
	fmt.Fprintf(&b, "# %s: %s\n\n", r.Name, status)

	fmt.Fprintf(&b, "- Command: %s\n", code(strings.Join(r.Argv, " ")))
	fmt.Fprintf(&b, "- Started: %s\n", r.Started.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Duration: %s\n", r.Duration.Round(time.Millisecond))
	if r.Daemon.PID != 0 {
		fmt.Fprintf(&b, "- PID: %d\n", r.Daemon.PID)
	}
	exit := fmt.Sprintf("%d", r.Daemon.ExitCode)
	if r.Daemon.Signal != "" {
		exit += " (" + r.Daemon.Signal + ")"
	}
	fmt.Fprintf(&b, "- Exit code: %s\n\n", exit)

	b.WriteString("## Steps\n\n")
	if len(r.Steps) == 0 {
		b.WriteString("No steps.\n\n")
	} else {
		b.WriteString("| # | Step | Pattern | Result | Lines | Time |\n")
		b.WriteString("|---|------|---------|--------|-------|------|\n")
		for _, s := range r.Steps {
			result := "ok"
			if s.Err != nil {
				result = "**FAIL**"
			}
			pattern := ""
			if s.Action != ActionClear {
				pattern = cell(code(s.Pattern))
			}
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %d | %s |\n",
				s.Index+1, s.Action, pattern, result, len(s.Consumed), s.Duration.Round(time.Millisecond))
		}
		b.WriteString("\n")
	}

	for _, s := range r.Steps {
		if s.Err == nil {
			continue
		}
		fmt.Fprintf(&b, "## Failure in step %d\n\n", s.Index+1)
		fmt.Fprintf(&b, "%s\n\n", s.Err)
		if len(s.Consumed) > 0 {
			b.WriteString("Lines consumed before the failure:\n\n")
			fence(&b, s.Consumed)
		}
	}

	b.WriteString("## Stop\n\n")
	switch {
	case r.Stop == nil:
		b.WriteString("Not reached, daemon was killed.\n")
	case r.Stop.Err != nil:
		fmt.Fprintf(&b, "**FAIL** (expected exit code %d): %s\n", r.Stop.Retcode, r.Stop.Err)
	default:
		fmt.Fprintf(&b, "ok, exit code %d after %s\n", r.Stop.Retcode, r.Stop.Duration.Round(time.Millisecond))
	}

	return b.String()
}

// code formats s as an inline code span, choosing a fence that does not
// occur in s.
func code(s string) string {
	if s == "" {
		return ""
	}
	delim := "`"
	for strings.Contains(s, delim) {
		delim += "`"
	}
	if strings.HasPrefix(s, "`") || strings.HasSuffix(s, "`") {
		s = " " + s + " "
	}
	return delim + s + delim
}

// cell escapes pipes in a table cell.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func fence(b *strings.Builder, lines []string) {
	delim := "```"
	for _, l := range lines {
		for strings.Contains(l, delim) {
			delim += "`"
		}
	}
	b.WriteString(delim + "\n")
	for _, l := range lines {
		b.WriteString(l + "\n")
	}
	b.WriteString(delim + "\n\n")
}
