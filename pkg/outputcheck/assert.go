package outputcheck

import (
	"fmt"
	"regexp"
	"time"
)

// CheckLine waits until a line containing needle is read and returns every
// line consumed on the way, the matching line last. Lines that do not match
// are removed from the buffer.
//
// It fails with ErrTimeout when timeout elapses first, and with
// ErrEndOfStream when the stream ends first. A non-empty failmsg replaces the
// default error message.
func (c *Checker) CheckLine(needle string, timeout time.Duration, failmsg string) ([]string, error) {
	return c.checkLine(literal(needle), timeout, failmsg)
}

// CheckLineRe is like CheckLine, but searches each line for the regular
// expression pattern.
func (c *Checker) CheckLineRe(pattern string, timeout time.Duration, failmsg string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern %q: %w", pattern, err)
	}
	return c.checkLine(re, timeout, failmsg)
}

// CheckNoLine consumes lines for up to wait and fails with
// ErrUnexpectedMatch as soon as one of them contains needle. It succeeds when
// wait elapses or the stream ends without a match, returning the lines it
// consumed.
func (c *Checker) CheckNoLine(needle string, wait time.Duration, failmsg string) ([]string, error) {
	return c.checkNoLine(literal(needle), wait, failmsg)
}

// CheckNoLineRe is like CheckNoLine, but searches each line for the regular
// expression pattern.
func (c *Checker) CheckNoLineRe(pattern string, wait time.Duration, failmsg string) ([]string, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern %q: %w", pattern, err)
	}
	return c.checkNoLine(re, wait, failmsg)
}

func (c *Checker) checkLine(re *regexp.Regexp, timeout time.Duration, failmsg string) ([]string, error) {
	begin := time.Now()
	deadline := begin.Add(timeout)
	var consumed []string

	for {
		line, ok, eof := c.lines.pop()
		if !ok {
			if eof {
				msg := fmt.Sprintf("no further messages while waiting for needle %q", re.String())
				if failmsg != "" {
					msg = "no further messages: " + failmsg
				}
				return nil, c.failure(ErrEndOfStream, re, timeout, begin, consumed, msg)
			}
			if !c.lines.wait(deadline) {
				msg := fmt.Sprintf("timed out waiting for needle %q (timeout: %0.2fs)", re.String(), timeout.Seconds())
				if failmsg != "" {
					msg = failmsg
				}
				return nil, c.failure(ErrTimeout, re, timeout, begin, consumed, msg)
			}
			continue
		}

		consumed = append(consumed, line)
		if re.MatchString(line) {
			return consumed, nil
		}
	}
}

func (c *Checker) checkNoLine(re *regexp.Regexp, wait time.Duration, failmsg string) ([]string, error) {
	begin := time.Now()
	deadline := begin.Add(wait)
	var consumed []string

	for {
		line, ok, eof := c.lines.pop()
		if !ok {
			if eof || !c.lines.wait(deadline) {
				return consumed, nil
			}
			continue
		}

		consumed = append(consumed, line)
		if re.MatchString(line) {
			msg := fmt.Sprintf("found needle %q but shouldn't have been there (wait: %0.2fs)", re.String(), wait.Seconds())
			if failmsg != "" {
				msg = failmsg
			}
			return nil, c.failure(ErrUnexpectedMatch, re, wait, begin, consumed, msg)
		}
	}
}

func (c *Checker) failure(kind error, re *regexp.Regexp, timeout time.Duration, begin time.Time, consumed []string, msg string) *AssertionError {
	err := &AssertionError{
		Kind:     kind,
		Pattern:  re.String(),
		Timeout:  timeout,
		Elapsed:  time.Since(begin),
		Consumed: consumed,
		Message:  msg,
	}
	c.logger.Debug("assertion failed",
		"kind", kind.Error(),
		"pattern", err.Pattern,
		"elapsed", err.Elapsed,
		"consumed", len(consumed),
	)
	return err
}

func literal(needle string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(needle))
}
