package outputcheck

import (
	"errors"
	"time"
)

// Assertion failure kinds. Use errors.Is to test an error returned by a
// Checker method against them.
var (
	// ErrTimeout reports that a required pattern did not appear before the
	// deadline.
	ErrTimeout = errors.New("timed out")
	// ErrEndOfStream reports that the stream closed before the required
	// pattern appeared.
	ErrEndOfStream = errors.New("no further messages")
	// ErrUnexpectedMatch reports that a forbidden pattern appeared during a
	// negative wait.
	ErrUnexpectedMatch = errors.New("unexpected match")
	// ErrNotClosed reports that the write side was still open when
	// AssertClosed gave up.
	ErrNotClosed = errors.New("not closed")
)

// AssertionError is the error returned for every failed assertion.
type AssertionError struct {
	// Kind is one of ErrTimeout, ErrEndOfStream, ErrUnexpectedMatch or
	// ErrNotClosed.
	Kind error
	// Pattern is the regular expression that was searched for. Empty for
	// ErrNotClosed.
	Pattern string
	// Timeout is the timeout or wait the call was made with.
	Timeout time.Duration
	// Elapsed is the time spent inside the call.
	Elapsed time.Duration
	// Consumed holds the lines the call removed from the buffer, including
	// the offending line for ErrUnexpectedMatch.
	Consumed []string
	// Message is the caller supplied failure message, or a default one.
	Message string
}

func (e *AssertionError) Error() string {
	return e.Message
}

func (e *AssertionError) Unwrap() error {
	return e.Kind
}
