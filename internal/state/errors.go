package state

import (
	"errors"
	"fmt"
)

// Domain-specific errors for state store operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrStoreClosed is returned by every operation after Close().
	// Hitting this error indicates a process-level lifecycle bug.
	ErrStoreClosed = errors.New("state: store closed")

	// ErrUpdateContention is returned by UpdateWithRetry when the snapshot
	// changed under the caller on every attempt.
	ErrUpdateContention = errors.New("state: update contention")
)

// InvalidStateError reports why a transform result was rejected. The
// committed snapshot is unchanged when this error is returned.
type InvalidStateError struct {
	Reason string
	Err    error
}

func (e *InvalidStateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("state: invalid state: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("state: invalid state: %s", e.Reason)
}

func (e *InvalidStateError) Unwrap() error {
	return e.Err
}

// invalidState builds an InvalidStateError with a formatted reason.
func invalidState(format string, args ...any) *InvalidStateError {
	return &InvalidStateError{Reason: fmt.Sprintf(format, args...)}
}
