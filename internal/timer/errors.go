package timer

import (
	"errors"
	"fmt"

	"github.com/aceteam-ai/shiftclock/internal/availability"
)

// Local errors. None of these reach the network.
var (
	// ErrUnauthorized indicates the caller may not track time on this job
	ErrUnauthorized = errors.New("not authorized to track time")

	// ErrActionPending indicates an earlier action has not been confirmed yet
	ErrActionPending = errors.New("another time log action is still pending")

	// ErrInvalidTransition indicates the action does not apply to the current phase
	ErrInvalidTransition = errors.New("action not allowed in current phase")

	// ErrUnavailable indicates the job is outside its date range or shift windows
	ErrUnavailable = errors.New("time tracking is not available")

	// ErrStaleState indicates the log was stopped elsewhere
	ErrStaleState = errors.New("time log is no longer active")

	// ErrNotMounted indicates an action before the first successful Mount
	ErrNotMounted = errors.New("timer has not been mounted")

	// ErrClosed indicates the timer was closed
	ErrClosed = errors.New("timer is closed")
)

// AvailabilityError rejects start or resume while the evaluator reports the
// job unavailable.
type AvailabilityError struct {
	Result availability.Result
}

func (e *AvailabilityError) Error() string {
	return e.Result.Message()
}

func (e *AvailabilityError) Unwrap() error {
	return ErrUnavailable
}

// RemoteError is a failed call to the time log service. The machine stays in
// its last confirmed phase; nothing is retried.
type RemoteError struct {
	Action Action
	Err    error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("failed to %s time log: %v", e.Action, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
