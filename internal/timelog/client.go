package timelog

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Client is the remote, authoritative side of time tracking. Every mutating
// call acts on the job's single non-completed log.
type Client interface {
	Start(ctx context.Context, jobID string) (TimeLog, error)
	Pause(ctx context.Context, jobID string) (TimeLog, error)
	Resume(ctx context.Context, jobID string) (TimeLog, error)
	Stop(ctx context.Context, jobID, notes string) (TimeLog, error)
	ListLogs(ctx context.Context, jobID string) ([]TimeLog, error)
}

// JobSource looks up jobs and their shifts.
type JobSource interface {
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// Errors returned by the service and matched by the client.
var (
	// ErrNotFound indicates an unknown job or no log to act on
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates the request does not fit the log's current state
	ErrConflict = errors.New("conflict")

	// ErrActiveLogExists indicates start was called while a log is open
	ErrActiveLogExists = fmt.Errorf("%w: job already has an active time log", ErrConflict)

	// ErrNoActiveLog indicates there is no open log for the job
	ErrNoActiveLog = fmt.Errorf("%w: job has no active time log", ErrNotFound)

	// ErrUnauthorized indicates a missing or rejected API key
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates the service throttled the caller
	ErrRateLimited = errors.New("rate limit exceeded, please try again later")
)

// APIError is a non-2xx response from the service.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("time log API returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("time log API returned status %d: %s", e.StatusCode, e.Message)
}

// Is maps status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrConflict:
		return e.StatusCode == http.StatusConflict
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// StatusCodeFor maps an error onto the HTTP status the service answers with.
func StatusCodeFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}
