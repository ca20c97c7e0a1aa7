// Package ledger is the authoritative side of time tracking: it owns every
// TimeLog, computes totals from its own clock, and enforces that a job has at
// most one log that is not completed.
package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aceteam-ai/shiftclock/internal/events"
	"github.com/aceteam-ai/shiftclock/internal/schedule"
	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

// Errors for requests that do not fit the active log's status.
var (
	// ErrAlreadyPaused indicates pause on a paused log
	ErrAlreadyPaused = fmt.Errorf("%w: time log is already paused", timelog.ErrConflict)

	// ErrNotPaused indicates resume on a running log
	ErrNotPaused = fmt.Errorf("%w: time log is not paused", timelog.ErrConflict)
)

// Config holds configuration for a Ledger.
type Config struct {
	// Store persists logs (required)
	Store *Store

	// Jobs rejects unknown job IDs when set
	Jobs timelog.JobSource

	// Clock stamps every transition (default: system clock)
	Clock schedule.Clock

	// Publisher receives every committed transition (optional)
	Publisher events.Publisher

	// LogFn is an optional callback for logging
	LogFn func(level, msg string)
}

// Ledger implements timelog.Client against a Store.
type Ledger struct {
	store *Store
	jobs  timelog.JobSource
	clock schedule.Clock
	pub   events.Publisher
	logFn func(level, msg string)

	// mu serialises read-modify-write cycles within this process; the
	// store's unique index covers other processes
	mu sync.Mutex
}

var _ timelog.Client = (*Ledger)(nil)

// New creates a ledger.
func New(cfg Config) (*Ledger, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("Store is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = schedule.NewSystem()
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Discard
	}
	return &Ledger{
		store: cfg.Store,
		jobs:  cfg.Jobs,
		clock: cfg.Clock,
		pub:   cfg.Publisher,
		logFn: cfg.LogFn,
	}, nil
}

func (l *Ledger) log(level, format string, args ...any) {
	if l.logFn != nil {
		l.logFn(level, fmt.Sprintf(format, args...))
	}
}

func (l *Ledger) checkJob(ctx context.Context, jobID string) error {
	if jobID == "" {
		return fmt.Errorf("job ID is required: %w", timelog.ErrNotFound)
	}
	if l.jobs == nil {
		return nil
	}
	if _, err := l.jobs.GetJob(ctx, jobID); err != nil {
		return fmt.Errorf("job %s: %w", jobID, err)
	}
	return nil
}

// now truncates to whole seconds so stored start times and totals agree.
func (l *Ledger) now() time.Time {
	return l.clock.Now().UTC().Truncate(time.Second)
}

func runSeconds(tl timelog.TimeLog, now time.Time) int64 {
	if tl.Status != timelog.StatusInProgress {
		return 0
	}
	return max(int64(now.Sub(tl.StartTime)/time.Second), 0)
}

// Start opens a new in-progress log.
func (l *Ledger) Start(ctx context.Context, jobID string) (timelog.TimeLog, error) {
	if err := l.checkJob(ctx, jobID); err != nil {
		return timelog.TimeLog{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, found, err := l.store.Active(ctx, jobID); err != nil {
		return timelog.TimeLog{}, err
	} else if found {
		return timelog.TimeLog{}, timelog.ErrActiveLogExists
	}

	now := l.now()
	tl := timelog.TimeLog{
		ID:            uuid.NewString(),
		JobID:         jobID,
		Status:        timelog.StatusInProgress,
		StartTime:     now,
		LastResumedAt: &now,
		CreatedAt:     now,
	}
	if err := l.store.Insert(ctx, tl); err != nil {
		return timelog.TimeLog{}, err
	}
	l.commit(ctx, events.Started, tl)
	return tl, nil
}

// Pause folds the current run into total_seconds.
func (l *Ledger) Pause(ctx context.Context, jobID string) (timelog.TimeLog, error) {
	return l.transition(ctx, jobID, events.Paused, func(tl *timelog.TimeLog, now time.Time) error {
		if tl.Status == timelog.StatusPaused {
			return ErrAlreadyPaused
		}
		tl.TotalSeconds += runSeconds(*tl, now)
		tl.Status = timelog.StatusPaused
		return nil
	})
}

// Resume starts a new run on a paused log.
func (l *Ledger) Resume(ctx context.Context, jobID string) (timelog.TimeLog, error) {
	return l.transition(ctx, jobID, events.Resumed, func(tl *timelog.TimeLog, now time.Time) error {
		if tl.Status != timelog.StatusPaused {
			return ErrNotPaused
		}
		tl.Status = timelog.StatusInProgress
		tl.StartTime = now
		tl.LastResumedAt = &now
		return nil
	})
}

// Stop completes the active log, folding in a running interval.
func (l *Ledger) Stop(ctx context.Context, jobID, notes string) (timelog.TimeLog, error) {
	return l.transition(ctx, jobID, events.Stopped, func(tl *timelog.TimeLog, now time.Time) error {
		tl.TotalSeconds += runSeconds(*tl, now)
		tl.Status = timelog.StatusCompleted
		tl.EndTime = &now
		tl.Notes = notes
		return nil
	})
}

func (l *Ledger) transition(ctx context.Context, jobID string, typ events.Type, apply func(*timelog.TimeLog, time.Time) error) (timelog.TimeLog, error) {
	if err := l.checkJob(ctx, jobID); err != nil {
		return timelog.TimeLog{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tl, found, err := l.store.Active(ctx, jobID)
	if err != nil {
		return timelog.TimeLog{}, err
	}
	if !found {
		return timelog.TimeLog{}, timelog.ErrNoActiveLog
	}
	if err := apply(&tl, l.now()); err != nil {
		return timelog.TimeLog{}, err
	}
	if err := l.store.Update(ctx, tl); err != nil {
		return timelog.TimeLog{}, err
	}
	l.commit(ctx, typ, tl)
	return tl, nil
}

func (l *Ledger) commit(ctx context.Context, typ events.Type, tl timelog.TimeLog) {
	l.log("info", "time log %s for job %s %s (total %ds)", tl.ID, tl.JobID, typ, tl.TotalSeconds)
	e := events.Event{Type: typ, JobID: tl.JobID, Log: tl, At: l.clock.Now(), Source: "ledger"}
	if err := l.pub.Publish(ctx, e); err != nil {
		l.log("warning", "failed to publish %s event: %v", typ, err)
	}
}

// ListLogs returns the job's logs, newest first.
func (l *Ledger) ListLogs(ctx context.Context, jobID string) ([]timelog.TimeLog, error) {
	if err := l.checkJob(ctx, jobID); err != nil {
		return nil, err
	}
	logs, err := l.store.List(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []timelog.TimeLog{}
	}
	return logs, nil
}
