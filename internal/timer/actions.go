package timer

import (
	"context"
	"fmt"
	"time"

	"github.com/aceteam-ai/shiftclock/internal/events"
	"github.com/aceteam-ai/shiftclock/internal/schedule"
	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

// Start opens a new time log. It requires phase Idle and an available job.
func (m *Machine) Start(ctx context.Context) error {
	if err := m.begin(ActionStart); err != nil {
		return err
	}
	l, err := m.client.Start(ctx, m.jobID)
	return m.finish(ctx, ActionStart, l, err)
}

// Pause pauses the running log. The display stops as soon as the request is
// sent; if the request fails the machine stays Running with a frozen display
// until the next Refresh.
func (m *Machine) Pause(ctx context.Context) error {
	if err := m.begin(ActionPause); err != nil {
		return err
	}
	l, err := m.client.Pause(ctx, m.jobID)
	return m.finish(ctx, ActionPause, l, err)
}

// Resume continues a paused log. It requires an available job. When the
// service rejects the request the logs are re-queried: a log stopped
// elsewhere returns the machine to Idle with ErrStaleState.
func (m *Machine) Resume(ctx context.Context) error {
	if err := m.begin(ActionResume); err != nil {
		return err
	}
	l, err := m.client.Resume(ctx, m.jobID)
	if err != nil {
		return m.reconcileResume(ctx, err)
	}
	return m.finish(ctx, ActionResume, l, nil)
}

// Stop completes the active log with optional notes.
func (m *Machine) Stop(ctx context.Context, notes string) error {
	if err := m.begin(ActionStop); err != nil {
		return err
	}
	l, err := m.client.Stop(ctx, m.jobID, notes)
	return m.finish(ctx, ActionStop, l, err)
}

func allowedFrom(action Action, p Phase) bool {
	switch action {
	case ActionStart:
		return p == Idle
	case ActionPause:
		return p == Running
	case ActionResume:
		return p == Paused
	case ActionStop:
		return p == Running || p == Paused
	}
	return false
}

// begin runs every local guard and marks the action pending. Rejected
// actions never reach the service.
func (m *Machine) begin(action Action) error {
	m.mu.Lock()
	switch {
	case m.closed:
		m.mu.Unlock()
		return ErrClosed
	case !m.mounted:
		m.mu.Unlock()
		return ErrNotMounted
	case m.pending != ActionNone:
		m.mu.Unlock()
		return ErrActionPending
	case !allowedFrom(action, m.phase):
		phase := m.phase
		m.mu.Unlock()
		return fmt.Errorf("%w: cannot %s while %s", ErrInvalidTransition, action, phase)
	case !m.auth.CanTrackTime():
		m.mu.Unlock()
		return ErrUnauthorized
	}

	now := m.clock.Now()
	if action == ActionStart || action == ActionResume {
		res, err := m.evaluateLocked(now)
		if err != nil {
			m.mu.Unlock()
			return fmt.Errorf("failed to evaluate availability: %w", err)
		}
		if !res.Available {
			m.mu.Unlock()
			return &AvailabilityError{Result: res}
		}
	}

	m.pending = action
	var frozen []schedule.Task
	switch action {
	case ActionPause:
		m.catchUpLocked(now)
		frozen = m.stopTickingLocked()
	case ActionStop:
		m.prior = m.phase
		m.phase = Stopping
	}
	m.mu.Unlock()

	m.cancel(frozen...)
	m.notify()
	return nil
}

func (m *Machine) catchUpLocked(now time.Time) {
	if m.phase != Running || !m.ticking {
		return
	}
	if delta := now.Sub(m.lastTick); delta > 0 {
		m.run += delta
	}
	m.lastTick = now
	m.display = m.baseline + int64(m.run/time.Second)
}

// finish applies a confirmed response, or leaves the last confirmed phase in
// place on error.
func (m *Machine) finish(ctx context.Context, action Action, l timelog.TimeLog, err error) error {
	m.mu.Lock()
	if m.closed {
		m.pending = ActionNone
		m.mu.Unlock()
		m.log("debug", "timer closed, discarding %s response for job %s", action, m.jobID)
		return nil
	}
	m.pending = ActionNone

	if err != nil {
		if action == ActionStop {
			m.phase = m.prior
		}
		m.mu.Unlock()
		m.log("error", "%s failed for job %s: %v", action, m.jobID, err)
		m.notify()
		return &RemoteError{Action: action, Err: err}
	}

	now := m.clock.Now()
	var stale []schedule.Task
	switch action {
	case ActionStart:
		m.logID = l.ID
		m.baseline = l.TotalSeconds
		m.beginRunLocked(now)
		stale = m.startTickingLocked()
	case ActionResume:
		if l.ID != "" {
			m.logID = l.ID
		}
		if l.TotalSeconds > 0 {
			m.baseline = l.TotalSeconds
		}
		m.beginRunLocked(now)
		stale = m.startTickingLocked()
	case ActionPause:
		if l.TotalSeconds > 0 {
			m.baseline = l.TotalSeconds
		} else {
			m.baseline = m.display
		}
		m.display = m.baseline
		m.phase = Paused
		m.startTime = time.Time{}
		m.run = 0
		stale = m.stopTickingLocked()
	case ActionStop:
		stale = m.clearLocked()
	}
	phase := m.phase
	m.mu.Unlock()

	m.cancel(stale...)
	m.log("info", "%s confirmed for job %s, now %s", action, m.jobID, phase)
	m.publish(ctx, action, l, now)
	m.notify()
	return nil
}

func (m *Machine) beginRunLocked(now time.Time) {
	m.phase = Running
	m.startTime = now
	m.lastTick = now
	m.run = 0
	m.display = m.baseline
}

// reconcileResume re-derives the phase after a rejected resume.
func (m *Machine) reconcileResume(ctx context.Context, cause error) error {
	logs, err := m.client.ListLogs(ctx, m.jobID)
	if err != nil {
		m.log("debug", "re-query after failed resume also failed: %v", err)
		return m.finish(ctx, ActionResume, timelog.TimeLog{}, cause)
	}
	active, found := timelog.FindActive(logs)
	if found && active.Status == timelog.StatusPaused {
		return m.finish(ctx, ActionResume, timelog.TimeLog{}, cause)
	}

	m.mu.Lock()
	if m.closed {
		m.pending = ActionNone
		m.mu.Unlock()
		return nil
	}
	m.pending = ActionNone
	stale := m.adoptLocked(active, found)
	m.mu.Unlock()

	m.cancel(stale...)
	m.notify()

	if !found {
		m.log("warning", "time log for job %s was stopped elsewhere", m.jobID)
		return fmt.Errorf("%w: %w", ErrStaleState, &RemoteError{Action: ActionResume, Err: cause})
	}
	m.log("warning", "time log for job %s was resumed elsewhere", m.jobID)
	return nil
}

func (m *Machine) publish(ctx context.Context, action Action, l timelog.TimeLog, now time.Time) {
	typ, ok := events.ForAction(string(action))
	if !ok {
		return
	}
	if l.JobID == "" {
		l.JobID = m.jobID
	}
	e := events.Event{Type: typ, JobID: m.jobID, Log: l, At: now, Source: "timer"}
	if err := m.pub.Publish(ctx, e); err != nil {
		m.log("warning", "failed to publish %s event: %v", typ, err)
	}
}
