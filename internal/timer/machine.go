// Package timer owns the client-side view of a job's work session: a small
// state machine driven by user actions and confirmed by the time log service,
// with a local display counter that ticks between confirmations and is
// periodically resynced against the run's start time.
//
// The service is the source of truth. Every field here is a projection of the
// last confirmed TimeLog plus local extrapolation, and Mount rebuilds it from
// a fresh query.
package timer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aceteam-ai/shiftclock/internal/availability"
	"github.com/aceteam-ai/shiftclock/internal/events"
	"github.com/aceteam-ai/shiftclock/internal/schedule"
	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

// Phase is the machine's position in the session lifecycle.
type Phase int

const (
	Idle Phase = iota
	Running
	Paused
	// Stopping is held while a stop request is in flight.
	Stopping
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopping:
		return "stopping"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Action is a request that needs the service's confirmation.
type Action string

const (
	ActionNone    Action = ""
	ActionRefresh Action = "refresh"
	ActionStart   Action = "start"
	ActionPause   Action = "pause"
	ActionResume  Action = "resume"
	ActionStop    Action = "stop"
)

// Authorizer reports whether the current user may track time.
type Authorizer interface {
	CanTrackTime() bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func() bool

func (f AuthorizerFunc) CanTrackTime() bool { return f() }

// Config holds configuration for a Machine.
type Config struct {
	// JobID is the job whose session is tracked (required)
	JobID string

	// Job supplies the date range and shifts. When nil, Jobs is queried on
	// every Mount.
	Job  *timelog.Job
	Jobs timelog.JobSource

	// Client is the time log service (required)
	Client timelog.Client

	// Clock drives ticks and timestamps (default: system clock)
	Clock schedule.ClockScheduler

	// Zone is the viewer's zone for availability (default: time.Local)
	Zone *time.Location

	// Authorizer gates every mutating action (default: always allowed)
	Authorizer Authorizer

	// Publisher receives confirmed transitions (optional)
	Publisher events.Publisher

	// OnChange is called after every state change and tick, outside the
	// machine's lock (optional). It may call Close or any action; from a
	// tick, tasks stopped that way finish exiting after the call returns.
	OnChange func(Snapshot)

	// LogFn is an optional callback for logging
	LogFn func(level, msg string)

	// TickInterval is the display refresh period (default: 1s)
	TickInterval time.Duration

	// ResyncInterval recomputes the display from the run's start time (default: 60s)
	ResyncInterval time.Duration

	// AvailabilityInterval re-evaluates the shift windows (default: 30s)
	AvailabilityInterval time.Duration
}

// Snapshot is an immutable copy of the machine's view state.
type Snapshot struct {
	JobID           string
	Phase           Phase
	Pending         Action
	DisplaySeconds  int64
	BaselineSeconds int64
	StartTime       time.Time
	ActiveLogID     string

	// Ticking is false while Running only after a failed pause froze the
	// display; the service still counts the session.
	Ticking bool

	Availability    availability.Result
	AvailabilityErr error

	Mounted bool
	Closed  bool
}

// Busy reports whether an action is waiting for the service.
func (s Snapshot) Busy() bool {
	return s.Pending != ActionNone
}

// Clock renders the display counter as H:MM:SS.
func (s Snapshot) Clock() string {
	return availability.FormatClock(s.DisplaySeconds)
}

// Machine is the session timer for one job. It is safe for concurrent use;
// actions against the same machine are serialised by the pending flag and
// rejected with ErrActionPending rather than queued.
type Machine struct {
	jobID    string
	client   timelog.Client
	jobs     timelog.JobSource
	clock    schedule.ClockScheduler
	zone     *time.Location
	auth     Authorizer
	pub      events.Publisher
	onChange func(Snapshot)

	// dispatching counts OnChange calls made from scheduled callbacks
	dispatching atomic.Int32
	logFn    func(level, msg string)

	tickInterval   time.Duration
	resyncInterval time.Duration
	availInterval  time.Duration

	mu       sync.Mutex
	job      timelog.Job
	fixedJob bool
	mounted  bool
	closed   bool

	phase   Phase
	pending Action
	// prior is the stable phase restored when a stop fails
	prior Phase

	logID     string
	baseline  int64
	display   int64
	startTime time.Time
	lastTick  time.Time
	run       time.Duration

	avail    availability.Result
	availErr error

	ticking bool
	tickGen int
	tick    schedule.Task
	resync  schedule.Task
	watch   schedule.Task
}

// New creates a machine. Call Mount before any action.
func New(cfg Config) (*Machine, error) {
	if cfg.JobID == "" {
		return nil, fmt.Errorf("JobID is required")
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("Client is required")
	}
	if cfg.Job == nil && cfg.Jobs == nil {
		return nil, fmt.Errorf("either Job or Jobs is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = schedule.NewSystem()
	}
	if cfg.Zone == nil {
		cfg.Zone = time.Local
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = AuthorizerFunc(func() bool { return true })
	}
	if cfg.Publisher == nil {
		cfg.Publisher = events.Discard
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if cfg.ResyncInterval <= 0 {
		cfg.ResyncInterval = 60 * time.Second
	}
	if cfg.AvailabilityInterval <= 0 {
		cfg.AvailabilityInterval = 30 * time.Second
	}

	m := &Machine{
		jobID:          cfg.JobID,
		client:         cfg.Client,
		jobs:           cfg.Jobs,
		clock:          cfg.Clock,
		zone:           cfg.Zone,
		auth:           cfg.Authorizer,
		pub:            cfg.Publisher,
		onChange:       cfg.OnChange,
		logFn:          cfg.LogFn,
		tickInterval:   cfg.TickInterval,
		resyncInterval: cfg.ResyncInterval,
		availInterval:  cfg.AvailabilityInterval,
	}
	if cfg.Job != nil {
		m.job = *cfg.Job
		m.fixedJob = true
	}
	return m, nil
}

func (m *Machine) log(level, format string, args ...any) {
	if m.logFn != nil {
		m.logFn(level, fmt.Sprintf(format, args...))
	}
}

// Snapshot returns the current view state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		JobID:           m.jobID,
		Phase:           m.phase,
		Pending:         m.pending,
		DisplaySeconds:  m.display,
		BaselineSeconds: m.baseline,
		StartTime:       m.startTime,
		ActiveLogID:     m.logID,
		Ticking:         m.ticking,
		Availability:    m.avail,
		AvailabilityErr: m.availErr,
		Mounted:         m.mounted,
		Closed:          m.closed,
	}
}

func (m *Machine) notify() {
	if m.onChange == nil {
		return
	}
	m.onChange(m.Snapshot())
}

// notifyFromTask is notify for scheduled callbacks, whose task cannot be
// waited on until the callback returns.
func (m *Machine) notifyFromTask() {
	m.dispatching.Add(1)
	defer m.dispatching.Add(-1)
	m.notify()
}

// Job returns the job the machine evaluates availability against.
func (m *Machine) Job() timelog.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.job
}

// Mount derives the phase from a fresh query of the job's logs and starts
// the availability watch. It may jump straight to Running or Paused when the
// session was started on another device or before a reload.
func (m *Machine) Mount(ctx context.Context) error {
	return m.refresh(ctx)
}

// Refresh re-queries the service and rebuilds the view state. With no
// intervening action it always lands on the same phase.
func (m *Machine) Refresh(ctx context.Context) error {
	return m.refresh(ctx)
}

func (m *Machine) refresh(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.pending != ActionNone {
		m.mu.Unlock()
		return ErrActionPending
	}
	m.pending = ActionRefresh
	fixed := m.fixedJob
	m.mu.Unlock()
	m.notify()

	var job timelog.Job
	var err error
	if !fixed {
		job, err = m.jobs.GetJob(ctx, m.jobID)
	}
	var logs []timelog.TimeLog
	if err == nil {
		logs, err = m.client.ListLogs(ctx, m.jobID)
	}

	m.mu.Lock()
	if m.closed {
		m.pending = ActionNone
		m.mu.Unlock()
		m.log("debug", "timer closed, discarding refresh for job %s", m.jobID)
		return nil
	}
	m.pending = ActionNone
	if err != nil {
		m.mu.Unlock()
		m.notify()
		return &RemoteError{Action: ActionRefresh, Err: err}
	}
	if !fixed {
		m.job = job
	}
	active, found := timelog.FindActive(logs)
	stale := m.adoptLocked(active, found)
	m.mounted = true
	m.evaluateLocked(m.clock.Now())
	if m.watch == nil {
		m.watch = m.clock.Every(m.availInterval, m.onAvailabilityTick)
	}
	phase := m.phase
	m.mu.Unlock()

	m.cancel(stale...)
	m.log("debug", "timer for job %s mounted in phase %s", m.jobID, phase)
	m.notify()
	return nil
}

// adoptLocked replaces the view state with the given log. It returns tasks
// the caller must cancel once the lock is released.
func (m *Machine) adoptLocked(l timelog.TimeLog, found bool) []schedule.Task {
	if !found {
		return m.clearLocked()
	}

	now := m.clock.Now()
	m.logID = l.ID
	m.baseline = l.TotalSeconds

	switch l.Status {
	case timelog.StatusInProgress:
		m.phase = Running
		m.startTime = l.StartTime
		if m.startTime.IsZero() {
			m.startTime = now
		}
		m.run = max(now.Sub(m.startTime), 0)
		m.display = m.baseline + int64(m.run/time.Second)
		m.lastTick = now
		return m.startTickingLocked()
	default:
		m.phase = Paused
		m.startTime = time.Time{}
		m.run = 0
		m.display = m.baseline
		return m.stopTickingLocked()
	}
}

func (m *Machine) clearLocked() []schedule.Task {
	m.phase = Idle
	m.logID = ""
	m.baseline = 0
	m.display = 0
	m.startTime = time.Time{}
	m.run = 0
	return m.stopTickingLocked()
}

// startTickingLocked (re)starts the tick and resync tasks for a new Running
// interval, returning any tasks it replaced.
func (m *Machine) startTickingLocked() []schedule.Task {
	old := m.stopTickingLocked()
	m.tickGen++
	gen := m.tickGen
	m.ticking = true
	m.tick = m.clock.Every(m.tickInterval, func(now time.Time) { m.onTick(gen, now) })
	m.resync = m.clock.Every(m.resyncInterval, func(now time.Time) { m.onResync(gen, now) })
	return old
}

func (m *Machine) stopTickingLocked() []schedule.Task {
	var old []schedule.Task
	if m.tick != nil {
		old = append(old, m.tick)
	}
	if m.resync != nil {
		old = append(old, m.resync)
	}
	m.tick, m.resync = nil, nil
	m.ticking = false
	m.tickGen++
	return old
}

// cancel must be called without holding m.mu: Task.Cancel waits for an
// in-flight callback, and callbacks take the lock. Inside OnChange from a
// scheduled callback the wait would never end, so tasks are cancelled in the
// background; generation and closed checks make any last tick a no-op.
func (m *Machine) cancel(tasks ...schedule.Task) {
	if len(tasks) == 0 {
		return
	}
	if m.dispatching.Load() > 0 {
		go cancelAll(tasks)
		return
	}
	cancelAll(tasks)
}

func cancelAll(tasks []schedule.Task) {
	for _, t := range tasks {
		t.Cancel()
	}
}

// onTick extends the run by the wall-clock time measured since the last tick,
// so a late or skipped tick catches up instead of losing time.
func (m *Machine) onTick(gen int, now time.Time) {
	m.mu.Lock()
	if gen != m.tickGen || m.closed || m.phase != Running {
		m.mu.Unlock()
		return
	}
	if delta := now.Sub(m.lastTick); delta > 0 {
		m.run += delta
	}
	m.lastTick = now
	m.display = m.baseline + int64(m.run/time.Second)
	m.mu.Unlock()
	m.notifyFromTask()
}

// onResync recomputes the run directly from its start time. The display
// never moves backwards inside a Running interval.
func (m *Machine) onResync(gen int, now time.Time) {
	m.mu.Lock()
	if gen != m.tickGen || m.closed || m.phase != Running {
		m.mu.Unlock()
		return
	}
	measured := now.Sub(m.startTime)
	if measured > m.run {
		m.run = measured
	} else if m.run-measured >= time.Second {
		m.log("debug", "resync: local run %v ahead of start time by %v, keeping display", m.run, m.run-measured)
	}
	m.lastTick = now
	m.display = m.baseline + int64(m.run/time.Second)
	m.mu.Unlock()
	m.notifyFromTask()
}

func (m *Machine) onAvailabilityTick(now time.Time) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	before := m.avail
	m.evaluateLocked(now)
	changed := before != m.avail
	m.mu.Unlock()
	if changed {
		m.notifyFromTask()
	}
}

func (m *Machine) evaluateLocked(now time.Time) (availability.Result, error) {
	m.avail, m.availErr = availability.Evaluate(m.job, now, m.zone)
	return m.avail, m.availErr
}

// Availability re-evaluates the job at the current instant.
func (m *Machine) Availability() (availability.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.evaluateLocked(m.clock.Now())
}

// Close cancels the tick, resync and availability tasks. Requests already in
// flight are not cancelled; their responses are discarded when they arrive.
// Close is idempotent.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	tasks := m.stopTickingLocked()
	if m.watch != nil {
		tasks = append(tasks, m.watch)
		m.watch = nil
	}
	m.mu.Unlock()

	m.cancel(tasks...)
	m.log("debug", "timer for job %s closed", m.jobID)
}
