package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aceteam-ai/shiftclock/internal/schedule"
	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

// fakeService is an in-memory time log service that keeps its own totals from
// the shared test clock, the way the real ledger does.
type fakeService struct {
	clock schedule.Clock

	mu    sync.Mutex
	logs  []timelog.TimeLog
	calls []string
	fail  map[string]error
	seq   int

	// when gate is set, mutating calls announce themselves on entered and
	// wait for gate to close
	gate    chan struct{}
	entered chan string
}

func newFakeService(clock schedule.Clock) *fakeService {
	return &fakeService{clock: clock, fail: map[string]error{}}
}

func (f *fakeService) holdCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
	f.entered = make(chan string, 4)
}

func (f *fakeService) release() {
	f.mu.Lock()
	gate := f.gate
	f.gate = nil
	f.mu.Unlock()
	if gate != nil {
		close(gate)
	}
}

func (f *fakeService) setFail(action string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.fail, action)
		return
	}
	f.fail[action] = err
}

func (f *fakeService) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeService) enter(action string) error {
	f.mu.Lock()
	f.calls = append(f.calls, action)
	gate, entered := f.gate, f.entered
	err := f.fail[action]
	f.mu.Unlock()

	if gate != nil {
		entered <- action
		<-gate
	}
	return err
}

func (f *fakeService) activeIndex() int {
	for i, l := range f.logs {
		if l.Status.Active() {
			return i
		}
	}
	return -1
}

func (f *fakeService) accumulate(l *timelog.TimeLog, now time.Time) {
	if l.Status == timelog.StatusInProgress {
		l.TotalSeconds += int64(now.Sub(l.StartTime) / time.Second)
	}
}

func (f *fakeService) Start(_ context.Context, jobID string) (timelog.TimeLog, error) {
	if err := f.enter("start"); err != nil {
		return timelog.TimeLog{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.activeIndex() >= 0 {
		return timelog.TimeLog{}, timelog.ErrActiveLogExists
	}
	now := f.clock.Now()
	f.seq++
	l := timelog.TimeLog{
		ID:            fmt.Sprintf("log-%d", f.seq),
		JobID:         jobID,
		Status:        timelog.StatusInProgress,
		StartTime:     now,
		LastResumedAt: &now,
		CreatedAt:     now,
	}
	f.logs = append([]timelog.TimeLog{l}, f.logs...)
	return l, nil
}

func (f *fakeService) Pause(_ context.Context, _ string) (timelog.TimeLog, error) {
	if err := f.enter("pause"); err != nil {
		return timelog.TimeLog{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.activeIndex()
	if i < 0 {
		return timelog.TimeLog{}, timelog.ErrNoActiveLog
	}
	if f.logs[i].Status != timelog.StatusInProgress {
		return timelog.TimeLog{}, timelog.ErrConflict
	}
	f.accumulate(&f.logs[i], f.clock.Now())
	f.logs[i].Status = timelog.StatusPaused
	return f.logs[i], nil
}

func (f *fakeService) Resume(_ context.Context, _ string) (timelog.TimeLog, error) {
	if err := f.enter("resume"); err != nil {
		return timelog.TimeLog{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.resumeLocked()
}

func (f *fakeService) resumeLocked() (timelog.TimeLog, error) {
	i := f.activeIndex()
	if i < 0 {
		return timelog.TimeLog{}, timelog.ErrNoActiveLog
	}
	if f.logs[i].Status != timelog.StatusPaused {
		return timelog.TimeLog{}, timelog.ErrConflict
	}
	now := f.clock.Now()
	f.logs[i].Status = timelog.StatusInProgress
	f.logs[i].StartTime = now
	f.logs[i].LastResumedAt = &now
	return f.logs[i], nil
}

func (f *fakeService) Stop(_ context.Context, _ string, notes string) (timelog.TimeLog, error) {
	if err := f.enter("stop"); err != nil {
		return timelog.TimeLog{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopLocked(notes)
}

func (f *fakeService) stopLocked(notes string) (timelog.TimeLog, error) {
	i := f.activeIndex()
	if i < 0 {
		return timelog.TimeLog{}, timelog.ErrNoActiveLog
	}
	now := f.clock.Now()
	f.accumulate(&f.logs[i], now)
	f.logs[i].Status = timelog.StatusCompleted
	f.logs[i].EndTime = &now
	f.logs[i].Notes = notes
	return f.logs[i], nil
}

func (f *fakeService) ListLogs(_ context.Context, _ string) ([]timelog.TimeLog, error) {
	f.mu.Lock()
	f.calls = append(f.calls, "list")
	err := f.fail["list"]
	out := append([]timelog.TimeLog(nil), f.logs...)
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// stopElsewhere and resumeElsewhere act as a second device would.
func (f *fakeService) stopElsewhere() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked("")
}

func (f *fakeService) resumeElsewhere() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumeLocked()
}

func (f *fakeService) seed(l timelog.TimeLog) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append([]timelog.TimeLog{l}, f.logs...)
}

func (f *fakeService) latest() timelog.TimeLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.logs) == 0 {
		return timelog.TimeLog{}
	}
	return f.logs[0]
}

type fakeJobs struct {
	job timelog.Job
	err error
}

func (j *fakeJobs) GetJob(_ context.Context, id string) (timelog.Job, error) {
	if j.err != nil {
		return timelog.Job{}, j.err
	}
	if id != j.job.ID {
		return timelog.Job{}, timelog.ErrNotFound
	}
	return j.job, nil
}
