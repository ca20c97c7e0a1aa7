package ledger

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aceteam-ai/shiftclock/internal/events"
	"github.com/aceteam-ai/shiftclock/internal/schedule"
	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

var t0 = time.Date(2025, time.January, 5, 9, 0, 0, 0, time.UTC)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "ledger_test.db")
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(tempDBPath(t))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

type catalog map[string]timelog.Job

func (c catalog) GetJob(_ context.Context, id string) (timelog.Job, error) {
	j, ok := c[id]
	if !ok {
		return timelog.Job{}, timelog.ErrNotFound
	}
	return j, nil
}

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func newTestLedger(t *testing.T) (*Ledger, *schedule.Manual, *recorder) {
	t.Helper()
	clock := schedule.NewManual(t0)
	rec := &recorder{}
	l, err := New(Config{
		Store:     openTestStore(t),
		Jobs:      catalog{"job-1": {ID: "job-1"}, "job-2": {ID: "job-2"}},
		Clock:     clock,
		Publisher: rec,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l, clock, rec
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New() without a store should fail")
	}
}

func TestLedgerSessionTotals(t *testing.T) {
	l, clock, rec := newTestLedger(t)
	ctx := context.Background()

	started, err := l.Start(ctx, "job-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if started.Status != timelog.StatusInProgress || !started.StartTime.Equal(t0) {
		t.Errorf("started = %+v", started)
	}
	if _, err := uuid.Parse(started.ID); err != nil {
		t.Errorf("log ID %q is not a UUID: %v", started.ID, err)
	}

	clock.Advance(30 * time.Second)
	paused, err := l.Pause(ctx, "job-1")
	if err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if paused.TotalSeconds != 30 || paused.Status != timelog.StatusPaused {
		t.Errorf("paused = %+v, want 30s paused", paused)
	}

	clock.Advance(10 * time.Minute)
	resumed, err := l.Resume(ctx, "job-1")
	if err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !resumed.StartTime.Equal(clock.Now()) || resumed.TotalSeconds != 30 {
		t.Errorf("resumed = %+v", resumed)
	}

	clock.Advance(45 * time.Second)
	stopped, err := l.Stop(ctx, "job-1", "loaded two trucks")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.Status != timelog.StatusCompleted || stopped.TotalSeconds != 75 {
		t.Errorf("stopped = %+v, want 75s completed", stopped)
	}
	if stopped.EndTime == nil || !stopped.EndTime.Equal(clock.Now()) || stopped.Notes != "loaded two trucks" {
		t.Errorf("stopped end/notes = %v / %q", stopped.EndTime, stopped.Notes)
	}

	logs, err := l.ListLogs(ctx, "job-1")
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].TotalSeconds != 75 || logs[0].Status != timelog.StatusCompleted {
		t.Errorf("ListLogs = %+v", logs)
	}

	want := []events.Type{events.Started, events.Paused, events.Resumed, events.Stopped}
	if len(rec.events) != len(want) {
		t.Fatalf("events = %+v", rec.events)
	}
	for i, typ := range want {
		if rec.events[i].Type != typ || rec.events[i].Source != "ledger" || rec.events[i].JobID != "job-1" {
			t.Errorf("event %d = %+v, want %s", i, rec.events[i], typ)
		}
	}
}

func TestLedgerStopWhilePausedKeepsTotal(t *testing.T) {
	l, clock, _ := newTestLedger(t)
	ctx := context.Background()

	l.Start(ctx, "job-1")
	clock.Advance(20 * time.Second)
	l.Pause(ctx, "job-1")
	clock.Advance(time.Hour)

	stopped, err := l.Stop(ctx, "job-1", "")
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if stopped.TotalSeconds != 20 {
		t.Errorf("TotalSeconds = %d, want 20", stopped.TotalSeconds)
	}
}

func TestLedgerRejections(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		setup      func(l *Ledger)
		act        func(l *Ledger) error
		wantErr    error
		wantStatus int
	}{
		{
			name:  "second start",
			setup: func(l *Ledger) { l.Start(ctx, "job-1") },
			act: func(l *Ledger) error {
				_, err := l.Start(ctx, "job-1")
				return err
			},
			wantErr:    timelog.ErrActiveLogExists,
			wantStatus: http.StatusConflict,
		},
		{
			name: "pause without log",
			act: func(l *Ledger) error {
				_, err := l.Pause(ctx, "job-1")
				return err
			},
			wantErr:    timelog.ErrNoActiveLog,
			wantStatus: http.StatusNotFound,
		},
		{
			name: "pause twice",
			setup: func(l *Ledger) {
				l.Start(ctx, "job-1")
				l.Pause(ctx, "job-1")
			},
			act: func(l *Ledger) error {
				_, err := l.Pause(ctx, "job-1")
				return err
			},
			wantErr:    ErrAlreadyPaused,
			wantStatus: http.StatusConflict,
		},
		{
			name:  "resume running",
			setup: func(l *Ledger) { l.Start(ctx, "job-1") },
			act: func(l *Ledger) error {
				_, err := l.Resume(ctx, "job-1")
				return err
			},
			wantErr:    ErrNotPaused,
			wantStatus: http.StatusConflict,
		},
		{
			name: "stop after stop",
			setup: func(l *Ledger) {
				l.Start(ctx, "job-1")
				l.Stop(ctx, "job-1", "")
			},
			act: func(l *Ledger) error {
				_, err := l.Stop(ctx, "job-1", "")
				return err
			},
			wantErr:    timelog.ErrNoActiveLog,
			wantStatus: http.StatusNotFound,
		},
		{
			name: "unknown job",
			act: func(l *Ledger) error {
				_, err := l.Start(ctx, "job-404")
				return err
			},
			wantErr:    timelog.ErrNotFound,
			wantStatus: http.StatusNotFound,
		},
		{
			name: "unknown job list",
			act: func(l *Ledger) error {
				_, err := l.ListLogs(ctx, "job-404")
				return err
			},
			wantErr:    timelog.ErrNotFound,
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, _, _ := newTestLedger(t)
			if tt.setup != nil {
				tt.setup(l)
			}
			err := tt.act(l)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got := timelog.StatusCodeFor(err); got != tt.wantStatus {
				t.Errorf("StatusCodeFor() = %d, want %d", got, tt.wantStatus)
			}
		})
	}
}

func TestLedgerJobsAreIndependent(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.Start(ctx, "job-1"); err != nil {
		t.Fatalf("Start job-1: %v", err)
	}
	if _, err := l.Start(ctx, "job-2"); err != nil {
		t.Fatalf("Start job-2 while job-1 runs: %v", err)
	}
}

func TestLedgerListNewestFirst(t *testing.T) {
	l, clock, _ := newTestLedger(t)
	ctx := context.Background()

	first, _ := l.Start(ctx, "job-1")
	clock.Advance(time.Minute)
	l.Stop(ctx, "job-1", "")
	clock.Advance(time.Minute)
	second, _ := l.Start(ctx, "job-1")

	logs, err := l.ListLogs(ctx, "job-1")
	if err != nil {
		t.Fatalf("ListLogs: %v", err)
	}
	if len(logs) != 2 || logs[0].ID != second.ID || logs[1].ID != first.ID {
		t.Fatalf("ListLogs order = %+v", logs)
	}
	if active, ok := timelog.FindActive(logs); !ok || active.ID != second.ID {
		t.Errorf("FindActive = %+v, %v", active, ok)
	}

	empty, err := l.ListLogs(ctx, "job-2")
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("ListLogs(job-2) = %v, %v, want empty non-nil slice", empty, err)
	}
}

func TestLedgerConcurrentStarts(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Start(ctx, "job-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, timelog.ErrActiveLogExists):
				conflicts++
			default:
				t.Errorf("Start: %v", err)
			}
		}()
	}
	wg.Wait()

	if wins != 1 || conflicts != 7 {
		t.Errorf("wins=%d conflicts=%d, want 1/7", wins, conflicts)
	}
}
