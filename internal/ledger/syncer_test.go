package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

func completeSessions(t *testing.T, l *Ledger, clock interface{ Advance(time.Duration) }, jobs ...string) {
	t.Helper()
	ctx := context.Background()
	for _, job := range jobs {
		if _, err := l.Start(ctx, job); err != nil {
			t.Fatalf("Start %s: %v", job, err)
		}
		clock.Advance(time.Minute)
		if _, err := l.Stop(ctx, job, ""); err != nil {
			t.Fatalf("Stop %s: %v", job, err)
		}
	}
}

func TestSyncerPublishesCompletedLogs(t *testing.T) {
	l, clock, _ := newTestLedger(t)
	completeSessions(t, l, clock, "job-1", "job-2")
	// an open session is not synced
	l.Start(context.Background(), "job-1")

	var published []timelog.TimeLog
	syncer := NewSyncer(SyncerConfig{
		Store:     l.store,
		BatchSize: 10,
		PublishFn: func(_ context.Context, logs []timelog.TimeLog) error {
			published = append(published, logs...)
			return nil
		},
	})

	if n, err := syncer.SyncOnce(context.Background()); n != 2 || err != nil {
		t.Fatalf("SyncOnce() = %d, %v; want 2", n, err)
	}
	if len(published) != 2 || published[0].JobID != "job-1" || published[1].JobID != "job-2" {
		t.Errorf("published = %+v", published)
	}
	for _, p := range published {
		if p.Status != timelog.StatusCompleted || p.TotalSeconds != 60 {
			t.Errorf("published log = %+v", p)
		}
	}

	if n, err := syncer.SyncOnce(context.Background()); n != 0 || err != nil {
		t.Errorf("second SyncOnce() = %d, %v; want 0", n, err)
	}
	if h := syncer.Health(); h.Delivered != 2 || h.LastSync == nil || h.LastError != "" {
		t.Errorf("Health() = %+v", h)
	}
}

func TestSyncerPublishFailureDoesNotMarkSynced(t *testing.T) {
	l, clock, _ := newTestLedger(t)
	completeSessions(t, l, clock, "job-1")

	var logged []string
	fail := true
	syncer := NewSyncer(SyncerConfig{
		Store: l.store,
		PublishFn: func(context.Context, []timelog.TimeLog) error {
			if fail {
				return errors.New("stream unavailable")
			}
			return nil
		},
		LogFn: func(level, msg string) { logged = append(logged, level) },
	})

	for i := 0; i < 2; i++ {
		if n, err := syncer.SyncOnce(context.Background()); n != 0 || err == nil {
			t.Fatalf("failing SyncOnce() = %d, %v; want 0 and an error", n, err)
		}
	}
	if len(logged) != 2 || logged[0] != "warning" {
		t.Errorf("logged = %v, want two warnings", logged)
	}
	h := syncer.Health()
	if h.ConsecutiveFailures != 2 || !strings.Contains(h.LastError, "stream unavailable") || h.LastSync != nil {
		t.Errorf("Health() after failures = %+v", h)
	}

	fail = false
	if n, err := syncer.SyncOnce(context.Background()); n != 1 || err != nil {
		t.Errorf("retry SyncOnce() = %d, %v; want 1", n, err)
	}
	if h := syncer.Health(); h.ConsecutiveFailures != 0 || h.LastError != "" || h.Delivered != 1 {
		t.Errorf("Health() after recovery = %+v", h)
	}
}

func TestSyncerBatchSize(t *testing.T) {
	l, clock, _ := newTestLedger(t)
	completeSessions(t, l, clock, "job-1", "job-1", "job-1")

	var batches []int
	syncer := NewSyncer(SyncerConfig{
		Store:     l.store,
		BatchSize: 2,
		PublishFn: func(_ context.Context, logs []timelog.TimeLog) error {
			batches = append(batches, len(logs))
			return nil
		},
	})
	if n := syncer.Drain(context.Background()); n != 3 {
		t.Errorf("Drain() = %d, want 3", n)
	}
	if len(batches) != 2 || batches[0] != 2 || batches[1] != 1 {
		t.Errorf("batches = %v, want [2 1]", batches)
	}
}

func TestSyncerDrainStopsAtMaxBatches(t *testing.T) {
	l, clock, _ := newTestLedger(t)
	completeSessions(t, l, clock, "job-1", "job-1", "job-1")

	syncer := NewSyncer(SyncerConfig{
		Store:      l.store,
		BatchSize:  1,
		MaxBatches: 2,
		PublishFn:  func(context.Context, []timelog.TimeLog) error { return nil },
	})
	if n := syncer.Drain(context.Background()); n != 2 {
		t.Errorf("first Drain() = %d, want 2", n)
	}
	if n := syncer.Drain(context.Background()); n != 1 {
		t.Errorf("second Drain() = %d, want 1", n)
	}
}

func TestSyncerStartSyncsImmediately(t *testing.T) {
	l, clock, _ := newTestLedger(t)
	completeSessions(t, l, clock, "job-1")

	delivered := make(chan int, 1)
	syncer := NewSyncer(SyncerConfig{
		Store:    l.store,
		Interval: time.Hour,
		PublishFn: func(_ context.Context, logs []timelog.TimeLog) error {
			delivered <- len(logs)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- syncer.Start(ctx) }()

	select {
	case n := <-delivered:
		if n != 1 {
			t.Errorf("delivered %d, want 1", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Start() did not sync before the first interval")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Start() = %v, want context.Canceled", err)
	}
}

func TestSyncerStartStopsOnCancel(t *testing.T) {
	l, _, _ := newTestLedger(t)
	syncer := NewSyncer(SyncerConfig{
		Store:     l.store,
		Interval:  time.Millisecond,
		PublishFn: func(context.Context, []timelog.TimeLog) error { return nil },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := syncer.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Start() = %v, want deadline exceeded", err)
	}
}
