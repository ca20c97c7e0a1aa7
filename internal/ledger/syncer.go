package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

// PublishFunc hands a batch of completed logs to a downstream system such as
// a payroll stream. It returns an error if none of the batch was accepted.
type PublishFunc func(ctx context.Context, logs []timelog.TimeLog) error

// SyncerConfig holds configuration for the completed-log syncer.
type SyncerConfig struct {
	// Store is the ledger database
	Store *Store

	// PublishFn sends completed logs downstream
	PublishFn PublishFunc

	// Interval between sync cycles (default: 60s)
	Interval time.Duration

	// BatchSize is the max logs per publish call (default: 50)
	BatchSize int

	// MaxBatches bounds how many full batches one cycle drains (default: 20)
	MaxBatches int

	// Now stamps sync attempts (default: time.Now)
	Now func() time.Time

	// LogFn is called for log messages (optional)
	LogFn func(level, msg string)
}

// Syncer is the outbox for completed sessions. Each completed log is
// delivered downstream at least once and is marked synced only after its
// batch was accepted.
type Syncer struct {
	store      *Store
	publishFn  PublishFunc
	interval   time.Duration
	batchSize  int
	maxBatches int
	now        func() time.Time
	logFn      func(level, msg string)

	mu     sync.Mutex
	health timelog.SyncHealth
}

// NewSyncer creates a syncer.
func NewSyncer(cfg SyncerConfig) *Syncer {
	s := &Syncer{
		store:      cfg.Store,
		publishFn:  cfg.PublishFn,
		interval:   cfg.Interval,
		batchSize:  cfg.BatchSize,
		maxBatches: cfg.MaxBatches,
		now:        cfg.Now,
		logFn:      cfg.LogFn,
	}
	if s.interval <= 0 {
		s.interval = 60 * time.Second
	}
	if s.batchSize <= 0 {
		s.batchSize = 50
	}
	if s.maxBatches <= 0 {
		s.maxBatches = 20
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Start syncs immediately and then every Interval until ctx is cancelled.
func (s *Syncer) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Drain(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain publishes batches until the backlog is empty, a cycle fails, or
// MaxBatches full batches were sent. It returns the number delivered.
func (s *Syncer) Drain(ctx context.Context) int {
	total := 0
	for i := 0; i < s.maxBatches; i++ {
		n, err := s.SyncOnce(ctx)
		total += n
		if err != nil || n < s.batchSize {
			break
		}
	}
	if total > 0 {
		s.log("info", fmt.Sprintf("ledger sync: delivered %d completed logs", total))
	}
	return total
}

// SyncOnce publishes one batch and returns how many logs were delivered.
// Failures are also recorded in Health.
func (s *Syncer) SyncOnce(ctx context.Context) (int, error) {
	logs, err := s.store.QueryUnsynced(ctx, s.batchSize)
	if err != nil {
		return 0, s.fail(fmt.Errorf("query unsynced: %w", err))
	}
	if len(logs) == 0 {
		s.succeed(0)
		return 0, nil
	}

	if err := s.publishFn(ctx, logs); err != nil {
		return 0, s.fail(fmt.Errorf("publish %d logs: %w", len(logs), err))
	}

	ids := make([]string, len(logs))
	for i, l := range logs {
		ids[i] = l.ID
	}
	// a failure here means the batch is delivered again next cycle
	if err := s.store.MarkSynced(ctx, ids); err != nil {
		return 0, s.fail(fmt.Errorf("mark synced: %w", err))
	}
	s.succeed(len(logs))
	return len(logs), nil
}

func (s *Syncer) succeed(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now()
	s.health.Delivered += int64(n)
	s.health.LastSync = &at
	s.health.LastError = ""
	s.health.ConsecutiveFailures = 0
}

func (s *Syncer) fail(err error) error {
	s.mu.Lock()
	s.health.LastError = err.Error()
	s.health.ConsecutiveFailures++
	failures := s.health.ConsecutiveFailures
	s.mu.Unlock()

	s.log("warning", fmt.Sprintf("ledger sync: %v (%d in a row)", err, failures))
	return err
}

// Health reports delivery progress since the syncer was created.
func (s *Syncer) Health() timelog.SyncHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.health
	if h.LastSync != nil {
		at := *h.LastSync
		h.LastSync = &at
	}
	return h
}

func (s *Syncer) log(level, msg string) {
	if s.logFn != nil {
		s.logFn(level, msg)
	}
}
