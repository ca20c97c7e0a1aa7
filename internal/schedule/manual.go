package schedule

import (
	"sync"
	"time"
)

// Manual is a Clock and Scheduler that only moves when told to. Callbacks run
// synchronously on the goroutine calling Advance.
type Manual struct {
	mu    sync.Mutex
	now   time.Time
	tasks []*manualTask
}

type manualTask struct {
	m        *Manual
	interval time.Duration
	next     time.Time
	fn       func(time.Time)
}

// NewManual returns a manual clock set to start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Every(interval time.Duration, fn func(now time.Time)) Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTask{m: m, interval: interval, next: m.now.Add(interval), fn: fn}
	m.tasks = append(m.tasks, t)
	return t
}

func (t *manualTask) Cancel() {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	for i, other := range t.m.tasks {
		if other == t {
			t.m.tasks = append(t.m.tasks[:i], t.m.tasks[i+1:]...)
			return
		}
	}
}

// Advance moves the clock forward by d, firing every task that comes due in
// order. Tasks due at the same instant fire in registration order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var due *manualTask
		for _, t := range m.tasks {
			if t.next.After(target) {
				continue
			}
			if due == nil || t.next.Before(due.next) {
				due = t
			}
		}
		if due == nil {
			m.now = target
			m.mu.Unlock()
			return
		}
		m.now = due.next
		due.next = due.next.Add(due.interval)
		fn, now := due.fn, m.now
		m.mu.Unlock()

		fn(now)
	}
}

// Skip jumps the clock forward by d without firing anything, the way a
// suspended process misses its ticks. Every overdue task fires once on the
// next Advance.
func (m *Manual) Skip(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
	for _, t := range m.tasks {
		if !t.next.After(m.now) {
			t.next = m.now
		}
	}
}

// Pending returns the number of live tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
