// Package schedule provides cancellable recurring tasks and a clock, so timer
// code can be driven by real tickers in production and by a manual clock in
// tests.
package schedule

import (
	"sync"
	"time"
)

// Clock reports the current instant.
type Clock interface {
	Now() time.Time
}

// Task is a scheduled recurring callback.
type Task interface {
	// Cancel stops the task. After Cancel returns the callback is not running
	// and will not run again. Cancel is idempotent. It must not be called from
	// inside the task's own callback.
	Cancel()
}

// Scheduler runs recurring callbacks.
type Scheduler interface {
	Every(interval time.Duration, fn func(now time.Time)) Task
}

// ClockScheduler is both a Clock and a Scheduler.
type ClockScheduler interface {
	Clock
	Scheduler
}

// System is the wall clock backed by time tickers.
type System struct{}

// NewSystem returns the real clock and scheduler.
func NewSystem() System { return System{} }

func (System) Now() time.Time { return time.Now() }

// Every starts a goroutine that calls fn on every tick until cancelled. Ticks
// missed while the process was suspended are dropped, not replayed.
func (System) Every(interval time.Duration, fn func(now time.Time)) Task {
	t := &tickerTask{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	ticker := time.NewTicker(interval)

	go func() {
		defer close(t.done)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case now := <-ticker.C:
				// stop wins over a tick that became ready at the same time
				select {
				case <-t.stop:
					return
				default:
				}
				fn(now)
			}
		}
	}()

	return t
}

type tickerTask struct {
	stop chan struct{}
	done chan struct{}
	once sync.Once
}

func (t *tickerTask) Cancel() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}

// Group cancels a set of tasks together.
type Group struct {
	mu    sync.Mutex
	tasks []Task
}

// Add registers a task with the group.
func (g *Group) Add(t Task) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.tasks = append(g.tasks, t)
}

// CancelAll cancels every registered task and empties the group.
func (g *Group) CancelAll() {
	g.mu.Lock()
	tasks := g.tasks
	g.tasks = nil
	g.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
}

// Len returns the number of registered tasks.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.tasks)
}
