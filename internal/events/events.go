// Package events carries timer lifecycle notifications to any number of
// listeners: list views that refresh on stop, websocket followers, and the
// Redis fan-out used when the service runs on more than one host.
package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aceteam-ai/shiftclock/internal/timelog"
)

// Type identifies a lifecycle transition.
type Type string

const (
	Started Type = "started"
	Paused  Type = "paused"
	Resumed Type = "resumed"
	Stopped Type = "stopped"
)

// Event is one confirmed transition of a job's time log.
type Event struct {
	Type  Type            `json:"type"`
	JobID string          `json:"job_id"`
	Log   timelog.TimeLog `json:"log"`
	At    time.Time       `json:"at"`

	// Source names the emitter ("timer", "ledger") so followers can ignore
	// their own echoes.
	Source string `json:"source,omitempty"`
}

// ForAction maps a client action ("start", "pause", "resume", "stop") onto
// the event it produces.
func ForAction(action string) (Type, bool) {
	switch action {
	case "start":
		return Started, true
	case "pause":
		return Paused, true
	case "resume":
		return Resumed, true
	case "stop":
		return Stopped, true
	}
	return "", false
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, e Event) error

func (f PublisherFunc) Publish(ctx context.Context, e Event) error { return f(ctx, e) }

// Discard drops every event.
var Discard Publisher = PublisherFunc(func(context.Context, Event) error { return nil })

// Multi publishes to every publisher in order and joins their errors. One
// failing publisher does not stop the rest.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bus is an in-process publisher with any number of listeners. Listeners are
// called synchronously in subscription order. Publishing with no listeners
// does nothing.
type Bus struct {
	mu        sync.RWMutex
	nextID    int
	listeners []listener
}

type listener struct {
	id int
	fn func(Event)
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns a function that removes it. The returned
// function may be called more than once.
func (b *Bus) Subscribe(fn func(Event)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listener{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, l := range b.listeners {
		if l.id == id {
			b.listeners = append(b.listeners[:i:i], b.listeners[i+1:]...)
			return
		}
	}
}

// Publish delivers e to every current listener. A listener may unsubscribe
// or subscribe from inside its callback; changes apply to the next event.
func (b *Bus) Publish(_ context.Context, e Event) error {
	b.mu.RLock()
	snapshot := b.listeners
	b.mu.RUnlock()

	for _, l := range snapshot {
		l.fn(e)
	}
	return nil
}

// Len returns the number of listeners.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}
