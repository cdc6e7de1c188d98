// Package events implements the topology's named-event notification system
// (spec.md §4.5): CREATED, DESTROYED, STARTED, MODULE_LIST_CHANGED, each
// with a list of (callback, user-data) pairs invoked synchronously, in
// registration order, on the caller's thread.
//
// Grounded on the teacher's public/orchestrator/events.go EventBridge,
// generalized from topic-pattern matching to the fixed, named event kinds
// spec.md enumerates.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/lattice-run/gatewayrt/internal/telemetry"
)

// Kind names one of the topology's lifecycle events.
type Kind string

const (
	Created           Kind = "CREATED"
	Destroyed         Kind = "DESTROYED"
	Started           Kind = "STARTED"
	ModuleListChanged Kind = "MODULE_LIST_CHANGED"
)

// Event is the payload delivered to a callback. Timestamp and Subject are
// additive beyond what spec.md §4.5 requires (it only requires that
// callbacks fire) — grounded on the teacher's Event{Timestamp, Source}.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	// Subject names the module or link that changed, when applicable
	// (e.g. on MODULE_LIST_CHANGED); empty for topology-wide events.
	Subject string
}

// Callback receives an Event and the user-data it was registered with.
type Callback func(Event, interface{})

type registration struct {
	callback Callback
	userData interface{}
}

// Bus is the topology's event dispatcher. Zero value is ready to use.
type Bus struct {
	mu   sync.Mutex
	subs map[Kind][]registration
}

// NewBus constructs an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]registration)}
}

// AddCallback registers callback to be invoked whenever kind is emitted.
// Callbacks fire in registration order; they must not mutate the topology
// that reported the event (spec.md §4.5 — undefined behavior otherwise).
func (b *Bus) AddCallback(kind Kind, callback Callback, userData interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[Kind][]registration)
	}
	b.subs[kind] = append(b.subs[kind], registration{callback: callback, userData: userData})
}

// Emit invokes every callback registered for kind, synchronously, in
// registration order, on the caller's goroutine.
func (b *Bus) Emit(kind Kind, subject string) {
	telemetry.RecordLifecycleEvent(context.Background(), string(kind))

	b.mu.Lock()
	regs := append([]registration(nil), b.subs[kind]...)
	b.mu.Unlock()

	ev := Event{Kind: kind, Timestamp: time.Now(), Subject: subject}
	for _, r := range regs {
		r.callback(ev, r.userData)
	}
}

// Close drops every registered callback. Called during topology_destroy
// after DESTROYED has been emitted.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = make(map[Kind][]registration)
}
