package events

import (
	"sync"

	"fundcore/core/types"
)

// Event represents a structured state change emitted by the core.
type Event interface {
	EventType() string
}

// Emitter broadcasts events to downstream subscribers (e.g. the audit store,
// the backoffice stream).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Typed adapts a raw *types.Event so engines can emit canonical payloads
// through an Emitter.
type Typed struct {
	Evt *types.Event
}

// EventType implements Event.
func (t Typed) EventType() string {
	if t.Evt == nil {
		return ""
	}
	return t.Evt.Type
}

// Event returns the wrapped payload.
func (t Typed) Event() *types.Event { return t.Evt }

// Payload extracts the canonical *types.Event from evt when it carries one.
func Payload(evt Event) *types.Event {
	if p, ok := evt.(interface{ Event() *types.Event }); ok {
		return p.Event()
	}
	return nil
}

// Buffer collects events emitted during an atomic unit. Flush forwards them
// in emission order; Reset drops them when the unit is rolled back.
type Buffer struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (b *Buffer) Emit(evt Event) {
	if evt == nil {
		return
	}
	b.mu.Lock()
	b.events = append(b.events, evt)
	b.mu.Unlock()
}

// Len reports how many events are pending.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Events returns a copy of the pending events.
func (b *Buffer) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Event(nil), b.events...)
}

// Flush forwards pending events to dst and clears the buffer.
func (b *Buffer) Flush(dst Emitter) {
	b.mu.Lock()
	pending := b.events
	b.events = nil
	b.mu.Unlock()
	if dst == nil {
		return
	}
	for _, evt := range pending {
		dst.Emit(evt)
	}
}

// Reset drops every pending event.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.events = nil
	b.mu.Unlock()
}

// Truncate drops events emitted after the buffer held n events. It pairs
// with state savepoints so a reverted sub-operation leaves no events behind.
func (b *Buffer) Truncate(n int) {
	b.mu.Lock()
	if n >= 0 && n < len(b.events) {
		b.events = b.events[:n]
	}
	b.mu.Unlock()
}

// Multi fans events out to several emitters.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(evt Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(evt)
		}
	}
}
