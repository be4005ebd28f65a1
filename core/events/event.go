package events

import (
	"sync"

	"vaultchain/core/types"
)

// Event represents a structured state change emitted by the runtime.
type Event interface {
	EventType() string
}

// Payload is implemented by events that carry a structured attribute map.
type Payload interface {
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Envelope adapts a raw *types.Event to the Emitter contract.
type Envelope struct {
	Evt *types.Event
}

func (e Envelope) EventType() string {
	if e.Evt == nil {
		return ""
	}
	return e.Evt.Type
}

func (e Envelope) Event() *types.Event { return e.Evt }

// Wrap converts a raw event payload into the emitter-friendly envelope.
func Wrap(evt *types.Event) Event { return Envelope{Evt: evt} }

// Recorder captures emitted events in order. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if evt == nil {
		return
	}
	r.mu.Lock()
	r.events = append(r.events, evt)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded payloads matching eventType.
func (r *Recorder) OfType(eventType string) []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*types.Event
	for _, evt := range r.events {
		if evt.EventType() != eventType {
			continue
		}
		if p, ok := evt.(Payload); ok {
			out = append(out, p.Event())
		}
	}
	return out
}

// Reset discards the recorded events.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Multi fans an event out to several emitters.
type Multi []Emitter

// Emit implements the Emitter interface.
func (m Multi) Emit(evt Event) {
	for _, e := range m {
		if e != nil {
			e.Emit(evt)
		}
	}
}
