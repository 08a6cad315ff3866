package events

import "salechain/core/types"

// Event represents a structured state change emitted by a program.
type Event interface {
	EventType() string
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

// Typed is implemented by events that can render themselves in the generic
// attribute form stored on receipts.
type Typed interface {
	Event
	Event() *types.Event
}

// Generic converts evt into its attribute form. Events that do not implement
// Typed are rendered with their type and no attributes.
func Generic(evt Event) *types.Event {
	if evt == nil {
		return nil
	}
	if typed, ok := evt.(Typed); ok {
		return typed.Event()
	}
	if raw, ok := evt.(*types.Event); ok {
		return raw.Clone()
	}
	return &types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// Recorder buffers emitted events in order.
type Recorder struct {
	events []types.Event
}

// Emit implements Emitter.
func (r *Recorder) Emit(evt Event) {
	if r == nil {
		return
	}
	if generic := Generic(evt); generic != nil {
		r.events = append(r.events, *generic)
	}
}

// Events returns the buffered events.
func (r *Recorder) Events() []types.Event {
	if r == nil {
		return nil
	}
	out := make([]types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// Len returns the number of buffered events.
func (r *Recorder) Len() int {
	if r == nil {
		return 0
	}
	return len(r.events)
}

// Truncate drops events recorded after the first n.
func (r *Recorder) Truncate(n int) {
	if r == nil || n < 0 || n >= len(r.events) {
		return
	}
	r.events = r.events[:n]
}
