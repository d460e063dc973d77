package events

import (
	"sync"

	"nexumfi/core/types"
)

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
}

// Payload is implemented by events that carry a generic attribute payload.
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

// Collector buffers emitted events in order until they are drained. The
// ledger hands a collector to every engine taking part in an operation and
// only publishes its contents once the operation's writes are committed.
type Collector struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements the Emitter interface.
func (c *Collector) Emit(evt Event) {
	if c == nil || evt == nil {
		return
	}
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

// Drain returns the buffered events and resets the collector.
func (c *Collector) Drain() []Event {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.events
	c.events = nil
	return out
}

// Fanout forwards every event to each of its emitters in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// ToPayload extracts the generic attribute payload from an event when it
// carries one.
func ToPayload(evt Event) (*types.Event, bool) {
	if evt == nil {
		return nil, false
	}
	p, ok := evt.(Payload)
	if !ok {
		return nil, false
	}
	payload := p.Event()
	return payload, payload != nil
}
