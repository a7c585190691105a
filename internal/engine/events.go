package engine

import "time"

// EventKind classifies session events.
type EventKind string

const (
	EventStarted          EventKind = "session_started"
	EventSeeded           EventKind = "seeded"
	EventConverted        EventKind = "converted"
	EventEchoSuppressed   EventKind = "echo_suppressed"
	EventConversionFailed EventKind = "conversion_failed"
	EventWritePending     EventKind = "write_pending"
	EventOpened           EventKind = "opened"
	EventOpenFailed       EventKind = "open_failed"
	EventStopped          EventKind = "session_stopped"
)

// Event is something that happened to a session.
type Event struct {
	SessionID string    `json:"session_id" yaml:"session_id"`
	Kind      EventKind `json:"kind" yaml:"kind"`
	Direction string    `json:"direction,omitempty" yaml:"direction,omitempty"`
	Source    string    `json:"source,omitempty" yaml:"source,omitempty"`
	Target    string    `json:"target,omitempty" yaml:"target,omitempty"`
	Detail    string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	At        time.Time `json:"at" yaml:"at"`
}

// Observer receives session events. Observe is called synchronously from
// the session goroutine that produced the event and must not block.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe calls f(e).
func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to each non-nil observer in order.
type Observers []Observer

// Observe implements Observer.
func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}
