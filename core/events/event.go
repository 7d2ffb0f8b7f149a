package events

// Event represents a structured state change emitted by the chain.
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

// Recorder keeps every emitted event in order. It backs tests and the CLI,
// which prints the events produced by a verification run.
type Recorder struct {
	events []Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(e Event) {
	r.events = append(r.events, e)
}

// Events returns the recorded events.
func (r *Recorder) Events() []Event {
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events whose type equals eventType.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Reset drops all recorded events.
func (r *Recorder) Reset() {
	r.events = nil
}
