package workflow

import "context"

// EventType identifies a progress message sent to the client.
type EventType string

const (
	EventUpdate       EventType = "update"
	EventRequestInput EventType = "request_input"
	EventError        EventType = "error"
	EventFinal        EventType = "final"
)

// Event is one progress message. Data is set on updates, Fields on input
// requests, Message on errors and final notices.
type Event struct {
	Type    EventType `json:"type"`
	Step    string    `json:"step,omitempty"`
	Data    *Patch    `json:"data,omitempty"`
	Fields  []string  `json:"fields,omitempty"`
	Message string    `json:"message,omitempty"`
}

// UpdateEvent reports the patch produced by step.
func UpdateEvent(step string, p Patch) Event {
	return Event{Type: EventUpdate, Step: step, Data: &p}
}

// ErrorEvent reports a recoverable failure.
func ErrorEvent(msg string) Event {
	return Event{Type: EventError, Message: msg}
}

// RequestInputEvent asks the client for the named fields.
func RequestInputEvent(fields []string) Event {
	return Event{Type: EventRequestInput, Fields: fields}
}

// FinalEvent closes a run.
func FinalEvent(msg string) Event {
	return Event{Type: EventFinal, Message: msg}
}

// Sink receives progress events. Implementations must not block
// indefinitely; a returned error is logged by the caller and otherwise
// ignored.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

// Emit calls f.
func (f SinkFunc) Emit(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) error { return nil })
