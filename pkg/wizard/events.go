package wizard

import (
	"context"
	"encoding/json"
)

// EventType enumerates the progress events of one wizard turn.
type EventType string

const (
	EventConnected            EventType = "connected"
	EventThinking             EventType = "thinking"
	EventFunctionCallStart    EventType = "function_call_start"
	EventFunctionCallComplete EventType = "function_call_complete"
	EventMessage              EventType = "message"
	EventComplete             EventType = "complete"
	EventStreamEnd            EventType = "stream_end"
	EventError                EventType = "error"
)

// Event is one progress notification. Fields beyond Type are
// type-specific; unused ones stay empty.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Message   string          `json:"message,omitempty"`
	Tool      string          `json:"tool,omitempty"`
	Success   bool            `json:"success,omitempty"`
	Persona   json.RawMessage `json:"persona,omitempty"`
	Problem   json.RawMessage `json:"problem,omitempty"`
	Behaviour json.RawMessage `json:"behaviour,omitempty"`
	Error     string          `json:"error,omitempty"`
	Retryable bool            `json:"retryable,omitempty"`
}

// emit writes an event unless the consumer is gone. Returns false when
// the context was cancelled before the event could be delivered.
func emit(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
