package events

import "time"

// Event defines the contract for all system events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "neon.action").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// BaseEvent is a plain implementation for events that carry no behavior.
type BaseEvent struct {
	Type       string
	Data       map[string]interface{}
	OccurredAt time.Time
}

func (e BaseEvent) EventType() string {
	return e.Type
}

func (e BaseEvent) Payload() map[string]interface{} {
	return e.Data
}

func (e BaseEvent) Timestamp() time.Time {
	return e.OccurredAt
}

// NewRawEvent rehydrates an event from a decoded payload, keeping the
// original type code. Used when relaying events between buses.
func NewRawEvent(eventType string, data map[string]interface{}) Event {
	return BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now(),
	}
}

// ActionExecutedType is published after the assistant runs a Neon tool call.
const ActionExecutedType = "neon.action"

// NewActionExecuted builds the audit event for one executed tool call. The
// arguments have the API key already stripped by the chat service.
func NewActionExecuted(chatSessionId, toolName, arguments string, failed bool) Event {
	return BaseEvent{
		Type: ActionExecutedType,
		Data: map[string]interface{}{
			"chat_session_id": chatSessionId,
			"tool":            toolName,
			"arguments":       arguments,
			"failed":          failed,
		},
		OccurredAt: time.Now(),
	}
}
