package events

import "time"

// Chat lifecycle event types.
const (
	TypeMessageSent       = "CHAT_MESSAGE_SENT"
	TypeMessageCompleted  = "CHAT_MESSAGE_COMPLETED"
	TypeMessageStopped    = "CHAT_MESSAGE_STOPPED"
	TypeMessageFailed     = "CHAT_MESSAGE_FAILED"
	TypeSessionReset      = "CHAT_SESSION_RESET"
	TypeFeedbackSubmitted = "CHAT_FEEDBACK_SUBMITTED"

	// Emitted by the proxy for every forwarded chat or feedback call.
	TypeProxyForwarded = "PROXY_REQUEST_FORWARDED"
)

// Event defines the contract for all chat events.
type Event interface {
	// EventType returns the unique code for this event (e.g., "CHAT_MESSAGE_SENT").
	EventType() string

	// Payload returns the data associated with the event.
	Payload() map[string]interface{}

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

type BaseEvent struct {
	Type       string                 `json:"type"`
	Data       map[string]interface{} `json:"data"`
	OccurredAt time.Time              `json:"occurred_at"`
}

// New stamps an event with the current time.
func New(eventType string, data map[string]interface{}) BaseEvent {
	if data == nil {
		data = map[string]interface{}{}
	}
	return BaseEvent{
		Type:       eventType,
		Data:       data,
		OccurredAt: time.Now().UTC(),
	}
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
