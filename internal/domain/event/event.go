package event

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a domain event raised by the bill store
type Event struct {
	ID        string                 `json:"id"`
	Type      Type                   `json:"type"`
	BillID    string                 `json:"bill_id"`
	Email     string                 `json:"email"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// NewEvent creates a domain event with a generated ID and the current time
func NewEvent(eventType Type, billID, email string, payload map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		BillID:    billID,
		Email:     email,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// WithPayload returns a copy of the event with key set in its payload.
// The receiver is left untouched.
func (e *Event) WithPayload(key string, value interface{}) *Event {
	payload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		payload[k] = v
	}
	payload[key] = value

	copied := *e
	copied.Payload = payload
	return &copied
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if s, ok := e.Payload[key].(string); ok {
		return s
	}
	return ""
}
