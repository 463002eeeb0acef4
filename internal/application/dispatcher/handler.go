package dispatcher

import (
	"context"

	"github.com/garyjia/billed/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// subscription binds a named handler to an event type.
// An empty event type matches every event.
type subscription struct {
	name      string
	eventType event.Type
	handler   Handler
}

func (s subscription) matches(t event.Type) bool {
	return s.eventType == "" || s.eventType == t
}
