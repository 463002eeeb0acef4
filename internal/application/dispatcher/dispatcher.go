// Package dispatcher fans bill events out to in-process handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/billed/internal/domain/event"
)

// ErrClosed is returned when publishing to a closed dispatcher
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher routes events to registered handlers
type Dispatcher interface {
	// Subscribe registers a named handler for one event type
	Subscribe(eventType event.Type, name string, handler Handler)

	// SubscribeAll registers a named handler receiving every event
	SubscribeAll(name string, handler Handler)

	// Dispatch runs the matching handlers in registration order and
	// returns the first error
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs the matching handlers in the background
	DispatchAsync(ctx context.Context, evt *event.Event)

	// Handlers returns the names of the handlers an event type reaches
	Handlers(eventType event.Type) []string

	// Close waits for background handlers and rejects further events
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu            sync.RWMutex
	subscriptions []subscription
	logger        Logger

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler) {
	d.subscribe(subscription{name: name, eventType: eventType, handler: handler})
}

func (d *eventDispatcher) SubscribeAll(name string, handler Handler) {
	d.subscribe(subscription{name: name, handler: handler})
}

func (d *eventDispatcher) subscribe(s subscription) {
	d.mu.Lock()
	d.subscriptions = append(d.subscriptions, s)
	d.mu.Unlock()

	d.info("Handler registered", "event_type", s.eventType, "handler_name", s.name)
}

func (d *eventDispatcher) matching(t event.Type) []subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var matched []subscription
	for _, s := range d.subscriptions {
		if s.matches(t) {
			matched = append(matched, s)
		}
	}
	return matched
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}

	for _, s := range d.matching(evt.Type) {
		if err := d.safeExecute(ctx, evt, s); err != nil {
			d.error("Handler error",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", s.name,
				"error", err,
			)
			return fmt.Errorf("handler %s failed: %w", s.name, err)
		}
	}
	return nil
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		d.error("Cannot dispatch async event, dispatcher is closed",
			"event_type", evt.Type,
			"event_id", evt.ID,
		)
		return
	}

	for _, s := range d.matching(evt.Type) {
		d.wg.Add(1)
		go func(s subscription) {
			defer d.wg.Done()
			if err := d.safeExecute(ctx, evt, s); err != nil {
				d.error("Async handler error",
					"event_type", evt.Type,
					"event_id", evt.ID,
					"handler_name", s.name,
					"error", err,
				)
			}
		}(s)
	}
}

func (d *eventDispatcher) Handlers(eventType event.Type) []string {
	matched := d.matching(eventType)
	names := make([]string, 0, len(matched))
	for _, s := range matched {
		names = append(names, s.name)
	}
	return names
}

func (d *eventDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatcher already closed")
	}

	d.info("Closing dispatcher, waiting for async handlers")
	d.wg.Wait()
	d.info("Dispatcher closed")
	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, s subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
			d.error("Handler panic recovered",
				"event_type", evt.Type,
				"event_id", evt.ID,
				"handler_name", s.name,
				"panic", r,
			)
		}
	}()

	return s.handler(ctx, evt)
}

func (d *eventDispatcher) info(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}

func (d *eventDispatcher) error(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Error(msg, keysAndValues...)
	}
}
