// Package natsbus forwards bill events to NATS.
package natsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/garyjia/billed/internal/domain/event"
	"github.com/nats-io/nats.go"
)

// Publisher is the part of a NATS connection the forwarder uses
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Options configures the NATS connection
type Options struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// Connect opens a NATS connection that keeps retrying in the background
func Connect(url string, options Options, logger Logger) (*nats.Conn, error) {
	if options.ConnectTimeout <= 0 {
		options.ConnectTimeout = 2 * time.Second
	}
	if options.ReconnectWait <= 0 {
		options.ReconnectWait = 2 * time.Second
	}
	if options.MaxReconnects <= 0 {
		options.MaxReconnects = 60
	}

	conn, err := nats.Connect(
		url,
		nats.Name("billed"),
		nats.Timeout(options.ConnectTimeout),
		nats.ReconnectWait(options.ReconnectWait),
		nats.MaxReconnects(options.MaxReconnects),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Error("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return conn, nil
}

// Forwarder publishes every event it receives on <prefix>.<event type>
type Forwarder struct {
	publisher Publisher
	prefix    string
	logger    Logger
}

// NewForwarder creates a forwarder
func NewForwarder(publisher Publisher, prefix string, logger Logger) *Forwarder {
	if prefix == "" {
		prefix = "billed"
	}
	return &Forwarder{publisher: publisher, prefix: prefix, logger: logger}
}

// Subject returns the subject an event type is published on
func (f *Forwarder) Subject(t event.Type) string {
	return f.prefix + "." + t.String()
}

// Handle publishes evt. It matches the dispatcher handler signature.
func (f *Forwarder) Handle(ctx context.Context, evt *event.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := f.Subject(evt.Type)
	if err := f.publisher.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}

	f.logger.Info("Event forwarded", "subject", subject, "event_id", evt.ID)
	return nil
}
