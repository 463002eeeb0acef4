// Package resilience guards calls to the remote store with circuit breakers.
package resilience

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrOpen is returned while a breaker rejects calls
var ErrOpen = gobreaker.ErrOpenState

// Config holds breaker settings
type Config struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

func (c Config) normalize() Config {
	if c.MinRequests == 0 {
		c.MinRequests = 5
	}
	if c.FailureRatio <= 0 || c.FailureRatio > 1 {
		c.FailureRatio = 0.5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxCalls == 0 {
		c.HalfOpenMaxCalls = 1
	}
	return c
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// FailureClassifier reports whether err counts against the breaker
type FailureClassifier func(err error) bool

// StateListener is told about breaker state changes
type StateListener func(operation string, from, to gobreaker.State)

// Breaker runs operations behind one circuit breaker per operation name.
// Calls are never retried.
type Breaker struct {
	cfg       Config
	isFailure FailureClassifier
	logger    Logger
	onChange  StateListener

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[any]
}

// Option configures a Breaker
type Option func(*Breaker)

// WithClassifier sets which errors count as failures. By default every error does.
func WithClassifier(classifier FailureClassifier) Option {
	return func(b *Breaker) {
		b.isFailure = classifier
	}
}

// WithStateListener registers a callback for state changes
func WithStateListener(listener StateListener) Option {
	return func(b *Breaker) {
		b.onChange = listener
	}
}

// NewBreaker creates a Breaker
func NewBreaker(cfg Config, logger Logger, opts ...Option) *Breaker {
	b := &Breaker{
		cfg:       cfg.normalize(),
		isFailure: func(err error) bool { return err != nil },
		logger:    logger,
		breakers:  make(map[string]*gobreaker.CircuitBreaker[any]),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn through the breaker of operation
func (b *Breaker) Execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if fn == nil {
		return fmt.Errorf("resilience: operation callback is nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !b.cfg.Enabled {
		return fn(ctx)
	}

	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}

	_, err := b.breaker(op).Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// State returns the current state of the breaker of operation
func (b *Breaker) State(operation string) gobreaker.State {
	return b.breaker(operation).State()
}

func (b *Breaker) breaker(operation string) *gobreaker.CircuitBreaker[any] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if cb, ok := b.breakers[operation]; ok {
		return cb
	}

	settings := gobreaker.Settings{
		Name:        operation,
		MaxRequests: b.cfg.HalfOpenMaxCalls,
		Timeout:     b.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < b.cfg.MinRequests {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= b.cfg.FailureRatio
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !b.isFailure(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if b.logger != nil {
				b.logger.Info("Circuit breaker state change",
					"operation", name,
					"from", from.String(),
					"to", to.String(),
				)
			}
			if b.onChange != nil {
				b.onChange(name, from, to)
			}
		},
	}

	cb := gobreaker.NewCircuitBreaker[any](settings)
	b.breakers[operation] = cb
	return cb
}
