package container

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/garyjia/billed/internal/application/dispatcher"
	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/config"
	"github.com/garyjia/billed/internal/infrastructure/export"
	"github.com/garyjia/billed/internal/infrastructure/metrics"
	apphttp "github.com/garyjia/billed/internal/interfaces/http"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	metrics  *metrics.Metrics
	natsConn *nats.Conn
	stores   *StoreBundle

	// Application
	dispatcher dispatcher.Dispatcher

	// Interface
	forms  *apphttp.FormRegistry
	server *apphttp.Server

	// Lifecycle
	mu        sync.Mutex
	cancel    context.CancelFunc
	sweepDone chan struct{}
	ready     atomic.Bool
	closed    atomic.Bool
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components:
// 1. Metrics
// 2. Event dispatcher and NATS forwarding
// 3. Store (database and receipts in local mode)
// 4. HTTP server and form registry
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization", zap.String("store_mode", c.config.Store.Mode))

	c.metrics = metrics.New()

	c.dispatcher = ProvideDispatcher(c.metrics, c.logger)
	conn, err := ProvideEventForwarder(&c.config.NATS, c.dispatcher, c.logger)
	if err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize messaging: %w", err)
	}
	c.natsConn = conn
	c.logger.Info("Dispatcher initialized")

	stores, err := ProvideStore(c.config, c.dispatcher, c.metrics, c.logger)
	if err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	c.stores = stores
	c.logger.Info("Store initialized")

	if err := c.initHTTP(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	sweepCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.sweepDone = make(chan struct{})
	go func() {
		defer close(c.sweepDone)
		c.forms.Run(sweepCtx, c.config.Forms.SweepInterval)
	}()

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

func (c *Container) initHTTP() error {
	httpLogger := &zapLoggerAdapter{logger: c.logger.Named("http")}

	c.forms = apphttp.NewFormRegistry(c.config.Forms.IdleTTL, httpLogger,
		apphttp.WithOpenFormsGauge(c.metrics.SetOpenForms),
	)

	deps := apphttp.Dependencies{
		Store:    c.stores.Store,
		Forms:    c.forms,
		Exporter: export.NewXLSXExporter(c.logger.Named("export")),
		Metrics:  c.metrics,
		Checks:   c.healthChecks(),
	}
	if c.stores.Local != nil {
		deps.API = c.stores.Local
		deps.Receipts = c.stores.Receipts
	}

	server, err := apphttp.NewServer(apphttp.ServerConfig{
		Host:            c.config.Server.Host,
		Port:            c.config.Server.Port,
		ReadTimeout:     c.config.Server.ReadTimeout,
		WriteTimeout:    c.config.Server.WriteTimeout,
		ShutdownTimeout: c.config.Server.ShutdownTimeout,
		AllowedOrigins:  c.config.Server.AllowedOrigins,
		MaxUploadSize:   c.config.Storage.MaxUploadSize,
	}, deps, httpLogger)
	if err != nil {
		return err
	}
	c.server = server
	return nil
}

func (c *Container) healthChecks() map[string]apphttp.HealthCheck {
	checks := map[string]apphttp.HealthCheck{}
	if c.stores.DB != nil {
		db := c.stores.DB
		checks["database"] = func(ctx context.Context) error {
			return db.PingContext(ctx)
		}
	}
	if c.natsConn != nil {
		conn := c.natsConn
		checks["nats"] = func(context.Context) error {
			if !conn.IsConnected() {
				return fmt.Errorf("nats %s", conn.Status())
			}
			return nil
		}
	}
	return checks
}

// Close stops all components in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	err := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if err != nil {
		c.logger.Error("Container closed with errors", zap.Error(err))
		return err
	}
	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases whatever has been initialized so far, once
func (c *Container) teardown() error {
	var errs []error

	if c.cancel != nil {
		c.cancel()
		<-c.sweepDone
		c.cancel = nil
	}

	// Waits for in-flight async handlers, so it goes before NATS
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	if c.natsConn != nil {
		if err := c.natsConn.Drain(); err != nil {
			c.natsConn.Close()
		}
		c.logger.Info("NATS connection closed")
		c.natsConn = nil
	}

	if c.stores != nil && c.stores.DB != nil {
		if err := c.stores.DB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.stores.DB = nil
	}

	return errors.Join(errs...)
}

// Ready returns true once Start succeeded and until Close
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Server returns the HTTP server
func (c *Container) Server() *apphttp.Server {
	return c.server
}

// Store returns the store backing the pages, nil when none is configured
func (c *Container) Store() port.Store {
	if c.stores == nil {
		return nil
	}
	return c.stores.Store
}

// Dispatcher returns the event dispatcher
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Metrics returns the metrics
func (c *Container) Metrics() *metrics.Metrics {
	return c.metrics
}

// Logger returns the container's logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the Logger interfaces of the
// application and infrastructure packages
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Info(msg, fields...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	fields := convertToZapFields(keysAndValues...)
	a.logger.Error(msg, fields...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
