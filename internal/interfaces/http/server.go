// Package http serves the Billed pages and the store API. Handlers are thin:
// each request is translated into a call on the bills or new-bill container.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/infrastructure/export"
	"github.com/garyjia/billed/internal/infrastructure/metrics"
	"github.com/garyjia/billed/internal/infrastructure/store/local"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
	MaxUploadSize   int64
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		MaxUploadSize:   10 << 20,
	}
}

// Dependencies are the collaborators the routes are served by
type Dependencies struct {
	// Store backs the pages. Nil when no store is configured.
	Store port.Store
	// API is served under /api. Nil disables the store API.
	API port.Store
	// Receipts are served under /receipts. Nil disables the route.
	Receipts port.ReceiptStorage
	Forms    *FormRegistry
	Exporter *export.XLSXExporter
	// Metrics may be nil
	Metrics *metrics.Metrics
	// Checks are run by /health
	Checks map[string]HealthCheck
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	deps       Dependencies
	httpServer *http.Server
	router     *gin.Engine
	logger     Logger
}

// NewServer creates a new HTTP server with the given dependencies
func NewServer(config ServerConfig, deps Dependencies, logger Logger) (*Server, error) {
	router := gin.New()

	tmpl, err := loadTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	router.SetHTMLTemplate(tmpl)

	server := &Server{
		config: config,
		deps:   deps,
		router: router,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server, nil
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
	if s.deps.Metrics != nil {
		s.router.Use(s.deps.Metrics.Middleware())
	}
	if len(s.config.AllowedOrigins) > 0 {
		s.router.Use(corsMiddleware(s.config.AllowedOrigins))
	}
	s.router.MaxMultipartMemory = s.config.MaxUploadSize
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.deps.Store, s.deps.Forms, s.deps.Exporter, s.config.MaxUploadSize, s.logger)
	handlers.checks = s.deps.Checks

	s.router.GET("/health", handlers.Health)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	pages := s.router.Group("/", sessionMiddleware())
	{
		pages.GET(port.RouteLogin, handlers.LoginPage)
		pages.POST(port.RouteLogin, handlers.Login)
		pages.POST("/logout", handlers.Logout)
	}

	employee := s.router.Group("/employee", sessionMiddleware(), requireEmployee())
	{
		employee.GET("/bills", handlers.ListBills)
		employee.GET("/bills/preview", handlers.PreviewReceipt)
		employee.POST("/bills/new", handlers.RequestNewBill)
		employee.GET("/bills/export.xlsx", handlers.ExportBills)

		employee.GET("/bill/new", handlers.NewBillForm)
		employee.POST("/bill/new/:form", handlers.SubmitBill)
		employee.POST("/bill/new/:form/file", handlers.SelectFile)
		employee.GET("/bill/new/:form/status", handlers.FormStatus)
	}

	if s.deps.API != nil {
		api := NewAPIHandlers(s.deps.API, s.deps.Receipts, s.config.MaxUploadSize, s.logger)

		bills := s.router.Group("/api/bills", apiSession())
		{
			bills.GET("", api.ListBills)
			bills.POST("", api.CreateBill)
			bills.PATCH("/:id", api.UpdateBill)
		}

		if s.deps.Receipts != nil {
			s.router.GET(local.ReceiptRoute+"*path", api.ServeReceipt)
		}
	}
}

// Start starts the HTTP server and blocks until ctx is done or the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
