package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
	"github.com/garyjia/billed/internal/infrastructure/export"
	"github.com/garyjia/billed/pkg/utils"
)

// ServiceName is reported by the health check
const ServiceName = "billed"

// HealthCheck reports whether one component works
type HealthCheck func(ctx context.Context) error

// Handlers contains the page handlers
type Handlers struct {
	checks        map[string]HealthCheck
	store         port.Store
	forms         *FormRegistry
	exporter      *export.XLSXExporter
	maxUploadSize int64
	logger        Logger
}

// NewHandlers creates a new Handlers instance. store may be nil.
func NewHandlers(store port.Store, forms *FormRegistry, exporter *export.XLSXExporter, maxUploadSize int64, logger Logger) *Handlers {
	return &Handlers{
		store:         store,
		forms:         forms,
		exporter:      exporter,
		maxUploadSize: maxUploadSize,
		logger:        logger,
	}
}

// client returns the bills resource for session, nil without a store
func (h *Handlers) client(session *entity.Session) port.BillsClient {
	if h.store == nil {
		return nil
	}
	return h.store.Bills(session)
}

type loginPageData struct {
	Email string
	Error string
}

// Health handles GET /health
func (h *Handlers) Health(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	components := make(map[string]string, len(h.checks))
	for name, check := range h.checks {
		if err := check(c.Request.Context()); err != nil {
			h.logger.Error("Health check failed", "component", name, "error", err)
			components[name] = err.Error()
			status, code = "unhealthy", http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	c.JSON(code, gin.H{
		"status":     status,
		"service":    ServiceName,
		"time":       time.Now().Format(time.RFC3339),
		"components": components,
	})
}

// LoginPage handles GET /
func (h *Handlers) LoginPage(c *gin.Context) {
	if sessionFrom(c).IsEmployee() {
		c.Redirect(http.StatusFound, port.RouteBills)
		return
	}
	c.HTML(http.StatusOK, tmplLogin, loginPageData{})
}

// Login handles POST /. There is no password: the email is the identity.
func (h *Handlers) Login(c *gin.Context) {
	email := strings.TrimSpace(c.PostForm("email"))
	if err := utils.ValidateEmail(email); err != nil {
		c.HTML(http.StatusBadRequest, tmplLogin, loginPageData{Email: email, Error: err.Error()})
		return
	}

	if err := setSessionCookie(c, &entity.Session{Type: entity.UserTypeEmployee, Email: email}); err != nil {
		h.logger.Error("Failed to write session cookie", "error", err)
		c.HTML(http.StatusInternalServerError, tmplLogin, loginPageData{Email: email, Error: err.Error()})
		return
	}

	h.logger.Info("Employee logged in", "email", email)
	c.Redirect(http.StatusSeeOther, port.RouteBills)
}

// Logout handles POST /logout
func (h *Handlers) Logout(c *gin.Context) {
	c.SetCookie(SessionCookie, "", -1, "/", "", false, true)
	c.Redirect(http.StatusSeeOther, port.RouteLogin)
}

// errorText returns the message of the innermost error, e.g. "Erreur 404"
// for a store failure wrapped by the containers
func errorText(err error) string {
	for {
		inner := errors.Unwrap(err)
		if inner == nil {
			return err.Error()
		}
		err = inner
	}
}
