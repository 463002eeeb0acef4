package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/garyjia/billed/internal/application/port"
	"github.com/garyjia/billed/internal/domain/entity"
	"github.com/garyjia/billed/internal/infrastructure/store/remote"
)

const (
	// SessionCookie holds the connected user as JSON: {"type":"Employee","email":"a@a"}
	SessionCookie = "user"

	sessionKey = "session"
)

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", status,
			"latency", latency.String(),
			"client_ip", c.ClientIP(),
		)
	}
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", remote.EmailHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	})
}

// sessionMiddleware reads the session cookie. A missing or malformed
// cookie leaves the request without a session.
func sessionMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, err := c.Cookie(SessionCookie)
		if err == nil && raw != "" {
			var session entity.Session
			if err := json.Unmarshal([]byte(raw), &session); err == nil && session.Email != "" {
				c.Set(sessionKey, &session)
			}
		}
		c.Next()
	}
}

// requireEmployee sends visitors without an employee session to the login page
func requireEmployee() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !sessionFrom(c).IsEmployee() {
			c.Redirect(http.StatusFound, port.RouteLogin)
			c.Abort()
			return
		}
		c.Next()
	}
}

// apiSession builds the session of a store API caller from the email header
func apiSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.GetHeader(remote.EmailHeader)
		if email == "" {
			abortWithStatus(c, http.StatusUnauthorized)
			return
		}
		c.Set(sessionKey, &entity.Session{Type: entity.UserTypeEmployee, Email: email})
		c.Next()
	}
}

// sessionFrom returns the request session, nil when there is none
func sessionFrom(c *gin.Context) *entity.Session {
	v, ok := c.Get(sessionKey)
	if !ok {
		return nil
	}
	session, _ := v.(*entity.Session)
	return session
}

func setSessionCookie(c *gin.Context, session *entity.Session) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookie, string(raw), 0, "/", "", false, true)
	return nil
}
