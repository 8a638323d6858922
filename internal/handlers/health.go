package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/keyward/pkg/logger"
	"github.com/charlesng35/keyward/pkg/response"
)

// Pinger reports whether a backing dependency is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves the service banner and readiness check.
type HealthHandler struct {
	db      Pinger
	name    string
	version string
	timeout time.Duration
}

// NewHealthHandler builds a HealthHandler. A nil db skips the database check.
func NewHealthHandler(db Pinger, name, version string) *HealthHandler {
	return &HealthHandler{db: db, name: name, version: version, timeout: 2 * time.Second}
}

// GET /
func (h *HealthHandler) Root(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"status":  "healthy",
		"name":    h.name,
		"version": h.version,
		"api_v1":  "/api/v1",
	})
}

// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	status := "connected"
	code := http.StatusOK

	if h.db != nil {
		ctx, cancel := context.WithTimeout(requestContext(c), h.timeout)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			logger.WithModule("health").Warn("database ping failed", zap.Error(err))
			status = "unreachable"
			code = http.StatusServiceUnavailable
		}
	}

	overall := "healthy"
	if code != http.StatusOK {
		overall = "degraded"
	}
	response.Success(c, code, gin.H{
		"status":   overall,
		"database": status,
		"version":  h.version,
	})
}
