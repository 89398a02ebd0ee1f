package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/DataProRU/Auto-transfers-accounting/internal/infrastructure/logger"
)

// Pinger is a dependency whose liveness gates /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process and credential store health.
type HealthHandler struct {
	checks map[string]Pinger
}

// NewHealthHandler creates a HealthHandler over the named checks.
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Healthz godoc
// GET /healthz
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	result := gin.H{}
	for name, p := range h.checks {
		if err := p.Ping(ctx); err != nil {
			logger.L(ctx).Warn("health check failed", zap.String("check", name), zap.Error(err))
			result[name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		result[name] = "up"
	}
	c.JSON(status, gin.H{"status": http.StatusText(status), "checks": result})
}
