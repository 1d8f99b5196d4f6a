package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthCheckTimeout = 5 * time.Second

const (
	healthStatusHealthy   = "healthy"
	healthStatusDegraded  = "degraded"
	healthStatusUnhealthy = "unhealthy"
)

// HealthCheck probes one dependency. A failing critical check marks the
// service unhealthy; any other failure only degrades it.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

type healthResponsePayload struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	response := healthResponsePayload{Status: healthStatusHealthy, Checks: map[string]string{}}
	for _, check := range h.healthChecks {
		if err := check.Check(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("check", check.Name), zap.Error(err))
			response.Checks[check.Name] = healthStatusUnhealthy
			if check.Critical {
				response.Status = healthStatusUnhealthy
			} else if response.Status == healthStatusHealthy {
				response.Status = healthStatusDegraded
			}
			continue
		}
		response.Checks[check.Name] = "ok"
	}

	code := http.StatusOK
	if response.Status == healthStatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, response)
}
