// Health endpoint.
//
//   - GET /health (authenticated)
//
// Reports the reachability of the gateway's dependencies: the rate-limit
// counter store, the artifact store, and whether an inference endpoint is
// configured. Checks run against the live clients, so the endpoint doubles
// as a smoke test after deploys. Any failing dependency turns the overall
// status into 503; a missing ledger or disabled Redis is reported but the
// specifics of fail-open behavior stay with the components themselves.
package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/mgeorgiou/go-imagegen-gateway/internal/http/middleware"
	"github.com/mgeorgiou/go-imagegen-gateway/internal/storage"
)

// healthCheckTimeout bounds each dependency probe.
const healthCheckTimeout = 3 * time.Second

// HealthDeps are the live dependencies probed by the health endpoint.
// Nil fields are reported as unconfigured rather than failing.
type HealthDeps struct {
	Redis        redis.Cmdable
	Store        storage.Store
	OutputPrefix string
	EndpointName string
}

// HealthResponse is the health document.
type HealthResponse struct {
	Status     string            `json:"status"` // "ok" or "degraded"
	Components map[string]string `json:"components"`
}

// Health godoc
// @ID          health
// @Summary     Dependency health
// @Description Probes the counter store and artifact store and reports per-component status. Returns 503 when any probed dependency is down.
// @Tags        Ops
// @Produce     json
//
// @Param       Authorization  header  string  true  "Bearer token"
//
// @Success     200  {object}  handlers.HealthResponse
// @Failure     503  {object}  handlers.HealthResponse
// @Router      /health [get]
func (h *Handlers) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	components := map[string]string{}
	degraded := false

	// Probe causes carry addresses, bucket names, and raw SDK text; they go
	// to logs only. Clients see a bare component state.
	if h.health.Redis != nil {
		if err := h.health.Redis.Ping(ctx).Err(); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("component", "redis").Msg("health probe failed")
			components["redis"] = "down"
			degraded = true
		} else {
			components["redis"] = "ok"
		}
	} else {
		components["redis"] = "unconfigured"
	}

	if h.health.Store != nil {
		if _, err := h.health.Store.List(ctx, h.health.OutputPrefix, 1); err != nil {
			middleware.LoggerFrom(c).Warn().Err(err).Str("component", "storage").Msg("health probe failed")
			components["storage"] = "down"
			degraded = true
		} else {
			components["storage"] = "ok"
		}
	} else {
		components["storage"] = "unconfigured"
	}

	if strings.TrimSpace(h.health.EndpointName) == "" {
		components["inference"] = "unconfigured"
		degraded = true
	} else {
		components["inference"] = "configured"
	}

	resp := HealthResponse{Status: "ok", Components: components}
	status := http.StatusOK
	if degraded {
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}
