package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/social-backend/internal/realtime"
)

// Pinger is satisfied by the redis client.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type HealthHandler struct {
	bridge   *realtime.Bridge
	registry *realtime.Registry
	broker   Pinger
}

func NewHealthHandler(bridge *realtime.Bridge, registry *realtime.Registry, broker Pinger) *HealthHandler {
	return &HealthHandler{bridge: bridge, registry: registry, broker: broker}
}

// HealthCheck reports 503 while the bridge is not listening or the broker
// does not answer a ping.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}

	if h.bridge != nil {
		state := h.bridge.State()
		body["bridge"] = state.String()
		if state != realtime.StateListening {
			status = http.StatusServiceUnavailable
		}
	}
	if h.registry != nil {
		sockets, users := h.registry.Stats()
		body["connections"] = sockets
		body["users"] = users
	}
	if h.broker != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.broker.Ping(ctx); err != nil {
			body["broker"] = "down"
			status = http.StatusServiceUnavailable
		} else {
			body["broker"] = "up"
		}
	}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	c.JSON(status, body)
}
