package handlers

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yungbote/social-backend/internal/auth"
	"github.com/yungbote/social-backend/internal/http/middleware"
	"github.com/yungbote/social-backend/internal/observability"
	"github.com/yungbote/social-backend/internal/platform/logger"
	"github.com/yungbote/social-backend/internal/realtime"
)

type RealtimeConfig struct {
	AllowedOrigins []string
	WS             realtime.WSConfig
}

// RealtimeHandler upgrades /ws/chat connections. Authorization finishes
// before the upgrade is acknowledged, but a rejected client still gets a
// completed upgrade followed by a 1008 close so it can tell a policy
// rejection from a network failure.
type RealtimeHandler struct {
	log      *logger.Logger
	gate     *auth.Gate
	registry *realtime.Registry
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
	wsCfg    realtime.WSConfig
	baseCtx  context.Context
}

// NewRealtimeHandler serves sockets until baseCtx ends, then closes them
// with 1001.
func NewRealtimeHandler(baseCtx context.Context, log *logger.Logger, gate *auth.Gate, registry *realtime.Registry, metrics *observability.Metrics, cfg RealtimeConfig) *RealtimeHandler {
	return &RealtimeHandler{
		log:      log.With("handler", "RealtimeHandler"),
		gate:     gate,
		registry: registry,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		wsCfg:   cfg.WS,
		baseCtx: baseCtx,
	}
}

func (h *RealtimeHandler) Connect(c *gin.Context) {
	throttled := middleware.Throttled(c)
	var (
		tok     auth.Token[auth.Session]
		authErr error
	)
	if !throttled {
		tok, authErr = h.gate.AuthorizeSession(c.Request.Context(), c.Query("token"))
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, middleware.UpgradeHeaders(c))
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.metrics.Handshake("upgrade_failed")
		h.log.Debug("websocket upgrade failed", "error", err, "client_ip", c.ClientIP())
		return
	}
	conn := realtime.NewWSConn(h.log, ws, tok.UserID, h.wsCfg)

	if throttled {
		h.log.Info("socket throttled", "client_ip", c.ClientIP())
		_ = conn.Close(websocket.CloseTryAgainLater, "rate limited")
		return
	}

	if authErr != nil {
		h.metrics.Handshake("rejected")
		h.log.Info("socket rejected", "reason", string(auth.ReasonOf(authErr)), "client_ip", c.ClientIP())
		_ = conn.Close(websocket.ClosePolicyViolation, "unauthorized")
		return
	}

	if err := h.registry.Connect(tok.UserID, conn); err != nil {
		h.metrics.Handshake("over_limit")
		h.log.Info("socket refused", "user_id", tok.UserID, "error", err)
		reason := "connection refused"
		if errors.Is(err, realtime.ErrUserConnectionLimit) {
			reason = "too many connections"
		}
		_ = conn.Close(websocket.ClosePolicyViolation, reason)
		return
	}
	defer h.registry.Disconnect(tok.UserID, conn)

	h.metrics.Handshake("accepted")
	h.log.Debug("socket connected", "user_id", tok.UserID, "conn_id", conn.ID())
	conn.Serve(h.baseCtx)
	h.log.Debug("socket disconnected", "user_id", tok.UserID, "conn_id", conn.ID())
}
