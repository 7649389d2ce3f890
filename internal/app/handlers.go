package app

import (
	"context"

	httpH "github.com/yungbote/social-backend/internal/http/handlers"
	httpMW "github.com/yungbote/social-backend/internal/http/middleware"
	"github.com/yungbote/social-backend/internal/observability"
	"github.com/yungbote/social-backend/internal/platform/logger"
	"github.com/yungbote/social-backend/internal/realtime"
)

type Handlers struct {
	Auth     *httpH.AuthHandler
	Realtime *httpH.RealtimeHandler
	Health   *httpH.HealthHandler
}

type Middleware struct {
	Auth      *httpMW.AuthMiddleware
	Handshake *httpMW.HandshakeLimiter
}

// wireHandlers builds the HTTP surface. Sockets accepted by the realtime
// handler live on socketCtx rather than their request context.
func wireHandlers(socketCtx context.Context, log *logger.Logger, cfg Config, clients Clients, services Services, metrics *observability.Metrics) Handlers {
	log.Info("Wiring handlers...")
	rt := cfg.Realtime
	return Handlers{
		Auth: httpH.NewAuthHandler(log, services.Gate),
		Realtime: httpH.NewRealtimeHandler(socketCtx, log, services.Gate, services.Registry, metrics, httpH.RealtimeConfig{
			AllowedOrigins: cfg.AllowedOrigins,
			WS: realtime.WSConfig{
				WriteTimeout:   rt.WriteTimeout,
				PongWait:       rt.PongWait,
				MaxMessageSize: rt.MaxMessageSize,
			},
		}),
		Health: httpH.NewHealthHandler(services.Bridge, services.Registry, httpH.PingFunc(func(ctx context.Context) error {
			return clients.Redis.Ping(ctx).Err()
		})),
	}
}

func wireMiddleware(log *logger.Logger, cfg Config, services Services, metrics *observability.Metrics) Middleware {
	log.Info("Wiring middleware...")
	return Middleware{
		Auth:      httpMW.NewAuthMiddleware(log, services.Gate),
		Handshake: httpMW.NewHandshakeLimiter(cfg.Realtime.HandshakeRate, cfg.Realtime.HandshakeBurst, metrics),
	}
}
