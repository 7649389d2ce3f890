package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	httpapi "github.com/yungbote/social-backend/internal/http"
	httpMW "github.com/yungbote/social-backend/internal/http/middleware"
	"github.com/yungbote/social-backend/internal/observability"
	"github.com/yungbote/social-backend/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Metrics  *observability.Metrics
	Clients  Clients
	Services Services
	Server   *httpapi.Server

	limiter       *httpMW.HandshakeLimiter
	limiterStop   chan struct{}
	socketCancel  context.CancelFunc
	collectCancel context.CancelFunc
	otelShutdown  func(context.Context) error

	closing   atomic.Bool
	startOnce sync.Once
	closeOnce sync.Once
	closeErr  error
}

func New(ctx context.Context) (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("load config: %w", err)
	}

	var metrics *observability.Metrics
	if cfg.MetricsEnabled {
		metrics = observability.New()
	}

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}

	services, err := wireServices(log, cfg, clients, metrics)
	if err != nil {
		clients.Close()
		log.Sync()
		return nil, err
	}

	socketCtx, socketCancel := context.WithCancel(context.Background())
	handlers := wireHandlers(socketCtx, log, cfg, clients, services, metrics)
	middleware := wireMiddleware(log, cfg, services, metrics)
	server := httpapi.NewServer(httpapi.RouterConfig{
		Log:              log,
		Metrics:          metrics,
		AllowedOrigins:   cfg.AllowedOrigins,
		ServiceName:      cfg.ServiceName,
		AuthHandler:      handlers.Auth,
		AuthMiddleware:   middleware.Auth,
		RealtimeHandler:  handlers.Realtime,
		HandshakeLimiter: middleware.Handshake,
		HealthHandler:    handlers.Health,
	})

	return &App{
		Log:          log,
		Cfg:          cfg,
		Metrics:      metrics,
		Clients:      clients,
		Services:     services,
		Server:       server,
		limiter:      middleware.Handshake,
		limiterStop:  make(chan struct{}),
		socketCancel: socketCancel,
		otelShutdown: func(context.Context) error { return nil },
	}, nil
}

// Start subscribes the bridge before any socket is accepted. A broker that
// is down at boot fails Start.
func (a *App) Start(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	var err error
	a.startOnce.Do(func() {
		a.otelShutdown = observability.InitOTel(ctx, a.Log, observability.OtelConfig{
			ServiceName: a.Cfg.ServiceName,
			Environment: a.Cfg.Env,
			Version:     a.Cfg.Version,
		})

		collectCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		a.collectCancel = cancel
		a.Metrics.StartRedisCollector(collectCtx, a.Log, a.Clients.Redis)

		if err = a.Services.Bridge.Start(ctx); err != nil {
			err = fmt.Errorf("start bridge: %w", err)
			return
		}
		go a.watchBridge()
		go a.limiter.RunSweeper(time.Minute, a.limiterStop)
	})
	return err
}

// watchBridge reports a bridge that gave up reconnecting. The process keeps
// serving so /healthcheck can surface the failure to the orchestrator.
func (a *App) watchBridge() {
	<-a.Services.Bridge.Done()
	if !a.closing.Load() {
		a.Log.Error("fan-out bridge stopped; cross-process delivery is down")
	}
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("Listening", "addr", addr)
	return a.Server.Run(addr)
}

func (a *App) Serve(ln net.Listener) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Serve(ln)
}

// Close stops intake first, then the bridge, then the remaining sockets,
// and only then releases the broker connection.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	a.closeOnce.Do(func() {
		a.closing.Store(true)
		var errs []error
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := a.Services.Bridge.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop bridge: %w", err))
		}
		closed := a.Services.Registry.CloseAll(websocket.CloseGoingAway, "server shutting down")
		a.socketCancel()
		close(a.limiterStop)
		if a.collectCancel != nil {
			a.collectCancel()
		}
		a.Clients.Close()

		otelCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := a.otelShutdown(otelCtx); err != nil {
			errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
		}
		cancel()

		a.closeErr = errors.Join(errs...)
		a.Log.Info("Shutdown complete", "sockets_closed", closed, "error", a.closeErr)
		a.Log.Sync()
	})
	return a.closeErr
}
