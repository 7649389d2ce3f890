package app

import (
	"fmt"

	"github.com/yungbote/social-backend/internal/auth"
	"github.com/yungbote/social-backend/internal/observability"
	"github.com/yungbote/social-backend/internal/platform/logger"
	"github.com/yungbote/social-backend/internal/realtime"
)

type Services struct {
	Signer     *auth.Signer
	Gate       *auth.Gate
	Registry   *realtime.Registry
	Dispatcher *realtime.Dispatcher
	Bridge     *realtime.Bridge
	Publisher  *realtime.Publisher
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	signer, err := auth.NewSigner(
		cfg.JWTSecretKey,
		auth.WithTTL(auth.ScopeAccess, cfg.AccessTokenTTL),
		auth.WithTTL(auth.ScopeRefresh, cfg.RefreshTokenTTL),
		auth.WithTTL(auth.ScopePasswordReset, cfg.PasswordResetTTL),
	)
	if err != nil {
		return Services{}, fmt.Errorf("init signer: %w", err)
	}
	gate := auth.NewGate(log, signer, clients.Revocations, metrics)

	rt := cfg.Realtime
	registry := realtime.NewRegistry(log, metrics, rt.MaxConnectionsPerUser)
	dispatcher := realtime.NewDispatcher(log, registry, metrics, realtime.DispatcherConfig{
		Concurrency: rt.DeliveryConcurrency,
		SendTimeout: rt.WriteTimeout,
	})
	bridge := realtime.NewBridge(log, clients.Bus, dispatcher, metrics, realtime.BridgeConfig{
		Workers:           rt.DispatchWorkers,
		QueueSize:         rt.DispatchQueueSize,
		EnqueueTimeout:    rt.EnqueueTimeout,
		ReconnectMaxTries: uint(rt.ReconnectMaxTries),
		ReconnectMax:      rt.ReconnectMaxInterval,
	})

	return Services{
		Signer:     signer,
		Gate:       gate,
		Registry:   registry,
		Dispatcher: dispatcher,
		Bridge:     bridge,
		Publisher:  realtime.NewPublisher(log, clients.Bus, metrics),
	}, nil
}
