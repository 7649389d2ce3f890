package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/social-backend/internal/auth"
	"github.com/yungbote/social-backend/internal/clients/redis"
	"github.com/yungbote/social-backend/internal/platform/logger"
	"github.com/yungbote/social-backend/internal/platform/redisdb"
	"github.com/yungbote/social-backend/internal/realtime/bus"
)

type Clients struct {
	Redis       *goredis.Client
	Bus         bus.Bus
	Revocations auth.RevocationStore
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	// Redis backs revocation in every mode; the bus may run in-process.
	rdb, err := redisdb.Connect(ctx, log, cfg.Redis.client())
	if err != nil {
		return Clients{}, fmt.Errorf("init redis: %w", err)
	}

	store, err := redis.NewRevocationStore(rdb)
	if err != nil {
		_ = rdb.Close()
		return Clients{}, fmt.Errorf("init revocation store: %w", err)
	}

	var b bus.Bus
	switch cfg.Realtime.BusDriver {
	case "memory":
		log.Warn("Using in-process bus; events will not reach other instances")
		b = bus.NewMemoryBus()
	default:
		rb, err := bus.NewRedisBus(log, rdb, cfg.Realtime.Channel)
		if err != nil {
			_ = rdb.Close()
			return Clients{}, fmt.Errorf("init redis bus: %w", err)
		}
		b = rb
	}

	return Clients{
		Redis: rdb,
		Bus:   b,
		Revocations: auth.NewBreakerStore(log, store, auth.BreakerSettings{
			ConsecutiveFailures: uint32(max(cfg.BreakerFailures, 0)),
			OpenTimeout:         cfg.BreakerOpenTimeout,
		}),
	}, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.Bus != nil {
		_ = c.Bus.Close()
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
}
