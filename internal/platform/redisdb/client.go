package redisdb

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/social-backend/internal/platform/logger"
)

type Config struct {
	// Addr wins over Host/Port when set.
	Addr        string
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

func (c Config) address() string {
	if addr := strings.TrimSpace(c.Addr); addr != "" {
		return addr
	}
	host := strings.TrimSpace(c.Host)
	if host == "" {
		host = "localhost"
	}
	port := c.Port
	if port == 0 {
		port = 6379
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

func (c Config) Options() *goredis.Options {
	dial := c.DialTimeout
	if dial <= 0 {
		dial = 5 * time.Second
	}
	return &goredis.Options{
		Addr:        c.address(),
		Password:    c.Password,
		DB:          c.DB,
		PoolSize:    c.PoolSize,
		DialTimeout: dial,
		// RESP2 pub/sub frames work against every server version we deploy on.
		Protocol: 2,
	}
}

// Connect opens the shared client used by the bus and the revocation store and
// verifies it with a PING.
func Connect(ctx context.Context, log *logger.Logger, cfg Config) (*goredis.Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	opts := cfg.Options()
	rdb := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}
	log.Info("redis connected", "addr", opts.Addr, "db", opts.DB, "pool_size", opts.PoolSize)
	return rdb, nil
}
