package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/social-backend/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("PORT", "")
	t.Setenv("BUS_DRIVER", "")
	t.Setenv("REDIS_CHANNEL", "")
	t.Setenv("ACCESS_TOKEN_TTL", "")
	t.Setenv("BRIDGE_RECONNECT_MAX_TRIES", "")

	cfg, err := LoadConfig(logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "chat_broadcast_channel", cfg.Realtime.Channel)
	assert.Equal(t, time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, 10, cfg.Realtime.ReconnectMaxTries)
	assert.Equal(t, "redis", cfg.Realtime.BusDriver)
}

func TestLoadConfigRequiresSecret(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET_KEY", "")
	_, err := LoadConfig(logger.NewNop())
	assert.ErrorContains(t, err, "JWT_SECRET_KEY")
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
jwt_secret_key: from-file
access_token_ttl: 30m
redis:
  host: redis.internal
  port: 6380
  db: 2
realtime:
  channel: fanout
  dispatch_workers: 3
  reconnect_max_tries: 0
allowed_origins:
  - https://social.example.com
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("JWT_SECRET_KEY", "")
	t.Setenv("PORT", "7070")
	t.Setenv("REDIS_DB", "4")
	t.Setenv("DISPATCH_WORKERS", "")
	t.Setenv("ACCESS_TOKEN_TTL", "")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("REDIS_PORT", "")
	t.Setenv("REDIS_POOL_SIZE", "")
	t.Setenv("REDIS_CHANNEL", "")
	t.Setenv("BRIDGE_RECONNECT_MAX_TRIES", "")
	t.Setenv("ALLOWED_ORIGINS", "")

	cfg, err := LoadConfig(logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "from-file", cfg.JWTSecretKey)
	assert.Equal(t, 30*time.Minute, cfg.AccessTokenTTL)
	assert.Equal(t, "redis.internal", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, 4, cfg.Redis.DB)
	assert.Equal(t, 20, cfg.Redis.PoolSize)
	assert.Equal(t, "fanout", cfg.Realtime.Channel)
	assert.Equal(t, 3, cfg.Realtime.DispatchWorkers)
	assert.Zero(t, cfg.Realtime.ReconnectMaxTries)
	assert.Equal(t, []string{"https://social.example.com"}, cfg.AllowedOrigins)
}

func TestLoadConfigRejectsUnknownBusDriver(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_SECRET_KEY", "s3cret")
	t.Setenv("BUS_DRIVER", "kafka")
	_, err := LoadConfig(logger.NewNop())
	assert.ErrorContains(t, err, "BUS_DRIVER")
}
