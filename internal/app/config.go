package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/social-backend/internal/platform/envutil"
	"github.com/yungbote/social-backend/internal/platform/logger"
	"github.com/yungbote/social-backend/internal/platform/redisdb"
	"github.com/yungbote/social-backend/internal/realtime/bus"
)

type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db"`
	PoolSize    int           `yaml:"pool_size"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

func (r RedisConfig) client() redisdb.Config {
	return redisdb.Config{
		Addr:        r.Addr,
		Host:        r.Host,
		Port:        r.Port,
		Password:    r.Password,
		DB:          r.DB,
		PoolSize:    r.PoolSize,
		DialTimeout: r.DialTimeout,
	}
}

type RealtimeConfig struct {
	// BusDriver is "redis" or "memory"; memory only fans out within this
	// process.
	BusDriver             string        `yaml:"bus_driver"`
	Channel               string        `yaml:"channel"`
	DispatchWorkers       int           `yaml:"dispatch_workers"`
	DispatchQueueSize     int           `yaml:"dispatch_queue_size"`
	EnqueueTimeout        time.Duration `yaml:"enqueue_timeout"`
	DeliveryConcurrency   int           `yaml:"delivery_concurrency"`
	WriteTimeout          time.Duration `yaml:"write_timeout"`
	PongWait              time.Duration `yaml:"pong_wait"`
	MaxMessageSize        int64         `yaml:"max_message_size"`
	MaxConnectionsPerUser int           `yaml:"max_connections_per_user"`
	ReconnectMaxTries     int           `yaml:"reconnect_max_tries"`
	ReconnectMaxInterval  time.Duration `yaml:"reconnect_max_interval"`
	HandshakeRate         float64       `yaml:"handshake_rate"`
	HandshakeBurst        int           `yaml:"handshake_burst"`
}

type Config struct {
	Env         string `yaml:"env"`
	Port        string `yaml:"port"`
	LogMode     string `yaml:"log_mode"`
	ServiceName string `yaml:"service_name"`
	Version     string `yaml:"version"`

	JWTSecretKey     string        `yaml:"jwt_secret_key"`
	AccessTokenTTL   time.Duration `yaml:"access_token_ttl"`
	RefreshTokenTTL  time.Duration `yaml:"refresh_token_ttl"`
	PasswordResetTTL time.Duration `yaml:"password_reset_token_ttl"`

	BreakerFailures    int           `yaml:"revocation_breaker_failures"`
	BreakerOpenTimeout time.Duration `yaml:"revocation_breaker_open_timeout"`

	Redis    RedisConfig    `yaml:"redis"`
	Realtime RealtimeConfig `yaml:"realtime"`

	AllowedOrigins  []string      `yaml:"allowed_origins"`
	MetricsEnabled  bool          `yaml:"metrics_enabled"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func defaultConfig() Config {
	return Config{
		Env:              "development",
		Port:             "8080",
		LogMode:          "development",
		ServiceName:      "social-backend",
		AccessTokenTTL:   time.Hour,
		RefreshTokenTTL:  7 * 24 * time.Hour,
		PasswordResetTTL: 15 * time.Minute,

		BreakerFailures:    5,
		BreakerOpenTimeout: 10 * time.Second,

		Redis: RedisConfig{Host: "localhost", Port: 6379, PoolSize: 20, DialTimeout: 5 * time.Second},
		Realtime: RealtimeConfig{
			BusDriver:            "redis",
			Channel:              bus.DefaultChannel,
			DispatchWorkers:      8,
			DispatchQueueSize:    1024,
			EnqueueTimeout:       100 * time.Millisecond,
			DeliveryConcurrency:  64,
			WriteTimeout:         10 * time.Second,
			PongWait:             60 * time.Second,
			MaxMessageSize:       4096,
			ReconnectMaxTries:    10,
			ReconnectMaxInterval: 10 * time.Second,
			HandshakeRate:        5,
			HandshakeBurst:       10,
		},
		ShutdownTimeout: 15 * time.Second,
	}
}

// LoadConfig layers defaults, then the YAML file named by CONFIG_FILE, then
// environment variables.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()

	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		log.Info("Loaded config file", "path", path)
	}

	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Env = envutil.String("APP_ENV", cfg.Env)
	cfg.Port = envutil.String("PORT", cfg.Port)
	cfg.LogMode = envutil.String("LOG_MODE", cfg.LogMode)
	cfg.ServiceName = envutil.String("OTEL_SERVICE_NAME", cfg.ServiceName)
	cfg.Version = envutil.String("APP_VERSION", cfg.Version)

	cfg.JWTSecretKey = envutil.String("JWT_SECRET_KEY", cfg.JWTSecretKey)
	cfg.AccessTokenTTL = envutil.Seconds("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL)
	cfg.RefreshTokenTTL = envutil.Seconds("REFRESH_TOKEN_TTL", cfg.RefreshTokenTTL)
	cfg.PasswordResetTTL = envutil.Seconds("PASSWORD_RESET_TOKEN_TTL", cfg.PasswordResetTTL)
	cfg.BreakerFailures = envutil.Int("REVOCATION_BREAKER_FAILURES", cfg.BreakerFailures)
	cfg.BreakerOpenTimeout = envutil.Duration("REVOCATION_BREAKER_OPEN_TIMEOUT", cfg.BreakerOpenTimeout)

	r := &cfg.Redis
	r.Addr = envutil.String("REDIS_ADDR", r.Addr)
	r.Host = envutil.String("REDIS_HOST", r.Host)
	r.Port = envutil.Int("REDIS_PORT", r.Port)
	r.Password = envutil.String("REDIS_PASSWORD", r.Password)
	r.DB = envutil.Int("REDIS_DB", r.DB)
	r.PoolSize = envutil.Int("REDIS_POOL_SIZE", r.PoolSize)
	r.DialTimeout = envutil.Duration("REDIS_DIAL_TIMEOUT", r.DialTimeout)

	rt := &cfg.Realtime
	rt.BusDriver = strings.ToLower(envutil.String("BUS_DRIVER", rt.BusDriver))
	rt.Channel = envutil.String("REDIS_CHANNEL", rt.Channel)
	rt.DispatchWorkers = envutil.Int("DISPATCH_WORKERS", rt.DispatchWorkers)
	rt.DispatchQueueSize = envutil.Int("DISPATCH_QUEUE_SIZE", rt.DispatchQueueSize)
	rt.EnqueueTimeout = envutil.Duration("DISPATCH_ENQUEUE_TIMEOUT", rt.EnqueueTimeout)
	rt.DeliveryConcurrency = envutil.Int("DELIVERY_CONCURRENCY", rt.DeliveryConcurrency)
	rt.WriteTimeout = envutil.Duration("WS_WRITE_TIMEOUT", rt.WriteTimeout)
	rt.PongWait = envutil.Duration("WS_PONG_WAIT", rt.PongWait)
	rt.MaxMessageSize = int64(envutil.Int("WS_MAX_MESSAGE_SIZE", int(rt.MaxMessageSize)))
	rt.MaxConnectionsPerUser = envutil.Int("MAX_CONNECTIONS_PER_USER", rt.MaxConnectionsPerUser)
	rt.ReconnectMaxTries = envutil.Int("BRIDGE_RECONNECT_MAX_TRIES", rt.ReconnectMaxTries)
	rt.ReconnectMaxInterval = envutil.Duration("BRIDGE_RECONNECT_MAX_INTERVAL", rt.ReconnectMaxInterval)
	rt.HandshakeRate = envutil.Float("WS_HANDSHAKE_RATE", rt.HandshakeRate)
	rt.HandshakeBurst = envutil.Int("WS_HANDSHAKE_BURST", rt.HandshakeBurst)

	cfg.AllowedOrigins = envutil.List("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.MetricsEnabled = envutil.Bool("METRICS_ENABLED", cfg.MetricsEnabled)
	cfg.ShutdownTimeout = envutil.Seconds("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
}

func (c Config) validate() error {
	if strings.TrimSpace(c.JWTSecretKey) == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	switch c.Realtime.BusDriver {
	case "redis", "memory":
	default:
		return fmt.Errorf("BUS_DRIVER must be redis or memory, got %q", c.Realtime.BusDriver)
	}
	if c.Realtime.ReconnectMaxTries < 0 {
		return fmt.Errorf("BRIDGE_RECONNECT_MAX_TRIES must not be negative")
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	return nil
}
