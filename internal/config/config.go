package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/spf13/viper"

	"userService/internal/errs"
	"userService/internal/executor"
	"userService/internal/pool"
)

// Config holds all application configuration.
type Config struct {
	HTTP            HTTPConfig
	Database        DatabaseConfig
	Pool            PoolConfig
	Executor        ExecutorConfig
	GRPC            GRPCConfig
	Log             LogConfig
	ShutdownTimeout time.Duration
}

// HTTPConfig contains the listener settings.
type HTTPConfig struct {
	Bind string
	Port int
}

// Addr is the host:port the HTTP server listens on.
func (c HTTPConfig) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// DatabaseConfig contains the data source.
type DatabaseConfig struct {
	URL    string
	Driver string // optional override of the driver picked from the URL scheme
}

// PoolConfig mirrors pool.Config.
type PoolConfig struct {
	MaxSize        int
	MinIdle        int
	Timeout        time.Duration
	MaxLifetime    time.Duration
	TestOnCheckout bool
}

// Options converts to pool.Config. POOL_MIN_IDLE=0 means no prefill.
func (c PoolConfig) Options() pool.Config {
	minIdle := c.MinIdle
	if minIdle == 0 {
		minIdle = -1
	}
	return pool.Config{
		MaxSize:           c.MaxSize,
		MinIdle:           minIdle,
		ConnectionTimeout: c.Timeout,
		MaxLifetime:       c.MaxLifetime,
		TestOnCheckout:    c.TestOnCheckout,
	}
}

// ExecutorConfig contains the offload worker settings.
type ExecutorConfig struct {
	Workers   int
	QueueSize int
}

// Options converts to executor.Config.
func (c ExecutorConfig) Options() executor.Config {
	return executor.Config{Workers: c.Workers, QueueSize: c.QueueSize}
}

// GRPCConfig contains gRPC server settings. An empty Address disables it.
type GRPCConfig struct {
	Address string
}

// LogConfig selects the logger level and encoding.
type LogConfig struct {
	Level  string
	Format string
}

var defaults = map[string]any{
	"BIND":                  "127.0.0.1",
	"PORT":                  "9000",
	"DATABASE_DRIVER":       "",
	"POOL_MAX_SIZE":         "10",
	"POOL_MIN_IDLE":         "1",
	"POOL_TIMEOUT":          "30s",
	"POOL_MAX_LIFETIME":     "0s",
	"POOL_TEST_ON_CHECKOUT": "false",
	"WORKERS":               "10",
	"WORKER_QUEUE_SIZE":     "0",
	"GRPC_ADDRESS":          "",
	"LOG_LEVEL":             "info",
	"LOG_FORMAT":            "console",
	"SHUTDOWN_TIMEOUT":      "5s",
}

// Load reads configuration from environment variables. DATABASE_URL is
// required; malformed numbers and durations are rejected rather than
// replaced by defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	r := reader{v: v}

	cfg := &Config{
		HTTP: HTTPConfig{
			Bind: r.str("BIND"),
			Port: r.intIn("PORT", 1, 65535),
		},
		Database: DatabaseConfig{
			URL:    r.str("DATABASE_URL"),
			Driver: r.str("DATABASE_DRIVER"),
		},
		Pool: PoolConfig{
			MaxSize:        r.intIn("POOL_MAX_SIZE", 1, 1<<16),
			MinIdle:        r.intIn("POOL_MIN_IDLE", 0, 1<<16),
			Timeout:        r.duration("POOL_TIMEOUT"),
			MaxLifetime:    r.duration("POOL_MAX_LIFETIME"),
			TestOnCheckout: r.boolean("POOL_TEST_ON_CHECKOUT"),
		},
		Executor: ExecutorConfig{
			Workers:   r.intIn("WORKERS", 1, 1<<16),
			QueueSize: r.intIn("WORKER_QUEUE_SIZE", 0, 1<<30),
		},
		GRPC: GRPCConfig{
			Address: r.str("GRPC_ADDRESS"),
		},
		Log: LogConfig{
			Level:  r.str("LOG_LEVEL"),
			Format: r.str("LOG_FORMAT"),
		},
		ShutdownTimeout: r.duration("SHUTDOWN_TIMEOUT"),
	}
	if r.err != nil {
		return nil, r.err
	}

	if cfg.Database.URL == "" {
		return nil, errs.Errorf(errs.KindConfig, "config.load", "DATABASE_URL environment variable is not set")
	}
	if cfg.Pool.Timeout <= 0 {
		return nil, errs.Errorf(errs.KindConfig, "config.load", "POOL_TIMEOUT must be positive")
	}
	if cfg.Pool.MinIdle > cfg.Pool.MaxSize {
		return nil, errs.Errorf(errs.KindConfig, "config.load", "POOL_MIN_IDLE %d exceeds POOL_MAX_SIZE %d", cfg.Pool.MinIdle, cfg.Pool.MaxSize)
	}
	return cfg, nil
}

// reader keeps the first parse error so Load can read every key in one pass.
type reader struct {
	v   *viper.Viper
	err error
}

func (r *reader) fail(key, value string, err error) {
	if r.err == nil {
		r.err = errs.Errorf(errs.KindConfig, "config.load", "invalid value %q for %s: %v", value, key, err)
	}
}

func (r *reader) str(key string) string { return r.v.GetString(key) }

func (r *reader) intIn(key string, lo, hi int) int {
	raw := r.v.GetString(key)
	n, err := strconv.Atoi(raw)
	if err != nil {
		r.fail(key, raw, err)
		return 0
	}
	if n < lo || n > hi {
		r.fail(key, raw, fmt.Errorf("must be between %d and %d", lo, hi))
		return 0
	}
	return n
}

func (r *reader) duration(key string) time.Duration {
	raw := r.v.GetString(key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		r.fail(key, raw, err)
		return 0
	}
	if d < 0 {
		r.fail(key, raw, fmt.Errorf("must not be negative"))
		return 0
	}
	return d
}

func (r *reader) boolean(key string) bool {
	raw := r.v.GetString(key)
	b, err := strconv.ParseBool(raw)
	if err != nil {
		r.fail(key, raw, err)
		return false
	}
	return b
}

// String returns a string representation of the config (the database
// password is masked).
func (c *Config) String() string {
	return fmt.Sprintf("Config{HTTP: %s, DB: %s, Pool: max=%d min_idle=%d timeout=%s, Workers: %d, gRPC: %q, Log: %s/%s}",
		c.HTTP.Addr(), MaskURL(c.Database.URL), c.Pool.MaxSize, c.Pool.MinIdle, c.Pool.Timeout,
		c.Executor.Workers, c.GRPC.Address, c.Log.Level, c.Log.Format)
}

// MaskURL hides the password of a URL-shaped data source.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	return u.Redacted()
}
