// Package config defines service configuration structures and loading hooks.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/okian/fighterstats/internal/adapters/accesslog"
	"github.com/okian/fighterstats/internal/domain/auth"
	"github.com/okian/fighterstats/internal/domain/ratelimit"
)

// Endpoint quota keys.
const (
	EndpointRoot      = "root"
	EndpointFighters  = "fighters"
	EndpointFighter   = "fighter"
	EndpointStriking  = "striking"
	EndpointGrappling = "grappling"
	EndpointSearch    = "search"
	EndpointStats     = "stats"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8000".
	Addr string `koanf:"addr"`

	// DatasetPath points at the fighter statistics CSV.
	DatasetPath string `koanf:"dataset_path"`

	// APIKey is the shared secret every protected route requires.
	APIKey string `koanf:"api_key"`

	Auth      AuthConfig      `koanf:"auth"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	AccessLog AccessLogConfig `koanf:"access_log"`
	HTTP      HTTPConfig      `koanf:"http"`

	// RateLimits maps endpoint keys to quotas such as "5/minute".
	RateLimits map[string]string `koanf:"rate_limits"`
}

// AuthConfig names where credentials are read from.
type AuthConfig struct {
	Header            string `koanf:"header"`
	QueryParam        string `koanf:"query_param"`
	RejectConflicting bool   `koanf:"reject_conflicting"`
}

// RateLimitConfig selects the limiter implementation.
type RateLimitConfig struct {
	Strategy          string        `koanf:"strategy"`
	TrustForwardedFor bool          `koanf:"trust_forwarded_for"`
	SweepInterval     time.Duration `koanf:"sweep_interval"`
}

// AccessLogConfig configures the request log pipeline.
type AccessLogConfig struct {
	Sink          string        `koanf:"sink"`
	Path          string        `koanf:"path"`
	QueueSize     int           `koanf:"queue_size"`
	Workers       int           `koanf:"workers"`
	BatchSize     int           `koanf:"batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
}

// HTTPConfig bounds server timeouts.
type HTTPConfig struct {
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	IdleTimeout     time.Duration `koanf:"idle_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:    "info",
		LogFormat:   "text",
		Addr:        ":8000",
		DatasetPath: "data/ufc_fighters_stats.csv",
		Auth: AuthConfig{
			Header:     auth.DefaultHeader,
			QueryParam: auth.DefaultQueryParam,
		},
		RateLimit: RateLimitConfig{
			Strategy:      string(ratelimit.StrategyFixedWindow),
			SweepInterval: ratelimit.DefaultSweepInterval,
		},
		AccessLog: AccessLogConfig{
			Sink:          accesslog.SinkStdout,
			QueueSize:     10_000,
			Workers:       1,
			BatchSize:     100,
			FlushInterval: time.Second,
		},
		HTTP: HTTPConfig{
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		RateLimits: DefaultRateLimits(),
	}
}

// DefaultRateLimits returns the per-endpoint quotas used when none are configured.
func DefaultRateLimits() map[string]string {
	return map[string]string{
		EndpointRoot:      "10/minute",
		EndpointFighters:  "5/minute",
		EndpointFighter:   "5/minute",
		EndpointStriking:  "3/minute",
		EndpointGrappling: "3/minute",
		EndpointSearch:    "5/minute",
		EndpointStats:     "5/minute",
	}
}

// Quotas parses RateLimits.
func (c *Config) Quotas() (map[string]ratelimit.Quota, error) {
	return ratelimit.ParseQuotas(c.RateLimits)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.DatasetPath == "":
		return fmt.Errorf("%w: dataset_path must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.APIKey) == "":
		return fmt.Errorf("%w: api_key must not be empty", ErrInvalidConfig)
	}

	switch ratelimit.Strategy(c.RateLimit.Strategy) {
	case ratelimit.StrategyFixedWindow, ratelimit.StrategyTokenBucket:
	default:
		return fmt.Errorf("%w: unknown rate_limit.strategy %q", ErrInvalidConfig, c.RateLimit.Strategy)
	}
	if _, err := c.Quotas(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	switch c.AccessLog.Sink {
	case accesslog.SinkStdout:
	case accesslog.SinkFile, accesslog.SinkSQLite:
		if c.AccessLog.Path == "" {
			return fmt.Errorf("%w: access_log.path is required for the %s sink", ErrInvalidConfig, c.AccessLog.Sink)
		}
	default:
		return fmt.Errorf("%w: unknown access_log.sink %q", ErrInvalidConfig, c.AccessLog.Sink)
	}
	if c.AccessLog.QueueSize < 1 {
		return fmt.Errorf("%w: access_log.queue_size must be positive", ErrInvalidConfig)
	}
	return nil
}
