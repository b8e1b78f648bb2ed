package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names.
const (
	EnvPrefix = "MIGRISK_"
	EnvConfig = EnvPrefix + "CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New)
//  2. file (YAML) if MIGRISK_CONFIG is set
//  3. env (prefix MIGRISK_)
func Load(_ context.Context) (*Config, error) {
	k := koanf.New(".")

	if path := os.Getenv(EnvConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %w", ErrLoadConfig, path, err)
		}
	}

	// MIGRISK_QUEUE_SIZE -> queue_size. Keys stay flat to match the koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// MIGRISK_CONFIG names the file, it is not a setting.
	k.Delete("config")

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return invalid("addr must not be empty")
	case c.LogFormat != LogFormatText && c.LogFormat != LogFormatJSON:
		return invalid("log_format must be %q or %q, got %q", LogFormatText, LogFormatJSON, c.LogFormat)
	case c.ModelVersion == "":
		return invalid("model_version must not be empty")
	case c.StoreTimeoutMS <= 0:
		return invalid("store_timeout_ms must be positive, got %d", c.StoreTimeoutMS)
	case c.StoreRatePerSec < 0:
		return invalid("store_rate_per_sec must not be negative, got %g", c.StoreRatePerSec)
	case c.StoreBreakerFailures <= 0:
		return invalid("store_breaker_failures must be positive, got %d", c.StoreBreakerFailures)
	case c.RateLimitRequests < 0:
		return invalid("rate_limit_requests must not be negative, got %d", c.RateLimitRequests)
	case c.RateLimitRequests > 0 && c.RateLimitWindowS <= 0:
		return invalid("rate_limit_window_s must be positive, got %d", c.RateLimitWindowS)
	case c.QueueSize <= 0:
		return invalid("queue_size must be positive, got %d", c.QueueSize)
	case c.WorkerCount <= 0:
		return invalid("worker_count must be positive, got %d", c.WorkerCount)
	case c.DedupeSize < 0:
		return invalid("dedupe_size must not be negative, got %d", c.DedupeSize)
	case c.ShutdownTimeoutS <= 0:
		return invalid("shutdown_timeout_s must be positive, got %d", c.ShutdownTimeoutS)
	}

	if c.StoreURL != "" {
		u, err := url.Parse(c.StoreURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return invalid("store_url must be an absolute http(s) URL, got %q", c.StoreURL)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
