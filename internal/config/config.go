// Package config defines service configuration structures and loading hooks.
//
// Values are layered by Load: defaults from New, then an optional YAML file,
// then MIGRISK_ prefixed environment variables.
package config

import (
	"runtime"
)

// Log output formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log encoder: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ModelVersion is echoed in every prediction.
	ModelVersion string `koanf:"model_version"`

	// ModelsPath points at a JSON model bundle. Empty uses the built-in bundle.
	ModelsPath string `koanf:"models_path"`

	// StoreURL is the base URL of the Firebase Realtime Database. Empty keeps
	// events in process memory.
	StoreURL string `koanf:"store_url"`

	// StoreAuthToken is appended as ?auth= to store requests when set.
	StoreAuthToken string `koanf:"store_auth_token"`

	// StoreTimeoutMS bounds each store request.
	StoreTimeoutMS int `koanf:"store_timeout_ms"`

	// StoreRatePerSec caps outbound store requests; 0 disables the limiter.
	StoreRatePerSec float64 `koanf:"store_rate_per_sec"`

	// StoreBreakerFailures is the consecutive failure count that opens the
	// store circuit breaker.
	StoreBreakerFailures int `koanf:"store_breaker_failures"`

	// CORSAllowedOrigins lists origins allowed by the CORS middleware.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`

	// RateLimitRequests caps requests per client IP per window; 0 disables it.
	RateLimitRequests int `koanf:"rate_limit_requests"`

	// RateLimitWindowS is the rate limit window in seconds.
	RateLimitWindowS int `koanf:"rate_limit_window_s"`

	// QueueSize bounds the in-memory ingestion queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of scoring workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the event id deduplication window.
	DedupeSize int `koanf:"dedupe_size"`

	// ShutdownTimeoutS bounds graceful shutdown.
	ShutdownTimeoutS int `koanf:"shutdown_timeout_s"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            LogFormatText,
		Addr:                 ":8000",
		ModelVersion:         "v1.0",
		StoreTimeoutMS:       5000,
		StoreRatePerSec:      0,
		StoreBreakerFailures: 5,
		CORSAllowedOrigins:   []string{"*"},
		RateLimitRequests:    100,
		RateLimitWindowS:     60,
		QueueSize:            10_000,
		WorkerCount:          runtime.NumCPU(),
		DedupeSize:           50_000,
		ShutdownTimeoutS:     10,
	}
}
