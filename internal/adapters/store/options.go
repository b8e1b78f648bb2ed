package store

import (
	"net/http"
	"time"

	"github.com/okian/migrisk/pkg/logger"
)

// Option applies a configuration option to the FirebaseStore.
type Option func(*FirebaseStore)

// WithAuthToken appends the token as the "auth" query parameter.
func WithAuthToken(token string) Option {
	return func(s *FirebaseStore) {
		s.authToken = token
	}
}

// WithTimeout bounds every backend call.
func WithTimeout(timeout time.Duration) Option {
	return func(s *FirebaseStore) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithRateLimit caps outbound requests per second. Zero disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *FirebaseStore) {
		if perSecond > 0 {
			s.ratePerSec = perSecond
		}
		if burst > 0 {
			s.burst = burst
		}
	}
}

// WithBreakerFailures sets the consecutive failures that open the breaker.
func WithBreakerFailures(n uint32) Option {
	return func(s *FirebaseStore) {
		if n > 0 {
			s.breakerFailures = n
		}
	}
}

// WithBreakerTimeout sets how long the breaker stays open before probing.
func WithBreakerTimeout(d time.Duration) Option {
	return func(s *FirebaseStore) {
		if d > 0 {
			s.breakerTimeout = d
		}
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *FirebaseStore) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *FirebaseStore) {
		if l != nil {
			s.logger = l
		}
	}
}
