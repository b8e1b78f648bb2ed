package store

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel kinds for event store errors.
var (
	// ErrUnavailable marks a backend that cannot currently serve requests:
	// network failure, 5xx responses or an open circuit breaker.
	ErrUnavailable = errors.New("event store unavailable")
	// ErrInvalidConfig is returned for unusable constructor arguments.
	ErrInvalidConfig = errors.New("invalid event store config")
	// ErrDecode marks a response body that is not the expected document.
	ErrDecode = errors.New("event store response malformed")
)

// StatusError reports a non-2xx response from the backend.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("event store %s: %d %s", e.Op, e.Code, http.StatusText(e.Code))
}

// Unwrap classifies server-side failures as ErrUnavailable.
func (e *StatusError) Unwrap() error {
	if e.Code >= http.StatusInternalServerError {
		return ErrUnavailable
	}
	return nil
}
