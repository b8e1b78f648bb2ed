package seed

import "errors"

var (
	// ErrInvalidConfig is returned when run settings are unusable.
	ErrInvalidConfig = errors.New("invalid seed config")
	// ErrUnhealthy is returned when the service health check fails.
	ErrUnhealthy = errors.New("service unhealthy")
	// ErrRejected is returned when the service refuses a record.
	ErrRejected = errors.New("record rejected")
)
