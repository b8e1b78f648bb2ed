package service

import (
	"errors"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrNotStarted is returned when a submission arrives before Start or
	// after Stop.
	ErrNotStarted = errors.New("service not started")
	// ErrBackpressure is returned when the ingestion queue is full.
	ErrBackpressure = errors.New("ingestion queue is full")
	// ErrProfileNotFound is returned when a user has no stored profile.
	ErrProfileNotFound = errors.New("profile not found")
	// ErrInvalidSubmission is returned for submissions without an id or user.
	ErrInvalidSubmission = errors.New("invalid submission")
)
