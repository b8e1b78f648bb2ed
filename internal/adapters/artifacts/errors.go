package artifacts

import "errors"

// Sentinel kinds for artifact loading.
var (
	// ErrInvalidBundle marks a bundle that decodes but cannot back the ensemble.
	ErrInvalidBundle = errors.New("invalid model bundle")
)
