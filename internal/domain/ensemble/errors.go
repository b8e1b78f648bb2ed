package ensemble

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds for this package. These allow errors.Is/As from callers.
var (
	// ErrMissingFeatures marks a client input error: the request lacks
	// required features.
	ErrMissingFeatures = errors.New("missing required features")
	// ErrModelFault marks a scoring-engine fault: a constituent model failed
	// or produced a value that is not a probability.
	ErrModelFault = errors.New("model fault")
	// ErrIncompleteArtifacts is returned by NewScorer when a model slot is empty.
	ErrIncompleteArtifacts = errors.New("incomplete model artifacts")
)

// MissingFeaturesError lists the required features absent from a request.
type MissingFeaturesError struct {
	Names []string
}

func (e *MissingFeaturesError) Error() string {
	return fmt.Sprintf("%s: [%s]", ErrMissingFeatures, strings.Join(e.Names, ", "))
}

func (e *MissingFeaturesError) Unwrap() error { return ErrMissingFeatures }

// ModelFaultError names the model that broke the scoring pipeline.
type ModelFaultError struct {
	Model  string
	Reason string
	Err    error
}

func (e *ModelFaultError) Error() string {
	msg := fmt.Sprintf("%s: %s: %s", ErrModelFault, e.Model, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel kind and the underlying cause.
func (e *ModelFaultError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrModelFault}
	}
	return []error{ErrModelFault, e.Err}
}
