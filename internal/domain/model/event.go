// Package model contains domain models passed between layers.
package model

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/okian/migrisk/internal/domain/features"
)

// Well-known event fields.
const (
	FieldID           = "id"
	FieldTimestamp    = "timestamp"
	FieldRiskScore    = "risk_score"
	FieldRiskLevel    = "risk_level"
	FieldTopFactors   = "top_factors"
	FieldModelVersion = "model_version"
)

// Event is one stored daily record for a user, kept as the loosely typed
// document the event store returned so it can be echoed back verbatim.
type Event map[string]any

// Float returns the numeric value of field. Numbers and numeric strings are
// accepted; absent, null, non-numeric and non-finite values report false.
func (e Event) Float(field string) (float64, bool) {
	v, ok := e[field]
	if !ok || v == nil {
		return 0, false
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case int32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case interface{ Float64() (float64, error) }: // json.Number
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// FloatPtr is Float with absence expressed as nil.
func (e Event) FloatPtr(field string) *float64 {
	f, ok := e.Float(field)
	if !ok {
		return nil
	}
	return &f
}

// String returns field when it holds a string.
func (e Event) String(field string) (string, bool) {
	s, ok := e[field].(string)
	return s, ok
}

// Strings returns field as a string list. Non-string items are dropped.
func (e Event) Strings(field string) []string {
	switch items := e[field].(type) {
	case []string:
		out := make([]string, len(items))
		copy(out, items)
		return out
	case []any:
		out := make([]string, 0, len(items))
		for _, it := range items {
			if s, ok := it.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return []string{}
	}
}

// Timestamp returns the raw timestamp value, which may be of any type.
func (e Event) Timestamp() any { return e[FieldTimestamp] }

// SortKey is the timestamp string used to order events. Non-string
// timestamps sort first.
func (e Event) SortKey() string {
	s, _ := e.String(FieldTimestamp)
	return s
}

// Profile is a user's onboarding profile as stored in the event store.
type Profile map[string]any

// Submission is a daily record posted for scoring and storage.
type Submission struct {
	EventID      string          // idempotency key
	UserID       string          // owner of the record
	Timestamp    time.Time       // day the record describes
	Measurements map[string]any  // raw behavioral/weather fields persisted as-is
	Features     features.Vector // model inputs, already derived by the caller
}

// Event renders a submission as a storable event with the given risk written
// onto it. Feature values are persisted alongside the raw measurements so
// trend extraction finds them by name.
func (s Submission) Event(score float64, level string, factors []string, version string) Event {
	e := make(Event, len(s.Measurements)+len(s.Features)+6)
	for k, v := range s.Features {
		e[k] = v
	}
	for k, v := range s.Measurements {
		e[k] = v
	}
	e[FieldTimestamp] = s.Timestamp.UTC().Format(time.RFC3339)
	e["event_id"] = s.EventID
	e[FieldRiskScore] = score
	e[FieldRiskLevel] = level
	e[FieldTopFactors] = factors
	e[FieldModelVersion] = version
	return e
}
