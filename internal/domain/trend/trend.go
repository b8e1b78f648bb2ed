// Package trend compares a metric's latest observation with the user's
// personal baseline.
package trend

import (
	"math"

	"github.com/okian/migrisk/internal/domain/model"
)

// Direction labels how the latest value moved relative to baseline.
type Direction string

// Directions.
const (
	Up     Direction = "up"
	Down   Direction = "down"
	Stable Direction = "stable"
)

// StableBand is the absolute delta below which a change counts as stable.
const StableBand = 0.3

// Trend holds one metric's latest value against its baseline. Baseline and
// Delta are nil when there is no prior history to compare with.
type Trend struct {
	Latest    *float64  `json:"latest"`
	Baseline  *float64  `json:"baseline"`
	Delta     *float64  `json:"delta"`
	Direction Direction `json:"direction"`
}

// Comparable reports whether both baseline and delta are known.
func (t Trend) Comparable() bool {
	return t.Baseline != nil && t.Delta != nil
}

// Compute compares latest with the mean of history. history must not
// include latest.
func Compute(latest *float64, history []float64) Trend {
	if len(history) == 0 {
		return Trend{Latest: latest, Direction: Stable}
	}

	sum := 0.0
	for _, v := range history {
		sum += v
	}
	baseline := sum / float64(len(history))

	t := Trend{Latest: latest, Baseline: &baseline, Direction: Stable}
	if latest == nil {
		return t
	}

	delta := *latest - baseline
	t.Delta = &delta
	switch {
	case math.Abs(delta) < StableBand:
		t.Direction = Stable
	case delta > 0:
		t.Direction = Up
	default:
		t.Direction = Down
	}
	return t
}

// Series extracts field from events in order, skipping events where it is
// absent or not numeric.
func Series(events []model.Event, field string) []float64 {
	out := make([]float64, 0, len(events))
	for _, e := range events {
		if v, ok := e.Float(field); ok {
			out = append(out, v)
		}
	}
	return out
}
