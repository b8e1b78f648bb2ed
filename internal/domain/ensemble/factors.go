package ensemble

import (
	"math"
	"sort"

	"github.com/okian/migrisk/internal/domain/features"
)

// FactorRanker picks the features reported as driving a score. It sees only
// the submitted vector, never the model outputs.
type FactorRanker interface {
	Rank(v features.Vector) []string
}

// defaultFactorLimit caps the reported factor list.
const defaultFactorLimit = 3

// HeuristicRanker ranks five hand-picked signals by absolute magnitude:
// lost sleep, lowered HRV, extra screen time, extra meetings and pressure
// swing. It is not a feature-importance measure.
type HeuristicRanker struct {
	Limit int
}

type signal struct {
	name      string
	magnitude float64
}

// Rank returns at most Limit names, largest absolute signal first. Equal
// magnitudes keep their listed order.
func (h HeuristicRanker) Rank(v features.Vector) []string {
	limit := h.Limit
	if limit <= 0 {
		limit = defaultFactorLimit
	}

	signals := []signal{
		{features.Name(features.SleepHours), -v.Get(features.SleepDeviation)},
		{features.Name(features.HRV), -v.Get(features.HRVDeviation)},
		{features.Name(features.ScreenTimeTotalHours), v.Get(features.ScreenDeviation)},
		{features.Name(features.MeetingHours), v.Get(features.MeetingDeviation)},
		{features.Name(features.PressureChangeAbs), v.Get(features.PressureChangeAbs)},
	}
	sort.SliceStable(signals, func(i, j int) bool {
		return math.Abs(signals[i].magnitude) > math.Abs(signals[j].magnitude)
	})

	if limit > len(signals) {
		limit = len(signals)
	}
	out := make([]string, limit)
	for i := range out {
		out[i] = signals[i].name
	}
	return out
}
