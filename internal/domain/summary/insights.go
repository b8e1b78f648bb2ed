package summary

import (
	"fmt"
	"math"

	"github.com/okian/migrisk/internal/domain/trend"
)

// Insight messages.
const (
	msgSleepDown  = "Your sleep was %.1f hours below your usual %.1f h."
	msgSleepUp    = "You slept %.1f hours more than your usual %.1f h."
	msgHRVDown    = "Your HRV is lower than usual, which can indicate stress or poor recovery."
	msgScreenUp   = "Your total screen time is higher than usual (%s). Screen exposure, especially in the evening, can trigger migraines."
	msgMeetingsUp = "You had more meeting hours than usual today, which might increase mental load."
	// FallbackInsight is emitted when no rule fires.
	FallbackInsight = "Your patterns look close to your usual baseline today."
)

// Insights applies the per-metric rules in fixed order. Rules are
// independent; the result is never empty.
func Insights(t Trends) []string {
	var out []string

	if s := t.SleepHours; s.Comparable() {
		switch s.Direction {
		case trend.Down:
			out = append(out, fmt.Sprintf(msgSleepDown, math.Abs(*s.Delta), *s.Baseline))
		case trend.Up:
			out = append(out, fmt.Sprintf(msgSleepUp, *s.Delta, *s.Baseline))
		}
	}

	if h := t.HRV; h.Comparable() && h.Direction == trend.Down {
		out = append(out, msgHRVDown)
	}

	if s := t.ScreenTime; s.Comparable() && s.Direction == trend.Up {
		out = append(out, fmt.Sprintf(msgScreenUp, formatHours(s.Latest)))
	}

	if m := t.MeetingHours; m.Comparable() && m.Direction == trend.Up {
		out = append(out, msgMeetingsUp)
	}

	if len(out) == 0 {
		out = append(out, FallbackInsight)
	}
	return out
}

func formatHours(v *float64) string {
	if v == nil {
		return "N/A"
	}
	return fmt.Sprintf("%.1f h", *v)
}
