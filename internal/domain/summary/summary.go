// Package summary composes a user's event history into the "today" view:
// current risk, per-metric trends and plain-language insights.
package summary

import (
	"github.com/goccy/go-json"

	"github.com/okian/migrisk/internal/domain/model"
	"github.com/okian/migrisk/internal/domain/trend"
)

// Tracked metric fields.
const (
	MetricSleepHours   = "sleep_hours"
	MetricHRV          = "hrv"
	MetricScreenTime   = "screen_time_total_hours"
	MetricMeetingHours = "meeting_hours"
)

// LevelUnknown marks a latest event that carries no stored risk level.
const LevelUnknown = "UNKNOWN"

// NoDataMessage is returned when a user has no events yet.
const NoDataMessage = "No migraine data yet. Keep the app running so we can learn your patterns."

// Risk is the assessment previously written onto the latest event.
type Risk struct {
	Score      *float64 `json:"score"`
	Level      string   `json:"level"`
	TopFactors []string `json:"top_factors"`
}

// Trends groups the per-metric trends.
type Trends struct {
	SleepHours   trend.Trend `json:"sleep_hours"`
	HRV          trend.Trend `json:"hrv"`
	ScreenTime   trend.Trend `json:"screen_time_total_hours"`
	MeetingHours trend.Trend `json:"meeting_hours"`
}

// Summary is the derived view over a user's events. It is rebuilt on every
// request and never stored.
type Summary struct {
	UserID      string
	UpdatedAt   any
	EventsCount int
	HasData     bool
	Message     string
	CurrentRisk *Risk
	Trends      *Trends
	Insights    []string
	LatestEvent model.Event
}

// noDataJSON is the payload for a user without events.
type noDataJSON struct {
	UserID      string `json:"user_id"`
	EventsCount int    `json:"events_count"`
	HasData     bool   `json:"has_data"`
	Message     string `json:"message"`
}

// summaryJSON is the payload once events exist. updated_at is always
// present, null when the latest event has no timestamp.
type summaryJSON struct {
	UserID      string      `json:"user_id"`
	UpdatedAt   any         `json:"updated_at"`
	EventsCount int         `json:"events_count"`
	HasData     bool        `json:"has_data"`
	CurrentRisk *Risk       `json:"current_risk"`
	Trends      *Trends     `json:"trends"`
	Insights    []string    `json:"insights"`
	LatestEvent model.Event `json:"latest_event"`
}

// MarshalJSON emits the no-data payload or the full summary, never a mix.
func (s Summary) MarshalJSON() ([]byte, error) { //nolint:gocritic // hugeParam: json.Marshaler on a value type
	if !s.HasData {
		return json.Marshal(noDataJSON{
			UserID:      s.UserID,
			EventsCount: s.EventsCount,
			HasData:     false,
			Message:     s.Message,
		})
	}
	return json.Marshal(summaryJSON{
		UserID:      s.UserID,
		UpdatedAt:   s.UpdatedAt,
		EventsCount: s.EventsCount,
		HasData:     true,
		CurrentRisk: s.CurrentRisk,
		Trends:      s.Trends,
		Insights:    s.Insights,
		LatestEvent: s.LatestEvent,
	})
}

// Build summarizes events, which must be sorted by timestamp ascending.
// Malformed fields degrade the affected part only; Build never fails.
func Build(userID string, events []model.Event) Summary {
	if len(events) == 0 {
		return Summary{
			UserID:  userID,
			HasData: false,
			Message: NoDataMessage,
		}
	}

	latest := events[len(events)-1]
	prior := events[:len(events)-1]

	metric := func(field string) trend.Trend {
		return trend.Compute(latest.FloatPtr(field), trend.Series(prior, field))
	}
	trends := Trends{
		SleepHours:   metric(MetricSleepHours),
		HRV:          metric(MetricHRV),
		ScreenTime:   metric(MetricScreenTime),
		MeetingHours: metric(MetricMeetingHours),
	}

	level, ok := latest.String(model.FieldRiskLevel)
	if !ok {
		level = LevelUnknown
	}

	return Summary{
		UserID:      userID,
		UpdatedAt:   NormalizeTimestamp(latest.Timestamp()),
		EventsCount: len(events),
		HasData:     true,
		CurrentRisk: &Risk{
			Score:      latest.FloatPtr(model.FieldRiskScore),
			Level:      level,
			TopFactors: latest.Strings(model.FieldTopFactors),
		},
		Trends:      &trends,
		Insights:    Insights(trends),
		LatestEvent: latest,
	}
}
