// Package seed generates synthetic daily histories and submits them to a
// running risk service. It is a development aid for exercising the ingestion
// path and the summary view against plausible data.
package seed

import (
	"time"

	"github.com/okian/migrisk/internal/domain/features"
)

// Config holds settings for a seeding run.
type Config struct {
	BaseURL     string        // Base URL of the service
	UserID      string        // User the history belongs to
	Days        int           // Number of daily records to submit
	Seed        uint64        // Generator seed; equal seeds give equal histories
	End         time.Time     // Day of the last record
	Concurrency int           // Parallel submissions
	Rate        float64       // Submissions per second, 0 for unlimited
	Timeout     time.Duration // HTTP request timeout
	OutputFile  string        // Optional JSON dump of the generated records
}

// Baseline is the synthetic user's personal norm.
type Baseline struct {
	SleepHours   float64 `json:"sleep_hours"`
	HRV          float64 `json:"hrv"`
	RestingHR    float64 `json:"resting_hr"`
	ScreenTime   float64 `json:"screen_time_total_hours"`
	MeetingHours float64 `json:"meeting_hours"`
}

// Record is one generated day in the shape the events endpoint accepts.
type Record struct {
	EventID      string          `json:"event_id"`
	Timestamp    string          `json:"timestamp"`
	Features     features.Vector `json:"features"`
	Measurements map[string]any  `json:"measurements"`
}

// History is a generated user history, oldest record first.
type History struct {
	UserID   string   `json:"user_id"`
	Baseline Baseline `json:"baseline"`
	Records  []Record `json:"records"`
}

// Outcome classifies a single submission.
type Outcome string

// Submission outcomes.
const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
)

// Stats holds run statistics.
type Stats struct {
	Generated int
	Accepted  int
	Duplicate int
	Failed    int
	Duration  time.Duration
}
