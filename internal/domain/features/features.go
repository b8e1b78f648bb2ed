// Package features defines the fixed input contract of the risk ensemble:
// the canonical ordered feature names, the named Vector callers submit, and
// the ordered Row the models consume.
package features

import "math"

// Count is the number of features every model was trained on.
const Count = 19

// Index positions in the canonical order. Row construction goes through
// these constants only, so a Row can never be assembled out of order.
const (
	SleepHours = iota
	HRV
	RestingHR
	ScreenTimeTotalHours
	ScreenTimeAfter22Hours
	MeetingHours
	MeetingCount
	Temperature
	PressureChangeAbs
	Humidity
	Precipitation
	SleepDeviation
	HRVDeviation
	ScreenDeviation
	MeetingDeviation
	SleepHours3dAvg
	HRV3dAvg
	ScreenTimeTotalHours3dAvg
	MeetingHours3dAvg
)

// names is indexed by the constants above.
var names = [Count]string{
	SleepHours:                "sleep_hours",
	HRV:                       "hrv",
	RestingHR:                 "resting_hr",
	ScreenTimeTotalHours:      "screen_time_total_hours",
	ScreenTimeAfter22Hours:    "screen_time_after_22_hours",
	MeetingHours:              "meeting_hours",
	MeetingCount:              "meeting_count",
	Temperature:               "temperature",
	PressureChangeAbs:         "pressure_change_abs",
	Humidity:                  "humidity",
	Precipitation:             "precipitation",
	SleepDeviation:            "sleep_deviation",
	HRVDeviation:              "hrv_deviation",
	ScreenDeviation:           "screen_deviation",
	MeetingDeviation:          "meeting_deviation",
	SleepHours3dAvg:           "sleep_hours_3d_avg",
	HRV3dAvg:                  "hrv_3d_avg",
	ScreenTimeTotalHours3dAvg: "screen_time_total_hours_3d_avg",
	MeetingHours3dAvg:         "meeting_hours_3d_avg",
}

// Names returns the canonical feature names in model input order.
func Names() []string {
	out := make([]string, Count)
	copy(out, names[:])
	return out
}

// Name returns the canonical name at index i.
func Name(i int) string { return names[i] }

// Vector maps feature names to values as submitted by a caller.
// Keys outside the contract are ignored.
type Vector map[string]float64

// Row is a feature vector laid out in canonical order.
type Row [Count]float64

// Missing returns the required names absent from v, in canonical order.
// It returns nil when v is complete.
func (v Vector) Missing() []string {
	var missing []string
	for _, name := range names {
		if _, ok := v[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Row lays v out in canonical order. Callers must check Missing first;
// absent keys would otherwise read as zero.
func (v Vector) Row() Row {
	var r Row
	for i, name := range names {
		r[i] = v[name]
	}
	return r
}

// Get returns the value of the feature at index i.
func (v Vector) Get(i int) float64 { return v[names[i]] }

// Finite reports whether every value in r is a finite number.
func (r Row) Finite() bool {
	for _, x := range r {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Scaler standardizes rows with statistics fixed at training time.
type Scaler struct {
	Mean Row
	Std  Row
}

// Transform returns (x - mean) / std per feature. A zero std leaves the
// centered value unscaled, matching how the training scaler treats
// constant columns.
func (s Scaler) Transform(r Row) Row {
	var out Row
	for i := range r {
		d := r[i] - s.Mean[i]
		if s.Std[i] != 0 {
			d /= s.Std[i]
		}
		out[i] = d
	}
	return out
}
