package seed

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/okian/migrisk/internal/domain/features"
)

// Distribution parameters for synthetic users and days.
const (
	baselineSleepMean, baselineSleepStd     = 7.0, 0.7
	baselineHRVMean, baselineHRVStd         = 55.0, 8.0
	baselineRHRMean, baselineRHRStd         = 65.0, 5.0
	baselineScreenMean, baselineScreenStd   = 3.5, 1.0
	baselineMeetingMean, baselineMeetingStd = 4.0, 1.5

	dailySleepStd  = 0.8
	dailyHRVStd    = 6.0
	dailyRHRStd    = 4.0
	dailyScreenStd = 1.0
	minScreenHours = 0.1

	weekdayMeetingMean, weekdayMeetingStd = 4.0, 1.5
	weekdayCountMean, weekdayCountStd     = 5.0, 2.0
	weekendMeetingMean, weekendMeetingStd = 0.5, 0.4
	weekendCountMean, weekendCountStd     = 1.0, 1.0
	eveningMeetingChance                  = 0.3

	lateScreenShare, lateScreenStd = 0.6, 0.5
	sedentaryMean, sedentaryStd    = 600.0, 120.0

	seasonalTempMean, seasonalTempAmp, tempStd = 5.0, 15.0, 3.0
	pressureMean, pressureStd                  = 1013.0, 8.0
	humidityMean, humidityStd                  = 70.0, 10.0
	precipMean, precipStd                      = 1.0, 3.0
	daysPerYear                                = 365.0

	// rollingWindow days feed each *_3d_avg feature.
	rollingWindow = 3
	// recordHour is the UTC hour stamped on each daily record.
	recordHour = 7
)

// day holds the raw draws for one date before feature derivation.
type day struct {
	date           time.Time
	sleep          float64
	hrv            float64
	rhr            float64
	screen         float64
	screenLate     float64
	sedentary      float64
	meetingHours   float64
	meetingCount   int
	eveningMeeting int
	temperature    float64
	pressure       float64
	humidity       float64
	precipitation  float64
}

// Generate builds a deterministic history of days records ending on end.
// Two warm-up days are drawn first so every emitted record has a full
// rolling window.
func Generate(userID string, days int, end time.Time, seed uint64) (History, error) {
	if days <= 0 {
		return History{}, fmt.Errorf("%w: days must be positive, got %d", ErrInvalidConfig, days)
	}
	r := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // synthetic data, not security sensitive

	base := Baseline{
		SleepHours:   normal(r, baselineSleepMean, baselineSleepStd),
		HRV:          normal(r, baselineHRVMean, baselineHRVStd),
		RestingHR:    normal(r, baselineRHRMean, baselineRHRStd),
		ScreenTime:   normal(r, baselineScreenMean, baselineScreenStd),
		MeetingHours: normal(r, baselineMeetingMean, baselineMeetingStd),
	}

	warmup := rollingWindow - 1
	start := truncateDay(end).AddDate(0, 0, -(days - 1 + warmup))
	raw := make([]day, days+warmup)
	for i := range raw {
		raw[i] = drawDay(r, base, start.AddDate(0, 0, i))
	}

	h := History{UserID: userID, Baseline: base, Records: make([]Record, 0, days)}
	for i := warmup; i < len(raw); i++ {
		h.Records = append(h.Records, buildRecord(base, raw, i, seed))
	}
	return h, nil
}

func drawDay(r *rand.Rand, base Baseline, date time.Time) day {
	d := day{date: date}

	if wd := date.Weekday(); wd != time.Saturday && wd != time.Sunday {
		d.meetingHours = math.Max(0, normal(r, weekdayMeetingMean, weekdayMeetingStd))
		d.meetingCount = max(0, int(normal(r, weekdayCountMean, weekdayCountStd)))
		if r.Float64() < eveningMeetingChance {
			d.eveningMeeting = 1
		}
	} else {
		d.meetingHours = math.Max(0, normal(r, weekendMeetingMean, weekendMeetingStd))
		d.meetingCount = max(0, int(normal(r, weekendCountMean, weekendCountStd)))
	}

	d.sleep = normal(r, base.SleepHours, dailySleepStd)
	d.hrv = normal(r, base.HRV, dailyHRVStd)
	d.rhr = normal(r, base.RestingHR, dailyRHRStd)
	d.screen = math.Max(minScreenHours, normal(r, base.ScreenTime, dailyScreenStd))
	d.screenLate = math.Max(0, normal(r, lateScreenShare*d.screen, lateScreenStd))
	d.sedentary = math.Max(0, normal(r, sedentaryMean, sedentaryStd))

	season := 2 * math.Pi * float64(date.YearDay()) / daysPerYear
	d.temperature = seasonalTempMean + seasonalTempAmp*math.Sin(season) + normal(r, 0, tempStd)
	d.pressure = normal(r, pressureMean, pressureStd)
	d.humidity = normal(r, humidityMean, humidityStd)
	d.precipitation = math.Max(0, normal(r, precipMean, precipStd))
	return d
}

// buildRecord derives the model features for raw[i]. It requires i to have
// rollingWindow-1 predecessors.
func buildRecord(base Baseline, raw []day, i int, seed uint64) Record {
	d := raw[i]
	pressureChange := d.pressure - raw[i-1].pressure
	window := raw[i-rollingWindow+1 : i+1]

	avg := func(pick func(day) float64) float64 {
		var sum float64
		for _, w := range window {
			sum += pick(w)
		}
		return sum / float64(len(window))
	}

	v := features.Vector{
		features.Name(features.SleepHours):                d.sleep,
		features.Name(features.HRV):                       d.hrv,
		features.Name(features.RestingHR):                 d.rhr,
		features.Name(features.ScreenTimeTotalHours):      d.screen,
		features.Name(features.ScreenTimeAfter22Hours):    d.screenLate,
		features.Name(features.MeetingHours):              d.meetingHours,
		features.Name(features.MeetingCount):              float64(d.meetingCount),
		features.Name(features.Temperature):               d.temperature,
		features.Name(features.PressureChangeAbs):         math.Abs(pressureChange),
		features.Name(features.Humidity):                  d.humidity,
		features.Name(features.Precipitation):             d.precipitation,
		features.Name(features.SleepDeviation):            d.sleep - base.SleepHours,
		features.Name(features.HRVDeviation):              d.hrv - base.HRV,
		features.Name(features.ScreenDeviation):           d.screen - base.ScreenTime,
		features.Name(features.MeetingDeviation):          d.meetingHours - base.MeetingHours,
		features.Name(features.SleepHours3dAvg):           avg(func(w day) float64 { return w.sleep }),
		features.Name(features.HRV3dAvg):                  avg(func(w day) float64 { return w.hrv }),
		features.Name(features.ScreenTimeTotalHours3dAvg): avg(func(w day) float64 { return w.screen }),
		features.Name(features.MeetingHours3dAvg):         avg(func(w day) float64 { return w.meetingHours }),
	}

	return Record{
		EventID:   fmt.Sprintf("seed-%d-%s", seed, d.date.Format("20060102")),
		Timestamp: d.date.Add(recordHour * time.Hour).Format(time.RFC3339),
		Features:  v,
		Measurements: map[string]any{
			"evening_meetings":  d.eveningMeeting,
			"sedentary_minutes": d.sedentary,
			"pressure":          d.pressure,
			"pressure_change":   pressureChange,
		},
	}
}

func normal(r *rand.Rand, mean, std float64) float64 {
	return mean + std*r.NormFloat64()
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
