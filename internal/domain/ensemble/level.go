package ensemble

// Level is the discrete risk band derived from a score.
type Level string

// Risk levels.
const (
	LevelLow    Level = "LOW"
	LevelMedium Level = "MEDIUM"
	LevelHigh   Level = "HIGH"
)

// Band thresholds. A score equal to a threshold belongs to the higher band.
const (
	MediumThreshold = 0.35
	HighThreshold   = 0.65
)

// LevelFor maps a score to its band.
func LevelFor(score float64) Level {
	switch {
	case score < MediumThreshold:
		return LevelLow
	case score < HighThreshold:
		return LevelMedium
	default:
		return LevelHigh
	}
}
