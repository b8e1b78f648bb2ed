// Package ensemble turns a feature vector into a migraine risk assessment by
// combining four independently trained classifiers with fixed weights.
package ensemble

import (
	"context"
	"fmt"
	"math"

	"github.com/okian/migrisk/internal/domain/features"
)

// Ensemble weights. They sum to exactly 1.0; changing any of them breaks
// score comparability across model versions.
const (
	WeightBooster         = 0.45
	WeightGradientBoosted = 0.30
	WeightRandomForest    = 0.15
	WeightLogistic        = 0.10
)

// Model slot names, used in fault reports and metrics.
const (
	NameBooster         = "booster"
	NameGradientBoosted = "gradient_boosted"
	NameRandomForest    = "random_forest"
	NameLogistic        = "logistic"
	nameScaler          = "scaler"
)

const defaultModelVersion = "v1.0"

// Assessment is the scored output for one feature vector.
type Assessment struct {
	Score        float64  `json:"risk_score"`
	Level        Level    `json:"risk_level"`
	TopFactors   []string `json:"top_factors"`
	ModelVersion string   `json:"model_version"`
}

// Scorer computes a risk assessment from a feature vector.
type Scorer interface {
	// Score computes an assessment, honoring ctx for cancellation.
	Score(ctx context.Context, v features.Vector) (Assessment, error)
}

// Option applies a configuration option to the EnsembleScorer.
type Option func(*EnsembleScorer)

// WithFactorRanker swaps the top-factor strategy.
func WithFactorRanker(r FactorRanker) Option {
	return func(s *EnsembleScorer) {
		if r != nil {
			s.ranker = r
		}
	}
}

// WithModelVersion overrides the version tag reported on assessments.
func WithModelVersion(version string) Option {
	return func(s *EnsembleScorer) {
		if version != "" {
			s.version = version
		}
	}
}

type component struct {
	name   string
	weight float64
	member Member
}

// EnsembleScorer implements Scorer over an Artifacts context. It holds no
// mutable state and is safe for concurrent use.
type EnsembleScorer struct {
	scaler     features.Scaler
	components [4]component
	ranker     FactorRanker
	version    string
}

// NewScorer builds a scorer over the given artifacts. Every model slot must
// be populated.
func NewScorer(a *Artifacts, opts ...Option) (*EnsembleScorer, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: nil artifacts", ErrIncompleteArtifacts)
	}
	s := &EnsembleScorer{
		scaler: a.Scaler,
		components: [4]component{
			{NameBooster, WeightBooster, a.Booster},
			{NameGradientBoosted, WeightGradientBoosted, a.GradientBoosted},
			{NameRandomForest, WeightRandomForest, a.RandomForest},
			{NameLogistic, WeightLogistic, a.Logistic},
		},
		ranker:  HeuristicRanker{},
		version: defaultModelVersion,
	}
	if a.Version != "" {
		s.version = a.Version
	}
	for _, c := range s.components {
		if c.member.Model == nil {
			return nil, fmt.Errorf("%w: %s", ErrIncompleteArtifacts, c.name)
		}
	}

	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Version returns the model version tag.
func (s *EnsembleScorer) Version() string { return s.version }

// Score computes the weighted ensemble probability, its level and the
// heuristic top factors.
func (s *EnsembleScorer) Score(ctx context.Context, v features.Vector) (Assessment, error) {
	if err := ctx.Err(); err != nil {
		return Assessment{}, fmt.Errorf("context cancelled: %w", err)
	}
	if missing := v.Missing(); len(missing) > 0 {
		return Assessment{}, &MissingFeaturesError{Names: missing}
	}

	raw := v.Row()
	scaled := s.scaler.Transform(raw)
	if !scaled.Finite() {
		return Assessment{}, &ModelFaultError{Model: nameScaler, Reason: "non-finite standardized value"}
	}

	score := 0.0
	for _, c := range s.components {
		x := scaled
		if c.member.Input == InputRaw {
			x = raw
		}
		p, err := c.member.Model.Probability(x)
		if err != nil {
			return Assessment{}, &ModelFaultError{Model: c.name, Reason: "prediction failed", Err: err}
		}
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Assessment{}, &ModelFaultError{Model: c.name, Reason: fmt.Sprintf("non-finite probability %v", p)}
		}
		if p < 0 || p > 1 {
			return Assessment{}, &ModelFaultError{Model: c.name, Reason: fmt.Sprintf("probability %v outside [0,1]", p)}
		}
		score += c.weight * p
	}
	// Rounding in the weighted sum can step a hair past the unit interval.
	score = math.Max(0, math.Min(1, score))

	return Assessment{
		Score:        score,
		Level:        LevelFor(score),
		TopFactors:   s.ranker.Rank(v),
		ModelVersion: s.version,
	}, nil
}
