package ensemble

import "github.com/okian/migrisk/internal/domain/features"

// Input selects which row form a model consumes.
type Input int

const (
	// InputRaw feeds unstandardized values (tree ensembles trained on raw data).
	InputRaw Input = iota
	// InputStandardized feeds scaler-transformed values.
	InputStandardized
)

func (in Input) String() string {
	if in == InputRaw {
		return "raw"
	}
	return "standardized"
}

// Model is an opaque scoring function returning the probability of a
// migraine in the next 24 hours. Nothing about its internals is assumed.
type Model interface {
	Probability(x features.Row) (float64, error)
}

// ModelFunc adapts a plain function to Model.
type ModelFunc func(x features.Row) (float64, error)

// Probability calls f(x).
func (f ModelFunc) Probability(x features.Row) (float64, error) { return f(x) }

// Booster is a model whose native prediction is already a probability.
type Booster interface {
	Predict(x features.Row) (float64, error)
}

// Classifier exposes a two-class probability pair [negative, positive].
type Classifier interface {
	PredictProba(x features.Row) ([2]float64, error)
}

// FromBooster adapts a Booster to Model.
func FromBooster(b Booster) Model {
	return ModelFunc(b.Predict)
}

// FromClassifier adapts a Classifier to Model using only the positive class.
func FromClassifier(c Classifier) Model {
	return ModelFunc(func(x features.Row) (float64, error) {
		pair, err := c.PredictProba(x)
		if err != nil {
			return 0, err
		}
		return pair[1], nil
	})
}

// Member is one model slot of the ensemble together with its input form.
type Member struct {
	Model Model
	Input Input
}

// Artifacts is the immutable, process-wide model context: the four trained
// models and the scaler statistics. Build it once at startup and share it.
type Artifacts struct {
	Version         string
	Scaler          features.Scaler
	Booster         Member
	GradientBoosted Member
	RandomForest    Member
	Logistic        Member
}
