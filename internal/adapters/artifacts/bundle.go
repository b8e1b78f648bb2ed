// Package artifacts loads the trained model bundle that backs the risk
// ensemble and turns it into an immutable ensemble.Artifacts value.
package artifacts

// Bundle is the on-disk representation of the four trained models and the
// scaler statistics.
type Bundle struct {
	Version         string     `json:"version"`
	Scaler          ScalerSpec `json:"scaler"`
	Booster         TreeSpec   `json:"booster"`
	GradientBoosted TreeSpec   `json:"gradient_boosted"`
	RandomForest    TreeSpec   `json:"random_forest"`
	Logistic        LinearSpec `json:"logistic"`
}

// ScalerSpec holds per-feature training statistics in canonical order.
type ScalerSpec struct {
	Mean []float64 `json:"mean"`
	Std  []float64 `json:"std"`
}

// TreeSpec describes a tree ensemble. For the random forest the leaf values
// are positive-class probabilities; for the boosted models they are margins
// added to BaseScore.
type TreeSpec struct {
	Input     string  `json:"input"`
	BaseScore float64 `json:"base_score"`
	Trees     []Tree  `json:"trees"`
}

// Tree is a flat node array rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node is a split when Left and Right are both >= 0 and a leaf otherwise.
// A split sends x[Feature] <= Threshold left.
type Node struct {
	Feature   int     `json:"feature"`
	Threshold float64 `json:"threshold"`
	Left      int     `json:"left"`
	Right     int     `json:"right"`
	Value     float64 `json:"value"`
}

// LinearSpec describes a logistic regression.
type LinearSpec struct {
	Input     string    `json:"input"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
}

func (n Node) leaf() bool { return n.Left < 0 || n.Right < 0 }
