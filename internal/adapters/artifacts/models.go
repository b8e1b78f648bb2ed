package artifacts

import (
	"fmt"
	"math"

	"github.com/okian/migrisk/internal/domain/features"
)

// treeSet evaluates validated trees.
type treeSet []Tree

// leaves returns the leaf value reached in every tree.
func (ts treeSet) leaves(x features.Row) []float64 {
	out := make([]float64, len(ts))
	for i, t := range ts {
		n := t.Nodes[0]
		for !n.leaf() {
			if x[n.Feature] <= n.Threshold {
				n = t.Nodes[n.Left]
			} else {
				n = t.Nodes[n.Right]
			}
		}
		out[i] = n.Value
	}
	return out
}

// Forest averages leaf probabilities across its trees.
type Forest struct {
	trees treeSet
}

// PredictProba returns [negative, positive] class probabilities.
func (f *Forest) PredictProba(x features.Row) ([2]float64, error) {
	var sum float64
	for _, v := range f.trees.leaves(x) {
		sum += v
	}
	p := sum / float64(len(f.trees))
	return [2]float64{1 - p, p}, nil
}

// GradientBoosted sums leaf margins and maps them through the logistic link.
type GradientBoosted struct {
	base  float64
	trees treeSet
}

// PredictProba returns [negative, positive] class probabilities.
func (g *GradientBoosted) PredictProba(x features.Row) ([2]float64, error) {
	p, err := margin(g.base, g.trees, x)
	if err != nil {
		return [2]float64{}, err
	}
	return [2]float64{1 - p, p}, nil
}

// Booster is a boosted tree ensemble whose native output is a probability.
type Booster struct {
	base  float64
	trees treeSet
}

// Predict returns the positive-class probability.
func (b *Booster) Predict(x features.Row) (float64, error) {
	return margin(b.base, b.trees, x)
}

func margin(base float64, trees treeSet, x features.Row) (float64, error) {
	m := base
	for _, v := range trees.leaves(x) {
		m += v
	}
	if math.IsNaN(m) {
		return 0, fmt.Errorf("margin is NaN")
	}
	return sigmoid(m), nil
}

// Logistic is a binary logistic regression.
type Logistic struct {
	coef      features.Row
	intercept float64
}

// PredictProba returns [negative, positive] class probabilities.
func (l *Logistic) PredictProba(x features.Row) ([2]float64, error) {
	z := l.intercept
	for i := range x {
		z += l.coef[i] * x[i]
	}
	if math.IsNaN(z) {
		return [2]float64{}, fmt.Errorf("linear term is NaN")
	}
	p := sigmoid(z)
	return [2]float64{1 - p, p}, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
