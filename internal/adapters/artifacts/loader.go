package artifacts

import (
	_ "embed"
	"fmt"
	"math"
	"os"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/okian/migrisk/internal/domain/ensemble"
	"github.com/okian/migrisk/internal/domain/features"
)

//go:embed default_bundle.json
var defaultBundle []byte

// Load reads the bundle at path, or the embedded default bundle when path
// is empty.
func Load(path string) (*ensemble.Artifacts, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model bundle %q: %w", path, err)
	}
	return Parse(data)
}

// Default returns the artifacts of the embedded bundle.
func Default() (*ensemble.Artifacts, error) {
	return Parse(defaultBundle)
}

// Parse decodes and validates a JSON bundle.
func Parse(data []byte) (*ensemble.Artifacts, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBundle, err)
	}
	return Build(&b)
}

// Build validates b and assembles the ensemble artifacts. The four models
// are compiled concurrently; the first validation failure wins.
func Build(b *Bundle) (*ensemble.Artifacts, error) {
	scaler, err := buildScaler(b.Scaler)
	if err != nil {
		return nil, err
	}

	a := &ensemble.Artifacts{Version: b.Version, Scaler: scaler}

	var g errgroup.Group
	g.Go(func() error {
		m, err := buildTrees(ensemble.NameBooster, b.Booster, ensemble.InputStandardized, false)
		if err != nil {
			return err
		}
		a.Booster = ensemble.Member{
			Model: ensemble.FromBooster(&Booster{base: b.Booster.BaseScore, trees: m.trees}),
			Input: m.input,
		}
		return nil
	})
	g.Go(func() error {
		m, err := buildTrees(ensemble.NameGradientBoosted, b.GradientBoosted, ensemble.InputStandardized, false)
		if err != nil {
			return err
		}
		a.GradientBoosted = ensemble.Member{
			Model: ensemble.FromClassifier(&GradientBoosted{base: b.GradientBoosted.BaseScore, trees: m.trees}),
			Input: m.input,
		}
		return nil
	})
	g.Go(func() error {
		m, err := buildTrees(ensemble.NameRandomForest, b.RandomForest, ensemble.InputRaw, true)
		if err != nil {
			return err
		}
		a.RandomForest = ensemble.Member{
			Model: ensemble.FromClassifier(&Forest{trees: m.trees}),
			Input: m.input,
		}
		return nil
	})
	g.Go(func() error {
		l, input, err := buildLogistic(b.Logistic)
		if err != nil {
			return err
		}
		a.Logistic = ensemble.Member{Model: ensemble.FromClassifier(l), Input: input}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return a, nil
}

func buildScaler(s ScalerSpec) (features.Scaler, error) {
	var out features.Scaler
	if len(s.Mean) != features.Count || len(s.Std) != features.Count {
		return out, fmt.Errorf("%w: scaler needs %d means and stds, got %d and %d",
			ErrInvalidBundle, features.Count, len(s.Mean), len(s.Std))
	}
	for i := 0; i < features.Count; i++ {
		if !finite(s.Mean[i]) || !finite(s.Std[i]) || s.Std[i] < 0 {
			return out, fmt.Errorf("%w: scaler entry for %s is not usable", ErrInvalidBundle, features.Name(i))
		}
		out.Mean[i] = s.Mean[i]
		out.Std[i] = s.Std[i]
	}
	return out, nil
}

type compiledTrees struct {
	trees treeSet
	input ensemble.Input
}

// buildTrees checks node references so evaluation always terminates: every
// child index points forward within the same tree.
func buildTrees(name string, spec TreeSpec, def ensemble.Input, probLeaves bool) (compiledTrees, error) {
	input, err := parseInput(name, spec.Input, def)
	if err != nil {
		return compiledTrees{}, err
	}
	if len(spec.Trees) == 0 {
		return compiledTrees{}, fmt.Errorf("%w: %s has no trees", ErrInvalidBundle, name)
	}
	if !finite(spec.BaseScore) {
		return compiledTrees{}, fmt.Errorf("%w: %s base score is not finite", ErrInvalidBundle, name)
	}
	for ti, t := range spec.Trees {
		if len(t.Nodes) == 0 {
			return compiledTrees{}, fmt.Errorf("%w: %s tree %d is empty", ErrInvalidBundle, name, ti)
		}
		for ni, n := range t.Nodes {
			if n.leaf() {
				if !finite(n.Value) || (probLeaves && (n.Value < 0 || n.Value > 1)) {
					return compiledTrees{}, fmt.Errorf("%w: %s tree %d node %d has bad leaf value %v",
						ErrInvalidBundle, name, ti, ni, n.Value)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= features.Count {
				return compiledTrees{}, fmt.Errorf("%w: %s tree %d node %d splits on unknown feature %d",
					ErrInvalidBundle, name, ti, ni, n.Feature)
			}
			if n.Left <= ni || n.Right <= ni || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
				return compiledTrees{}, fmt.Errorf("%w: %s tree %d node %d has bad children",
					ErrInvalidBundle, name, ti, ni)
			}
		}
	}
	return compiledTrees{trees: treeSet(spec.Trees), input: input}, nil
}

func buildLogistic(spec LinearSpec) (*Logistic, ensemble.Input, error) {
	input, err := parseInput(ensemble.NameLogistic, spec.Input, ensemble.InputStandardized)
	if err != nil {
		return nil, 0, err
	}
	if len(spec.Coef) != features.Count {
		return nil, 0, fmt.Errorf("%w: logistic needs %d coefficients, got %d",
			ErrInvalidBundle, features.Count, len(spec.Coef))
	}
	l := &Logistic{intercept: spec.Intercept}
	for i, c := range spec.Coef {
		if !finite(c) {
			return nil, 0, fmt.Errorf("%w: logistic coefficient for %s is not finite", ErrInvalidBundle, features.Name(i))
		}
		l.coef[i] = c
	}
	if !finite(spec.Intercept) {
		return nil, 0, fmt.Errorf("%w: logistic intercept is not finite", ErrInvalidBundle)
	}
	return l, input, nil
}

func parseInput(name, raw string, def ensemble.Input) (ensemble.Input, error) {
	switch raw {
	case "":
		return def, nil
	case "raw":
		return ensemble.InputRaw, nil
	case "standardized":
		return ensemble.InputStandardized, nil
	default:
		return 0, fmt.Errorf("%w: %s input %q", ErrInvalidBundle, name, raw)
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
