package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/edgargomero/analisis-resultados/internal/eval"
	"github.com/edgargomero/analisis-resultados/internal/series"
)

// DefaultBoostedConfig is the production boosting setup: many shallow
// trees with a small learning rate.
func DefaultBoostedConfig() TreeConfig {
	return TreeConfig{Trees: 150, MaxDepth: 3, MinLeaf: 5, LearningRate: 0.1, Seed: 42}
}

// BoostedTrees is the gradient-boosting adapter: shallow regression trees
// fitted stagewise to residuals with shrinkage, over the same engineered
// feature matrix as the bagged variant. Bounds come from in-sample
// residual quantiles and are flagged approximate.
type BoostedTrees struct {
	cfg TreeConfig
}

// NewBoostedTrees returns the boosting adapter.
func NewBoostedTrees(cfg TreeConfig) *BoostedTrees {
	return &BoostedTrees{cfg: cfg}
}

// Name implements Adapter.
func (m *BoostedTrees) Name() string { return "boosted_trees" }

type boostedFit struct {
	spec   featureSpec
	base   float64
	nu     float64
	trees  []*treeNode
	values []float64
	qLo    float64
	qHi    float64
}

// Fit implements Adapter. Each stage fits the current residuals on a
// seeded 80% row subsample, which regularizes without costing
// reproducibility.
func (m *BoostedTrees) Fit(ctx context.Context, train *series.Frame) (Fit, error) {
	spec := newFeatureSpec(train.Config)
	x, y := trainMatrix(train, spec)
	if len(x) < 4*m.cfg.MinLeaf {
		return nil, fmt.Errorf("too few usable rows for boosting: %d", len(x))
	}
	if m.cfg.LearningRate <= 0 || m.cfg.LearningRate > 1 {
		return nil, fmt.Errorf("learning rate %v out of (0, 1]", m.cfg.LearningRate)
	}

	rng := rand.New(rand.NewSource(m.cfg.Seed))
	params := treeParams{maxDepth: m.cfg.MaxDepth, minLeaf: m.cfg.MinLeaf}

	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(len(y))

	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = base
	}
	resid := make([]float64, len(y))

	subN := maxInt(2*m.cfg.MinLeaf, len(x)*4/5)
	trees := make([]*treeNode, 0, m.cfg.Trees)
	for round := 0; round < m.cfg.Trees; round++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range resid {
			resid[i] = y[i] - pred[i]
		}
		idx := rng.Perm(len(x))[:subN]
		tree := growTree(x, resid, idx, 0, params, nil)
		trees = append(trees, tree)
		for i, row := range x {
			pred[i] += m.cfg.LearningRate * tree.predict(row)
		}
	}

	fit := &boostedFit{
		spec:   spec,
		base:   base,
		nu:     m.cfg.LearningRate,
		trees:  trees,
		values: historyValues(train),
	}
	final := make([]float64, len(y))
	for i := range final {
		final[i] = y[i] - pred[i]
	}
	fit.qLo, fit.qHi = eval.ResidualQuantiles(final, 0.025, 0.975)
	return fit, nil
}

func (f *boostedFit) score(row []float64) float64 {
	s := f.base
	for _, t := range f.trees {
		s += f.nu * t.predict(row)
	}
	return s
}

// Predict implements Fit, recursively like the bagged variant.
func (f *boostedFit) Predict(steps []series.HorizonStep) []Prediction {
	values := append([]float64(nil), f.values...)
	out := make([]Prediction, len(steps))
	for k, hs := range steps {
		point := clampNonNegative(f.score(stepRow(f.spec, values, hs)))
		grow := math.Sqrt(float64(k + 1))
		out[k] = Prediction{
			Date:         hs.Date,
			Point:        point,
			Lower:        clampNonNegative(point + f.qLo*grow),
			Upper:        point + f.qHi*grow,
			ApproxBounds: true,
		}
		values = append(values, point)
	}
	return out
}
