package model

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"github.com/edgargomero/analisis-resultados/internal/eval"
	"github.com/edgargomero/analisis-resultados/internal/series"
)

// TreeConfig tunes the two tree-ensemble adapters. LearningRate applies
// only to the boosted variant. The seed fixes every random draw so a fit
// is reproducible bit-for-bit.
type TreeConfig struct {
	Trees        int     `json:"trees" mapstructure:"trees"`
	MaxDepth     int     `json:"max_depth" mapstructure:"max_depth"`
	MinLeaf      int     `json:"min_leaf" mapstructure:"min_leaf"`
	LearningRate float64 `json:"learning_rate" mapstructure:"learning_rate"`
	Seed         int64   `json:"seed" mapstructure:"seed"`
}

// DefaultBaggedConfig is the production bagging setup: deep trees,
// bootstrap rows, a random feature subset per split.
func DefaultBaggedConfig() TreeConfig {
	return TreeConfig{Trees: 50, MaxDepth: 8, MinLeaf: 3, Seed: 42}
}

// BaggedTrees is the bootstrap-aggregated regression tree adapter over the
// engineered feature matrix. Bounds come from in-sample residual quantiles
// and are flagged approximate.
type BaggedTrees struct {
	cfg TreeConfig
}

// NewBaggedTrees returns the bagging adapter.
func NewBaggedTrees(cfg TreeConfig) *BaggedTrees {
	return &BaggedTrees{cfg: cfg}
}

// Name implements Adapter.
func (m *BaggedTrees) Name() string { return "bagged_trees" }

type baggedFit struct {
	spec   featureSpec
	trees  []*treeNode
	values []float64 // training history, seeds the recursive predictor
	qLo    float64   // residual quantiles for approximate bounds
	qHi    float64
}

// Fit implements Adapter.
func (m *BaggedTrees) Fit(ctx context.Context, train *series.Frame) (Fit, error) {
	spec := newFeatureSpec(train.Config)
	x, y := trainMatrix(train, spec)
	if len(x) < 4*m.cfg.MinLeaf {
		return nil, fmt.Errorf("too few usable rows for bagging: %d", len(x))
	}

	rng := rand.New(rand.NewSource(m.cfg.Seed))
	params := treeParams{
		maxDepth: m.cfg.MaxDepth,
		minLeaf:  m.cfg.MinLeaf,
		mtry:     maxInt(2, spec.width()/3),
	}

	trees := make([]*treeNode, 0, m.cfg.Trees)
	for b := 0; b < m.cfg.Trees; b++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		idx := make([]int, len(x))
		for i := range idx {
			idx[i] = rng.Intn(len(x))
		}
		trees = append(trees, growTree(x, y, idx, 0, params, rng))
	}

	fit := &baggedFit{
		spec:   spec,
		trees:  trees,
		values: historyValues(train),
	}
	resid := make([]float64, len(x))
	for i, row := range x {
		resid[i] = y[i] - fit.score(row)
	}
	fit.qLo, fit.qHi = eval.ResidualQuantiles(resid, 0.025, 0.975)
	return fit, nil
}

func (f *baggedFit) score(row []float64) float64 {
	var s float64
	for _, t := range f.trees {
		s += t.predict(row)
	}
	return s / float64(len(f.trees))
}

// Predict implements Fit: one-step predictions are fed back into the lag
// features to cover the full horizon recursively.
func (f *baggedFit) Predict(steps []series.HorizonStep) []Prediction {
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

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
