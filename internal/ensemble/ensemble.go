// Package ensemble derives the convex combination of adapter forecasts
// from cross-validation results: weights inversely proportional to each
// adapter's mean validation error, normalized to sum 1.
package ensemble

import (
	"fmt"
	"math"
	"sort"

	"github.com/edgargomero/analisis-resultados/internal/eval"
	"github.com/edgargomero/analisis-resultados/internal/validate"
)

// Weights maps adapter name to its ensemble weight. Weights are
// non-negative and sum to 1; an adapter with zero successful folds gets
// weight 0. A Weights value is recomputed whole each run, never merged.
type Weights map[string]float64

// weightEpsilon guards the inverse-error ratio against a zero mean error
// (a perfect adapter on noiseless input).
const weightEpsilon = 1e-9

// Optimize computes inverse-error weights from the fold records using the
// given primary metric (mae, rmse or mape). Exact ties in mean error get
// equal weight by construction. Errors if no adapter has a successful fold.
func Optimize(folds []validate.Fold, primaryMetric string) (Weights, error) {
	sums := map[string]float64{}
	counts := map[string]int{}
	seen := map[string]bool{}
	for _, f := range folds {
		seen[f.Adapter] = true
		if !f.OK() {
			continue
		}
		v, err := f.Metrics.Primary(primaryMetric)
		if err != nil {
			return nil, err
		}
		sums[f.Adapter] += v
		counts[f.Adapter]++
	}
	if len(counts) == 0 {
		return nil, fmt.Errorf("no adapter produced a successful validation fold")
	}

	means := map[string]float64{}
	minErr := math.Inf(1)
	for name, c := range counts {
		m := sums[name] / float64(c)
		means[name] = m
		if m < minErr {
			minErr = m
		}
	}

	// Sum in sorted adapter order: float addition is not associative, so
	// map-order accumulation would make reruns differ in the last bits.
	names := make([]string, 0, len(means))
	for name := range means {
		names = append(names, name)
	}
	sort.Strings(names)

	w := Weights{}
	for name := range seen {
		w[name] = 0
	}
	var total float64
	for _, name := range names {
		raw := (minErr + weightEpsilon) / (means[name] + weightEpsilon)
		w[name] = raw
		total += raw
	}
	for _, name := range names {
		w[name] /= total
	}
	return w, nil
}

// Active returns the adapter names with nonzero weight, sorted for
// deterministic iteration.
func (w Weights) Active() []string {
	names := make([]string, 0, len(w))
	for name, v := range w {
		if v > 0 {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Backtest scores the weighted ensemble over the validation folds: for
// each fold, the predictions of the successful nonzero-weight adapters are
// combined (weights renormalized over those present) and compared against
// the fold actuals. The pooled pairs yield one Metrics value.
func Backtest(folds []validate.Fold, w Weights) (eval.Metrics, error) {
	byIndex := map[int][]validate.Fold{}
	for _, f := range folds {
		if f.OK() && w[f.Adapter] > 0 && len(f.Predictions) > 0 {
			byIndex[f.Index] = append(byIndex[f.Index], f)
		}
	}

	indices := make([]int, 0, len(byIndex))
	for i := range byIndex {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	var actual, predicted []float64
	for _, idx := range indices {
		group := byIndex[idx]
		sort.Slice(group, func(a, b int) bool { return group[a].Adapter < group[b].Adapter })

		var wTotal float64
		for _, f := range group {
			wTotal += w[f.Adapter]
		}
		n := len(group[0].Actuals)
		combined := make([]float64, n)
		ok := true
		for _, f := range group {
			if len(f.Predictions) != n {
				ok = false
				break
			}
			for i, p := range f.Predictions {
				combined[i] += w[f.Adapter] / wTotal * p
			}
		}
		if !ok {
			continue
		}
		actual = append(actual, group[0].Actuals...)
		predicted = append(predicted, combined...)
	}
	if len(actual) == 0 {
		return eval.Metrics{}, fmt.Errorf("no scoreable folds for backtest")
	}
	return eval.Compute(actual, predicted)
}
