package ensemble

import (
	"math"
	"testing"

	"github.com/edgargomero/analisis-resultados/internal/eval"
	"github.com/edgargomero/analisis-resultados/internal/validate"
)

func okFold(idx int, adapter string, mae float64) validate.Fold {
	return validate.Fold{
		Index:   idx,
		Adapter: adapter,
		Metrics: eval.Metrics{MAE: mae, RMSE: mae * 1.3, MAPE: mae, N: 10},
	}
}

func failedFold(idx int, adapter string) validate.Fold {
	return validate.Fold{Index: idx, Adapter: adapter, Err: "did not converge"}
}

// assertConvex checks the weight invariants: non-negative, summing to 1.
func assertConvex(t *testing.T, w Weights) {
	t.Helper()
	var sum float64
	for name, v := range w {
		if v < 0 {
			t.Errorf("weight[%s] = %v, want >= 0", name, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("weights sum to %v, want 1", sum)
	}
}

func TestOptimizeInverseError(t *testing.T) {
	folds := []validate.Fold{
		okFold(0, "a", 5), okFold(1, "a", 5),
		okFold(0, "b", 10), okFold(1, "b", 10),
	}
	w, err := Optimize(folds, "mae")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	// Inverse-error: a carries twice b's weight.
	if ratio := w["a"] / w["b"]; math.Abs(ratio-2) > 1e-6 {
		t.Errorf("weight ratio = %v, want 2", ratio)
	}
	assertConvex(t, w)
}

func TestOptimizeSumsToOne(t *testing.T) {
	folds := []validate.Fold{
		okFold(0, "a", 3.2), okFold(1, "a", 4.1),
		okFold(0, "b", 7.9),
		okFold(0, "c", 12.5), okFold(1, "c", 9.9),
	}
	w, err := Optimize(folds, "mae")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	assertConvex(t, w)
}

func TestOptimizeTiesSplitEqually(t *testing.T) {
	folds := []validate.Fold{
		okFold(0, "a", 6), okFold(0, "b", 6), okFold(0, "c", 6),
	}
	w, err := Optimize(folds, "mae")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	for name, v := range w {
		if math.Abs(v-1.0/3) > 1e-9 {
			t.Errorf("weight[%s] = %v, want 1/3", name, v)
		}
	}
}

func TestOptimizeZeroFoldAdapterExcluded(t *testing.T) {
	folds := []validate.Fold{
		okFold(0, "a", 5),
		failedFold(0, "broken"), failedFold(1, "broken"),
	}
	w, err := Optimize(folds, "mae")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if w["broken"] != 0 {
		t.Errorf("failed adapter weight = %v, want 0", w["broken"])
	}
	if math.Abs(w["a"]-1) > 1e-9 {
		t.Errorf("single survivor weight = %v, want 1", w["a"])
	}
	if got := w.Active(); len(got) != 1 || got[0] != "a" {
		t.Errorf("Active() = %v, want [a]", got)
	}
}

func TestOptimizePerfectAdapterNoDivisionByZero(t *testing.T) {
	folds := []validate.Fold{
		okFold(0, "perfect", 0),
		okFold(0, "other", 4),
	}
	w, err := Optimize(folds, "mae")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	assertConvex(t, w)
	if w["perfect"] <= w["other"] {
		t.Errorf("perfect adapter not dominant: %v vs %v", w["perfect"], w["other"])
	}
}

func TestOptimizeBitwiseRepeatable(t *testing.T) {
	folds := []validate.Fold{
		okFold(0, "arima", 4.7), okFold(1, "arima", 5.3),
		okFold(0, "seasonal", 6.1), okFold(1, "seasonal", 5.9),
		okFold(0, "bagged_trees", 8.4),
		okFold(0, "boosted_trees", 7.2), okFold(1, "boosted_trees", 7.8),
	}
	ref, err := Optimize(folds, "mae")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	// Weights must be bit-identical across reruns, not merely close:
	// map iteration order must never reach the accumulation.
	for i := 0; i < 100; i++ {
		w, err := Optimize(folds, "mae")
		if err != nil {
			t.Fatalf("Optimize rerun %d: %v", i, err)
		}
		for name, v := range ref {
			if w[name] != v {
				t.Fatalf("rerun %d: weight[%s] = %.20g, ref %.20g", i, name, w[name], v)
			}
		}
	}
}

func TestOptimizeAllFailed(t *testing.T) {
	folds := []validate.Fold{failedFold(0, "a"), failedFold(0, "b")}
	if _, err := Optimize(folds, "mae"); err == nil {
		t.Fatalf("want error when every adapter failed")
	}
}

func TestOptimizePrimaryMetricSelection(t *testing.T) {
	folds := []validate.Fold{
		{Index: 0, Adapter: "a", Metrics: eval.Metrics{MAE: 10, RMSE: 1, N: 5}},
		{Index: 0, Adapter: "b", Metrics: eval.Metrics{MAE: 1, RMSE: 10, N: 5}},
	}
	w, err := Optimize(folds, "rmse")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if w["a"] <= w["b"] {
		t.Errorf("rmse ordering ignored: %v", w)
	}
	if _, err := Optimize(folds, "median"); err == nil {
		t.Errorf("unknown metric accepted")
	}
}

func TestBacktestCombinesFoldPredictions(t *testing.T) {
	actual := []float64{100, 110, 120}
	folds := []validate.Fold{
		{Index: 0, Adapter: "a", Metrics: eval.Metrics{MAE: 5, N: 3},
			Predictions: []float64{90, 100, 110}, Actuals: actual},
		{Index: 0, Adapter: "b", Metrics: eval.Metrics{MAE: 5, N: 3},
			Predictions: []float64{110, 120, 130}, Actuals: actual},
	}
	w := Weights{"a": 0.5, "b": 0.5}
	m, err := Backtest(folds, w)
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	// Equal weights average the two biased adapters into a perfect forecast.
	if m.MAE > 1e-9 {
		t.Errorf("combined MAE = %v, want 0", m.MAE)
	}
	if m.N != 3 {
		t.Errorf("N = %d, want 3", m.N)
	}
}

func TestBacktestSkipsFailedAndZeroWeight(t *testing.T) {
	actual := []float64{100, 100}
	folds := []validate.Fold{
		{Index: 0, Adapter: "a", Predictions: []float64{100, 100}, Actuals: actual,
			Metrics: eval.Metrics{N: 2}},
		{Index: 0, Adapter: "noisy", Predictions: []float64{0, 0}, Actuals: actual,
			Metrics: eval.Metrics{N: 2}},
		failedFold(1, "a"),
	}
	w := Weights{"a": 1, "noisy": 0}
	m, err := Backtest(folds, w)
	if err != nil {
		t.Fatalf("Backtest: %v", err)
	}
	if m.MAE != 0 {
		t.Errorf("zero-weight adapter leaked into backtest: MAE = %v", m.MAE)
	}
}
