// Package eval computes forecast accuracy metrics shared by the validator,
// the weight optimizer, and the performance evaluator.
package eval

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Metrics holds the error metrics of one forecast against actuals.
type Metrics struct {
	MAE  float64 `json:"mae"`
	RMSE float64 `json:"rmse"`
	MAPE float64 `json:"mape"` // percent, e.g. 12.5 means 12.5%
	N    int     `json:"n"`
}

// Compute scores predicted against actual. Both slices must be the same
// length and non-empty. MAPE skips zero actuals rather than dividing by
// zero; if every actual is zero, MAPE is reported as 0.
func Compute(actual, predicted []float64) (Metrics, error) {
	if len(actual) == 0 {
		return Metrics{}, fmt.Errorf("empty evaluation window")
	}
	if len(actual) != len(predicted) {
		return Metrics{}, fmt.Errorf("length mismatch: %d actual vs %d predicted", len(actual), len(predicted))
	}

	var absSum, sqSum, pctSum float64
	pctN := 0
	for i := range actual {
		diff := predicted[i] - actual[i]
		absSum += math.Abs(diff)
		sqSum += diff * diff
		if actual[i] != 0 {
			pctSum += math.Abs(diff / actual[i])
			pctN++
		}
	}

	n := float64(len(actual))
	m := Metrics{
		MAE:  absSum / n,
		RMSE: math.Sqrt(sqSum / n),
		N:    len(actual),
	}
	if pctN > 0 {
		m.MAPE = pctSum / float64(pctN) * 100
	}
	return m, nil
}

// Primary returns the metric value selected by name (mae, rmse or mape).
func (m Metrics) Primary(name string) (float64, error) {
	switch name {
	case "mae":
		return m.MAE, nil
	case "rmse":
		return m.RMSE, nil
	case "mape":
		return m.MAPE, nil
	default:
		return 0, fmt.Errorf("unknown metric %q", name)
	}
}

// ResidualQuantiles returns the (lo, hi) empirical quantiles of residuals.
// Used by the tree adapters to approximate prediction intervals, since
// tree ensembles have no native probabilistic output.
func ResidualQuantiles(residuals []float64, lo, hi float64) (float64, float64) {
	if len(residuals) == 0 {
		return 0, 0
	}
	sorted := make([]float64, len(residuals))
	copy(sorted, residuals)
	sort.Float64s(sorted)
	return stat.Quantile(lo, stat.Empirical, sorted, nil),
		stat.Quantile(hi, stat.Empirical, sorted, nil)
}

// StdDev returns the sample standard deviation of residuals, with a floor
// of zero for degenerate inputs.
func StdDev(residuals []float64) float64 {
	if len(residuals) < 2 {
		return 0
	}
	return stat.StdDev(residuals, nil)
}
