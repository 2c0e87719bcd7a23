package model

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/edgargomero/analisis-resultados/internal/eval"
	"github.com/edgargomero/analisis-resultados/internal/series"
)

// ARIMAConfig fixes the autoregressive-integrated order. Orders are
// configuration, never auto-selected, so runs stay deterministic and
// explainable to planners.
type ARIMAConfig struct {
	P int `json:"p" mapstructure:"p"` // autoregressive terms
	D int `json:"d" mapstructure:"d"` // differencing passes
	Q int `json:"q" mapstructure:"q"` // moving-average terms
}

// DefaultARIMAConfig is the production order for daily call volume.
func DefaultARIMAConfig() ARIMAConfig {
	return ARIMAConfig{P: 2, D: 1, Q: 1}
}

// ARIMA is the autoregressive-integrated adapter. Estimation follows the
// Hannan-Rissanen two-stage scheme: a long autoregression supplies
// innovation estimates, then AR and MA coefficients come from one least
// squares pass. Bounds are symmetric Gaussian from residual variance.
type ARIMA struct {
	cfg ARIMAConfig
}

// NewARIMA returns the adapter for the given fixed order.
func NewARIMA(cfg ARIMAConfig) *ARIMA {
	return &ARIMA{cfg: cfg}
}

// Name implements Adapter.
func (a *ARIMA) Name() string { return "arima" }

type arimaFit struct {
	cfg        ARIMAConfig
	intercept  float64
	phi        []float64 // AR coefficients, lag 1..p
	theta      []float64 // MA coefficients, lag 1..q
	sigma      float64   // residual standard deviation
	diffTail   []float64 // trailing values of the differenced series
	residTail  []float64 // trailing innovations
	lastLevels []float64 // last value at each integration level, 0 = observed
}

// Fit implements Adapter. Gap rows are linearly interpolated first: the
// AR recursion needs a contiguous series, and interpolation is explicit
// here rather than silent upstream.
func (a *ARIMA) Fit(ctx context.Context, train *series.Frame) (Fit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cfg := a.cfg
	if cfg.P < 0 || cfg.D < 0 || cfg.Q < 0 {
		return nil, fmt.Errorf("negative order (p=%d d=%d q=%d)", cfg.P, cfg.D, cfg.Q)
	}

	y := interpolateGaps(train)
	long := longAROrder(cfg, len(y))
	// Twice the long-AR order keeps the stage-one regression
	// overdetermined; the rest covers differencing and burn-in.
	minLen := cfg.D + 2*long + cfg.P + cfg.Q + 5
	if len(y) < minLen {
		return nil, fmt.Errorf("series too short for order (%d,%d,%d): have %d, need %d",
			cfg.P, cfg.D, cfg.Q, len(y), minLen)
	}

	// Record the last value at every integration level before losing them
	// to differencing; Predict integrates forecasts back up the chain.
	lastLevels := make([]float64, cfg.D)
	w := y
	for d := 0; d < cfg.D; d++ {
		lastLevels[d] = w[len(w)-1]
		w = difference(w)
	}

	resid, err := longARResiduals(w, long)
	if err != nil {
		return nil, err
	}

	intercept, phi, theta, sigma, innov, err := armaLeastSquares(w, resid, cfg.P, cfg.Q, long)
	if err != nil {
		return nil, err
	}

	fit := &arimaFit{
		cfg:        cfg,
		intercept:  intercept,
		phi:        phi,
		theta:      theta,
		sigma:      sigma,
		lastLevels: lastLevels,
	}
	if cfg.P > 0 {
		fit.diffTail = append([]float64(nil), w[len(w)-cfg.P:]...)
	}
	if cfg.Q > 0 {
		fit.residTail = append([]float64(nil), innov[len(innov)-cfg.Q:]...)
	}
	return fit, nil
}

// Predict implements Fit. Future innovations are their expectation, zero;
// interval half-width grows with √h from the one-step residual variance.
func (f *arimaFit) Predict(steps []series.HorizonStep) []Prediction {
	h := len(steps)
	diffs := make([]float64, 0, h)
	w := append([]float64(nil), f.diffTail...)
	e := append([]float64(nil), f.residTail...)

	for k := 0; k < h; k++ {
		v := f.intercept
		for i, c := range f.phi {
			v += c * w[len(w)-1-i]
		}
		for j, c := range f.theta {
			if j < len(e) {
				v += c * e[len(e)-1-j]
			}
		}
		diffs = append(diffs, v)
		if len(f.phi) > 0 {
			w = append(w, v)
		}
		e = append(e, 0)
	}

	points := integrate(diffs, f.lastLevels)

	z := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.975)
	out := make([]Prediction, h)
	for k := range out {
		half := z * f.sigma * math.Sqrt(float64(k+1))
		out[k] = Prediction{
			Date:  steps[k].Date,
			Point: clampNonNegative(points[k]),
			Lower: clampNonNegative(points[k] - half),
			Upper: points[k] + half,
		}
	}
	return out
}

func longAROrder(cfg ARIMAConfig, n int) int {
	long := cfg.P + cfg.Q + 5
	if long < 10 {
		long = 10
	}
	if limit := n / 4; long > limit && limit > cfg.P+cfg.Q {
		long = limit
	}
	return long
}

// longARResiduals runs stage one of Hannan-Rissanen: a high-order
// autoregression whose residuals proxy the unobserved innovations.
// Residuals are aligned with w; the first `long` entries are zero.
func longARResiduals(w []float64, long int) ([]float64, error) {
	rows := len(w) - long
	x := mat.NewDense(rows, long+1, nil)
	y := make([]float64, rows)
	for t := long; t < len(w); t++ {
		r := t - long
		x.Set(r, 0, 1)
		for i := 1; i <= long; i++ {
			x.Set(r, i, w[t-i])
		}
		y[r] = w[t]
	}
	beta, err := olsSolve(x, y, 1e-8)
	if err != nil {
		return nil, fmt.Errorf("long autoregression: %w", err)
	}

	resid := make([]float64, len(w))
	for t := long; t < len(w); t++ {
		pred := beta[0]
		for i := 1; i <= long; i++ {
			pred += beta[i] * w[t-i]
		}
		resid[t] = w[t] - pred
	}
	return resid, nil
}

// armaLeastSquares runs stage two: regress w_t on its own lags and the
// stage-one innovation lags. Returns the final innovation sequence
// (aligned with w) for the MA recursion at predict time.
func armaLeastSquares(w, resid []float64, p, q, long int) (intercept float64, phi, theta []float64, sigma float64, innov []float64, err error) {
	start := long + q
	if p > start {
		start = p
	}
	rows := len(w) - start
	cols := 1 + p + q
	if rows < cols {
		return 0, nil, nil, 0, nil, fmt.Errorf("not enough rows after burn-in: %d rows, %d params", rows, cols)
	}

	x := mat.NewDense(rows, cols, nil)
	y := make([]float64, rows)
	for t := start; t < len(w); t++ {
		r := t - start
		x.Set(r, 0, 1)
		for i := 1; i <= p; i++ {
			x.Set(r, i, w[t-i])
		}
		for j := 1; j <= q; j++ {
			x.Set(r, p+j, resid[t-j])
		}
		y[r] = w[t]
	}
	beta, err := olsSolve(x, y, 1e-8)
	if err != nil {
		return 0, nil, nil, 0, nil, fmt.Errorf("arma regression: %w", err)
	}

	intercept = beta[0]
	phi = beta[1 : 1+p]
	theta = beta[1+p:]

	innov = make([]float64, len(w))
	final := make([]float64, 0, rows)
	for t := start; t < len(w); t++ {
		pred := intercept
		for i := 1; i <= p; i++ {
			pred += phi[i-1] * w[t-i]
		}
		for j := 1; j <= q; j++ {
			pred += theta[j-1] * resid[t-j]
		}
		innov[t] = w[t] - pred
		final = append(final, innov[t])
	}
	sigma = eval.StdDev(final)
	if sigma == 0 || math.IsNaN(sigma) {
		sigma = 1e-6
	}
	return intercept, phi, theta, sigma, innov, nil
}

// difference returns the first difference of v.
func difference(v []float64) []float64 {
	out := make([]float64, len(v)-1)
	for i := range out {
		out[i] = v[i+1] - v[i]
	}
	return out
}

// integrate undoes d differencing passes: lastLevels[d-1] seeds the
// innermost cumulative sum, lastLevels[0] the outermost.
func integrate(diffs []float64, lastLevels []float64) []float64 {
	out := append([]float64(nil), diffs...)
	for level := len(lastLevels) - 1; level >= 0; level-- {
		acc := lastLevels[level]
		for i := range out {
			acc += out[i]
			out[i] = acc
		}
	}
	return out
}

// interpolateGaps returns the observed values with gap rows replaced by
// linear interpolation between their non-gap neighbors. Leading or
// trailing gaps take the nearest non-gap value.
func interpolateGaps(f *series.Frame) []float64 {
	n := f.Len()
	out := make([]float64, n)
	prev := -1
	for i := 0; i < n; i++ {
		p := f.Points[i]
		if !p.IsGap {
			out[i] = p.Observed
			// Back-fill the gap run (or leading gaps) we just closed.
			if prev < i-1 {
				for j := prev + 1; j < i; j++ {
					if prev < 0 {
						out[j] = p.Observed
					} else {
						frac := float64(j-prev) / float64(i-prev)
						out[j] = out[prev] + frac*(p.Observed-out[prev])
					}
				}
			}
			prev = i
			continue
		}
	}
	for j := prev + 1; j < n; j++ {
		if prev >= 0 {
			out[j] = out[prev]
		}
	}
	return out
}
