package model

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/edgargomero/analisis-resultados/internal/series"
)

// DecomposeConfig tunes the additive seasonal-decomposition adapter.
type DecomposeConfig struct {
	Changepoints     int     `json:"changepoints" mapstructure:"changepoints"`           // trend slope shifts allowed
	ChangepointRange float64 `json:"changepoint_range" mapstructure:"changepoint_range"` // fraction of history eligible for changepoints
	FourierOrder     int     `json:"fourier_order" mapstructure:"fourier_order"`         // yearly seasonality harmonics
}

// DefaultDecomposeConfig mirrors the production decomposition settings.
func DefaultDecomposeConfig() DecomposeConfig {
	return DecomposeConfig{Changepoints: 5, ChangepointRange: 0.8, FourierOrder: 3}
}

// Decompose is the additive seasonal-decomposition adapter: piecewise-linear
// trend with changepoints, day-of-week and yearly Fourier seasonality, and
// holiday-category regressors, all estimated in one least squares pass.
type Decompose struct {
	cfg DecomposeConfig
}

// NewDecompose returns the adapter with the given decomposition settings.
func NewDecompose(cfg DecomposeConfig) *Decompose {
	return &Decompose{cfg: cfg}
}

// Name implements Adapter.
func (m *Decompose) Name() string { return "seasonal" }

var holidayCategories = []series.HolidayCategory{
	series.CategoryReligious,
	series.CategoryCivic,
	series.CategoryElectoral,
	series.CategoryCultural,
}

type decomposeFit struct {
	cfg    DecomposeConfig
	start  time.Time // time origin of the trend axis
	cps    []float64 // changepoint locations, in days since start
	beta   []float64
	sigma  float64
	zScore float64
}

// Fit implements Adapter. Gap rows are excluded from estimation; the
// regression needs no contiguity because every regressor is a pure
// function of the calendar.
func (m *Decompose) Fit(ctx context.Context, train *series.Frame) (Fit, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := train.Points[0].Date
	spanDays := train.Points[train.Len()-1].Date.Sub(start).Hours() / 24

	// Changepoints sit uniformly over the leading fraction of history,
	// leaving the tail to pin down the final slope the forecast extends.
	cps := make([]float64, 0, m.cfg.Changepoints)
	for i := 1; i <= m.cfg.Changepoints; i++ {
		cps = append(cps, spanDays*m.cfg.ChangepointRange*float64(i)/float64(m.cfg.Changepoints+1))
	}

	fit := &decomposeFit{
		cfg:    m.cfg,
		start:  start,
		cps:    cps,
		zScore: distuv.Normal{Mu: 0, Sigma: 1}.Quantile(0.975),
	}

	rows := make([][]float64, 0, train.Len())
	targets := make([]float64, 0, train.Len())
	for _, p := range train.Points {
		if p.IsGap {
			continue
		}
		rows = append(rows, fit.designRow(series.HorizonStep{
			Date:        p.Date,
			IsHoliday:   p.IsHoliday,
			Category:    p.Category,
			PreHoliday:  p.PreHoliday,
			PostHoliday: p.PostHoliday,
			DayOfWeek:   p.DayOfWeek,
		}))
		targets = append(targets, p.Observed)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no usable rows after excluding gaps")
	}
	width := len(rows[0])
	if len(rows) < width {
		return nil, fmt.Errorf("series too short for decomposition: %d rows, %d params", len(rows), width)
	}

	x := mat.NewDense(len(rows), width, nil)
	for i, r := range rows {
		x.SetRow(i, r)
	}
	beta, err := olsSolve(x, targets, 1e-4)
	if err != nil {
		return nil, fmt.Errorf("decomposition regression: %w", err)
	}
	fit.beta = beta

	var sq float64
	for i, r := range rows {
		d := targets[i] - dot(r, beta)
		sq += d * d
	}
	fit.sigma = math.Sqrt(sq / float64(len(rows)))
	if fit.sigma == 0 {
		fit.sigma = 1e-6
	}
	return fit, nil
}

// designRow lays out one regression row: intercept, trend, changepoint
// hinges, day-of-week dummies (Monday is the baseline), yearly Fourier
// pairs, and holiday-category plus pre/post-holiday dummies.
func (f *decomposeFit) designRow(hs series.HorizonStep) []float64 {
	t := hs.Date.Sub(f.start).Hours() / 24
	row := make([]float64, 0, 2+len(f.cps)+6+2*f.cfg.FourierOrder+len(holidayCategories)+2)
	row = append(row, 1, t)
	for _, cp := range f.cps {
		if t > cp {
			row = append(row, t-cp)
		} else {
			row = append(row, 0)
		}
	}
	for d := 1; d < 7; d++ {
		if hs.DayOfWeek == d {
			row = append(row, 1)
		} else {
			row = append(row, 0)
		}
	}
	yday := float64(hs.Date.YearDay())
	for k := 1; k <= f.cfg.FourierOrder; k++ {
		arg := 2 * math.Pi * float64(k) * yday / 365.25
		row = append(row, math.Sin(arg), math.Cos(arg))
	}
	for _, cat := range holidayCategories {
		if hs.IsHoliday && hs.Category == cat {
			row = append(row, 1)
		} else {
			row = append(row, 0)
		}
	}
	if hs.PreHoliday {
		row = append(row, 1)
	} else {
		row = append(row, 0)
	}
	if hs.PostHoliday {
		row = append(row, 1)
	} else {
		row = append(row, 0)
	}
	return row
}

// Predict implements Fit. The interval half-width grows with √h from the
// in-sample residual dispersion.
func (f *decomposeFit) Predict(steps []series.HorizonStep) []Prediction {
	out := make([]Prediction, len(steps))
	for k, hs := range steps {
		point := dot(f.designRow(hs), f.beta)
		half := f.zScore * f.sigma * math.Sqrt(float64(k+1))
		out[k] = Prediction{
			Date:  hs.Date,
			Point: clampNonNegative(point),
			Lower: clampNonNegative(point - half),
			Upper: point + half,
		}
	}
	return out
}
