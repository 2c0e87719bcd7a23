// Package model implements the four forecasting adapters behind one
// polymorphic contract: fit on a shared Frame, predict a horizon with
// uncertainty bounds. The rest of the pipeline never branches on adapter
// identity except for diagnostics labels.
package model

import (
	"context"
	"time"

	"github.com/edgargomero/analisis-resultados/internal/series"
)

// Prediction is one forecast period with its uncertainty bounds.
// ApproxBounds marks intervals derived from residual quantiles rather than
// a probabilistic model; diagnostics surface the flag to consumers.
type Prediction struct {
	Date         time.Time `json:"date"`
	Point        float64   `json:"point"`
	Lower        float64   `json:"lower"`
	Upper        float64   `json:"upper"`
	ApproxBounds bool      `json:"approx_bounds,omitempty"`
}

// Fit is the trained state of one adapter. A Fit is immutable: retraining
// produces a new Fit, never mutates an old one.
type Fit interface {
	// Predict forecasts one value per horizon step, in step order.
	Predict(steps []series.HorizonStep) []Prediction
}

// Adapter is the uniform model contract. Fit must be safe to call
// concurrently from multiple folds: all mutable state lives in the
// returned Fit, and any randomness is seeded per call.
type Adapter interface {
	Name() string
	Fit(ctx context.Context, train *series.Frame) (Fit, error)
}

// StepsFromPoints converts historical points into horizon steps so fold
// test windows can be predicted through the same Fit.Predict path the
// composer uses.
func StepsFromPoints(pts []series.TimePoint) []series.HorizonStep {
	steps := make([]series.HorizonStep, len(pts))
	for i, p := range pts {
		steps[i] = series.HorizonStep{
			Date:        p.Date,
			IsHoliday:   p.IsHoliday,
			Category:    p.Category,
			PreHoliday:  p.PreHoliday,
			PostHoliday: p.PostHoliday,
			DayOfWeek:   p.DayOfWeek,
			WeekOfYear:  p.WeekOfYear,
		}
	}
	return steps
}

// clampNonNegative floors a forecast at zero. Call volume cannot be
// negative, and several adapters can extrapolate below zero on declining
// series.
func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
