// Package compose produces the final horizon forecast: every adapter with
// nonzero ensemble weight is refitted on the entire history (fold fits are
// trained on truncated history and would bias the outlook), the weighted
// point forecast is assembled, and bounds are combined as the envelope of
// the per-model intervals rather than averaged, since averaging understates
// tail risk.
package compose

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgargomero/analisis-resultados/internal/ensemble"
	"github.com/edgargomero/analisis-resultados/internal/model"
	"github.com/edgargomero/analisis-resultados/internal/series"
	"github.com/edgargomero/analisis-resultados/internal/validate"
)

// Config tunes the composed forecast.
type Config struct {
	HorizonDays int           `json:"horizon_days" mapstructure:"horizon_days"` // working days to forecast
	WorkingDays []int         `json:"working_days" mapstructure:"working_days"` // Monday=0 indices
	FitTimeout  time.Duration `json:"fit_timeout" mapstructure:"fit_timeout"`
}

// DefaultConfig forecasts 28 working days over a Monday–Saturday week.
func DefaultConfig() Config {
	return Config{
		HorizonDays: 28,
		WorkingDays: []int{0, 1, 2, 3, 4, 5},
		FitTimeout:  2 * time.Minute,
	}
}

// Entry is one composed forecast period with its per-model breakdown.
type Entry struct {
	Date         time.Time                   `json:"date"`
	Point        float64                     `json:"point"`
	Lower        float64                     `json:"lower"`
	Upper        float64                     `json:"upper"`
	ApproxBounds bool                        `json:"approx_bounds,omitempty"`
	PerModel     map[string]model.Prediction `json:"per_model"`
	Step         series.HorizonStep          `json:"calendar"`
}

// Forecast is the read-only output of one pipeline run.
type Forecast struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Entries     []Entry          `json:"entries"`
	Weights     ensemble.Weights `json:"weights"`
}

// Compose refits the nonzero-weight adapters on the full frame and builds
// the horizon forecast. An adapter that fails its full-history refit is
// dropped with a logged reason and the weights are renormalized over the
// survivors; all refits failing is an error.
func Compose(ctx context.Context, log zerolog.Logger, frame *series.Frame, cal series.Calendar, adapters []model.Adapter, w ensemble.Weights, cfg Config) (*Forecast, error) {
	byName := make(map[string]model.Adapter, len(adapters))
	for _, a := range adapters {
		byName[a.Name()] = a
	}

	steps := series.HorizonSteps(frame.LastDate(), cfg.HorizonDays, series.WorkweekFrom(cfg.WorkingDays), cal)

	preds := map[string][]model.Prediction{}
	var wTotal float64
	for _, name := range w.Active() {
		a, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("weights reference unknown adapter %q", name)
		}
		fit, err := validate.FitWithTimeout(ctx, a, frame, cfg.FitTimeout)
		if err != nil {
			log.Warn().Str("adapter", name).Err(err).Msg("adapter dropped at full-history refit")
			continue
		}
		p := fit.Predict(steps)
		if len(p) != len(steps) {
			return nil, fmt.Errorf("adapter %s returned %d predictions for %d steps", name, len(p), len(steps))
		}
		preds[name] = p
		wTotal += w[name]
	}
	if len(preds) == 0 {
		return nil, fmt.Errorf("no adapter survived the full-history refit")
	}

	entries := make([]Entry, len(steps))
	for k, hs := range steps {
		e := Entry{
			Date:     hs.Date,
			Lower:    math.Inf(1),
			Upper:    math.Inf(-1),
			PerModel: map[string]model.Prediction{},
			Step:     hs,
		}
		for _, name := range w.Active() {
			p, ok := preds[name]
			if !ok {
				continue
			}
			e.Point += w[name] / wTotal * p[k].Point
			if p[k].Lower < e.Lower {
				e.Lower = p[k].Lower
			}
			if p[k].Upper > e.Upper {
				e.Upper = p[k].Upper
			}
			if p[k].ApproxBounds {
				e.ApproxBounds = true
			}
			e.PerModel[name] = p[k]
		}
		entries[k] = e
	}

	return &Forecast{
		GeneratedAt: time.Now().UTC(),
		Entries:     entries,
		Weights:     w,
	}, nil
}

// Totals returns the sum and mean of the point forecast plus the peak
// entry, for the run's executive summary.
func (f *Forecast) Totals() (total, mean float64, peak Entry) {
	if len(f.Entries) == 0 {
		return 0, 0, Entry{}
	}
	peak = f.Entries[0]
	for _, e := range f.Entries {
		total += e.Point
		if e.Point > peak.Point {
			peak = e
		}
	}
	return total, total / float64(len(f.Entries)), peak
}
