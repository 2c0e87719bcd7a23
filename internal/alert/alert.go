// Package alert is the performance and alerting layer: it checks ensemble
// backtest metrics against fixed accuracy targets and scans observed and
// forecast demand for spikes, low-demand days, wide uncertainty bands, and
// anomalous holiday levels. Alert precision is tracked by an external
// feedback collaborator; nothing here enforces it.
package alert

import (
	"fmt"
	"sort"
	"time"

	"github.com/edgargomero/analisis-resultados/internal/compose"
	"github.com/edgargomero/analisis-resultados/internal/eval"
	"github.com/edgargomero/analisis-resultados/internal/metrics"
	"github.com/edgargomero/analisis-resultados/internal/series"
)

// Severity is the alert tier.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event kinds.
const (
	KindSpike          = "spike"
	KindLowDemand      = "low_demand"
	KindUncertainty    = "high_uncertainty"
	KindHolidayAnomaly = "holiday_anomaly"
)

// Event is one emitted alert, consumed by external notification
// collaborators.
type Event struct {
	Date      time.Time `json:"date"`
	Kind      string    `json:"kind"`
	Severity  Severity  `json:"severity"`
	Value     float64   `json:"value"`     // observed or forecast value
	Threshold float64   `json:"threshold"` // the level that was breached
	Forecast  bool      `json:"forecast"`  // true when the value is a forecast
	Message   string    `json:"message"`
}

// Targets are the fixed accuracy targets the backtest must meet.
type Targets struct {
	MAE  float64 `json:"mae" mapstructure:"mae"`
	RMSE float64 `json:"rmse" mapstructure:"rmse"`
	MAPE float64 `json:"mape" mapstructure:"mape"`
}

// DefaultTargets are the operational accuracy targets.
func DefaultTargets() Targets {
	return Targets{MAE: 10, RMSE: 15, MAPE: 25}
}

// TargetCheck is one pass/fail diagnostic against a target.
type TargetCheck struct {
	Metric string  `json:"metric"`
	Target float64 `json:"target"`
	Actual float64 `json:"actual"`
	Pass   bool    `json:"pass"`
}

// CheckTargets compares backtest metrics against the targets.
func CheckTargets(m eval.Metrics, t Targets) []TargetCheck {
	return []TargetCheck{
		{Metric: "mae", Target: t.MAE, Actual: m.MAE, Pass: m.MAE < t.MAE},
		{Metric: "rmse", Target: t.RMSE, Actual: m.RMSE, Pass: m.RMSE < t.RMSE},
		{Metric: "mape", Target: t.MAPE, Actual: m.MAPE, Pass: m.MAPE < t.MAPE},
	}
}

// Config tunes the demand scans.
type Config struct {
	SpikeMultiplier    float64 `json:"spike_multiplier" mapstructure:"spike_multiplier"`       // baseline multiple that triggers a spike warning
	BaselineWindow     int     `json:"baseline_window" mapstructure:"baseline_window"`         // trailing periods in the rolling baseline
	LowDemandThreshold float64 `json:"low_demand_threshold" mapstructure:"low_demand_threshold"`
	UncertaintyRatio   float64 `json:"uncertainty_ratio" mapstructure:"uncertainty_ratio"`     // band width / point that flags high variability
	HolidayTolerance   float64 `json:"holiday_tolerance" mapstructure:"holiday_tolerance"`     // relative deviation from the historical category level
}

// DefaultConfig mirrors the production alerting thresholds.
func DefaultConfig() Config {
	return Config{
		SpikeMultiplier:    1.5,
		BaselineWindow:     28,
		LowDemandThreshold: 20,
		UncertaintyRatio:   0.8,
		HolidayTolerance:   0.3,
	}
}

// Evaluate runs every demand scan over the observed history and the
// composed forecast, returning events ordered by date.
func Evaluate(frame *series.Frame, fc *compose.Forecast, cfg Config) []Event {
	var events []Event
	events = append(events, scanObserved(frame, cfg)...)
	if fc != nil {
		events = append(events, scanForecast(frame, fc, cfg)...)
		events = append(events, scanHolidays(frame, fc, cfg)...)
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Date.Before(events[j].Date) })
	for _, e := range events {
		metrics.AlertsEmitted.WithLabelValues(string(e.Severity)).Inc()
	}
	return events
}

// spikeSeverity classifies a value against its baseline: the configured
// multiple is a warning, one and a half times that is critical.
func spikeSeverity(value, baseline float64, cfg Config) (Severity, bool) {
	if baseline <= 0 {
		return "", false
	}
	ratio := value / baseline
	switch {
	case ratio >= 1.5*cfg.SpikeMultiplier:
		return SeverityCritical, true
	case ratio >= cfg.SpikeMultiplier:
		return SeverityWarning, true
	}
	return "", false
}

func scanObserved(frame *series.Frame, cfg Config) []Event {
	var events []Event
	for i, p := range frame.Points {
		if i < cfg.BaselineWindow || p.IsGap {
			continue
		}
		baseline, ok := trailingMean(frame.Points[i-cfg.BaselineWindow:i], 0)
		if !ok {
			continue
		}
		if sev, hit := spikeSeverity(p.Observed, baseline, cfg); hit {
			events = append(events, Event{
				Date:      p.Date,
				Kind:      KindSpike,
				Severity:  sev,
				Value:     p.Observed,
				Threshold: baseline * cfg.SpikeMultiplier,
				Message:   fmt.Sprintf("observed demand %.0f is %.1fx the trailing baseline %.0f", p.Observed, p.Observed/baseline, baseline),
			})
		}
	}
	return events
}

func scanForecast(frame *series.Frame, fc *compose.Forecast, cfg Config) []Event {
	// The rolling baseline advances through the horizon: each forecast day
	// is judged against the window of values immediately before it,
	// observed or already forecast.
	window := make([]float64, 0, cfg.BaselineWindow+len(fc.Entries))
	for _, p := range frame.Points {
		if !p.IsGap {
			window = append(window, p.Observed)
		}
	}

	var events []Event
	for _, e := range fc.Entries {
		var baseline float64
		if n := len(window); n >= cfg.BaselineWindow {
			baseline = mean(window[n-cfg.BaselineWindow:])
		} else if n > 0 {
			baseline = mean(window)
		}

		if sev, hit := spikeSeverity(e.Point, baseline, cfg); hit {
			events = append(events, Event{
				Date:      e.Date,
				Kind:      KindSpike,
				Severity:  sev,
				Value:     e.Point,
				Threshold: baseline * cfg.SpikeMultiplier,
				Forecast:  true,
				Message:   fmt.Sprintf("forecast demand %.0f is %.1fx the rolling baseline %.0f", e.Point, e.Point/baseline, baseline),
			})
		}
		if e.Point < cfg.LowDemandThreshold {
			events = append(events, Event{
				Date:      e.Date,
				Kind:      KindLowDemand,
				Severity:  SeverityInfo,
				Value:     e.Point,
				Threshold: cfg.LowDemandThreshold,
				Forecast:  true,
				Message:   fmt.Sprintf("forecast demand %.0f below low-demand threshold %.0f, possible overstaffing", e.Point, cfg.LowDemandThreshold),
			})
		}
		if e.Point > 0 && (e.Upper-e.Lower)/e.Point > cfg.UncertaintyRatio {
			events = append(events, Event{
				Date:      e.Date,
				Kind:      KindUncertainty,
				Severity:  SeverityInfo,
				Value:     e.Upper - e.Lower,
				Threshold: e.Point * cfg.UncertaintyRatio,
				Forecast:  true,
				Message:   "forecast interval unusually wide, hold contingency staff",
			})
		}
		window = append(window, e.Point)
	}
	return events
}

// scanHolidays flags forecast holidays whose level deviates from the
// historical demand ratio of their category.
func scanHolidays(frame *series.Frame, fc *compose.Forecast, cfg Config) []Event {
	ratios := categoryRatios(frame)
	if len(ratios) == 0 {
		return nil
	}
	baseline, ok := trailingMean(frame.Points, cfg.BaselineWindow)
	if !ok {
		return nil
	}

	var events []Event
	for _, e := range fc.Entries {
		if !e.Step.IsHoliday {
			continue
		}
		ratio, ok := ratios[e.Step.Category]
		if !ok {
			continue
		}
		expected := baseline * ratio
		if expected <= 0 {
			continue
		}
		if dev := (e.Point - expected) / expected; dev > cfg.HolidayTolerance || dev < -cfg.HolidayTolerance {
			events = append(events, Event{
				Date:      e.Date,
				Kind:      KindHolidayAnomaly,
				Severity:  SeverityWarning,
				Value:     e.Point,
				Threshold: expected,
				Forecast:  true,
				Message: fmt.Sprintf("forecast %.0f deviates from the historical %s-holiday level %.0f",
					e.Point, e.Step.Category, expected),
			})
		}
	}
	return events
}

// categoryRatios computes, per holiday category, the historical mean
// demand relative to ordinary days.
func categoryRatios(frame *series.Frame) map[series.HolidayCategory]float64 {
	catSum := map[series.HolidayCategory]float64{}
	catN := map[series.HolidayCategory]int{}
	var ordSum float64
	var ordN int
	for _, p := range frame.Points {
		if p.IsGap {
			continue
		}
		if p.IsHoliday {
			catSum[p.Category] += p.Observed
			catN[p.Category]++
		} else {
			ordSum += p.Observed
			ordN++
		}
	}
	if ordN == 0 || ordSum == 0 {
		return nil
	}
	ordMean := ordSum / float64(ordN)
	out := map[series.HolidayCategory]float64{}
	for cat, n := range catN {
		out[cat] = (catSum[cat] / float64(n)) / ordMean
	}
	return out
}

// trailingMean averages the non-gap values of the last window points
// (window 0 means all points).
func trailingMean(pts []series.TimePoint, window int) (float64, bool) {
	if window > 0 && len(pts) > window {
		pts = pts[len(pts)-window:]
	}
	var sum float64
	var n int
	for _, p := range pts {
		if p.IsGap {
			continue
		}
		sum += p.Observed
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func mean(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
