// Package pipeline orchestrates one batch forecasting run: build the
// shared dataset, cross-validate the adapters, optimize ensemble weights,
// compose the horizon forecast, and evaluate performance and alerts. A run
// completes or fails atomically; partial results are never returned.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/edgargomero/analisis-resultados/internal/alert"
	"github.com/edgargomero/analisis-resultados/internal/compose"
	"github.com/edgargomero/analisis-resultados/internal/ensemble"
	"github.com/edgargomero/analisis-resultados/internal/eval"
	"github.com/edgargomero/analisis-resultados/internal/fcerr"
	"github.com/edgargomero/analisis-resultados/internal/metrics"
	"github.com/edgargomero/analisis-resultados/internal/model"
	"github.com/edgargomero/analisis-resultados/internal/series"
	"github.com/edgargomero/analisis-resultados/internal/validate"
	fcotel "github.com/edgargomero/analisis-resultados/pkg/otel"
)

const tracerName = "forecast/pipeline"

// Config is the explicit configuration of one run, threaded through every
// stage. It is a value: a run never reads ambient state.
type Config struct {
	PrimaryMetric string                  `json:"primary_metric" mapstructure:"primary_metric"`
	Features      series.FeatureConfig    `json:"features" mapstructure:"features"`
	ARIMA         model.ARIMAConfig       `json:"arima" mapstructure:"arima"`
	Decompose     model.DecomposeConfig   `json:"decompose" mapstructure:"decompose"`
	Bagged        model.TreeConfig        `json:"bagged" mapstructure:"bagged"`
	Boosted       model.TreeConfig        `json:"boosted" mapstructure:"boosted"`
	Validation    validate.Config         `json:"validation" mapstructure:"validation"`
	Compose       compose.Config          `json:"compose" mapstructure:"compose"`
	Staffing      compose.StaffingConfig  `json:"staffing" mapstructure:"staffing"`
	Alerts        alert.Config            `json:"alerts" mapstructure:"alerts"`
	Targets       alert.Targets           `json:"targets" mapstructure:"targets"`
}

// DefaultConfig assembles the production defaults of every stage.
func DefaultConfig() Config {
	return Config{
		PrimaryMetric: "mae",
		Features:      series.DefaultFeatureConfig(),
		ARIMA:         model.DefaultARIMAConfig(),
		Decompose:     model.DefaultDecomposeConfig(),
		Bagged:        model.DefaultBaggedConfig(),
		Boosted:       model.DefaultBoostedConfig(),
		Validation:    validate.DefaultConfig(),
		Compose:       compose.DefaultConfig(),
		Staffing:      compose.DefaultStaffingConfig(),
		Alerts:        alert.DefaultConfig(),
		Targets:       alert.DefaultTargets(),
	}
}

// Summary is the executive summary of one run.
type Summary struct {
	TotalForecast float64        `json:"total_forecast"`
	MeanForecast  float64        `json:"mean_forecast"`
	PeakDate      time.Time      `json:"peak_date"`
	PeakValue     float64        `json:"peak_value"`
	AlertCounts   map[string]int `json:"alert_counts"` // by severity
}

// Diagnostic is the structured self-description of one run.
type Diagnostic struct {
	RunID          string              `json:"run_id"`
	StartedAt      time.Time           `json:"started_at"`
	CompletedAt    time.Time           `json:"completed_at"`
	RuntimeSeconds float64             `json:"runtime_seconds"`
	HistoryPoints  int                 `json:"history_points"`
	AdaptersUsed   []string            `json:"adapters_used"`
	AdaptersFailed map[string]string   `json:"adapters_failed,omitempty"`
	Backtest       eval.Metrics        `json:"backtest"`
	TargetChecks   []alert.TargetCheck `json:"target_checks"`
	ApproxBounds   bool                `json:"approx_bounds"`
	Summary        Summary             `json:"summary"`
}

// Result is the complete output of one successful run.
type Result struct {
	RunID      string                `json:"run_id"`
	Forecast   *compose.Forecast     `json:"forecast"`
	Staffing   []compose.StaffingDay `json:"staffing"`
	Weights    ensemble.Weights      `json:"weights"`
	Folds      []validate.Fold       `json:"folds"`
	Alerts     []alert.Event         `json:"alerts"`
	Diagnostic Diagnostic            `json:"diagnostic"`
}

// Adapters builds the model zoo in its fixed diagnostic order.
func Adapters(cfg Config) []model.Adapter {
	return []model.Adapter{
		model.NewARIMA(cfg.ARIMA),
		model.NewDecompose(cfg.Decompose),
		model.NewBaggedTrees(cfg.Bagged),
		model.NewBoostedTrees(cfg.Boosted),
	}
}

// Run executes one batch run end to end.
func Run(ctx context.Context, log zerolog.Logger, obs []series.Observation, cal series.Calendar, cfg Config) (*Result, error) {
	runID := uuid.NewString()
	log = log.With().Str("run_id", runID).Logger()
	started := time.Now()
	metrics.RunsStarted.Inc()

	res, err := run(ctx, log, obs, cal, cfg, runID, started)
	if err != nil {
		metrics.RunsFailed.Inc()
		log.Error().Err(err).Msg("pipeline run aborted")
		return nil, err
	}
	metrics.RunsCompleted.Inc()
	metrics.RunDuration.Observe(time.Since(started).Seconds())
	log.Info().
		Float64("backtest_mae", res.Diagnostic.Backtest.MAE).
		Strs("adapters_used", res.Diagnostic.AdaptersUsed).
		Int("alerts", len(res.Alerts)).
		Dur("runtime", time.Since(started)).
		Msg("pipeline run completed")
	return res, nil
}

func run(ctx context.Context, log zerolog.Logger, obs []series.Observation, cal series.Calendar, cfg Config, runID string, started time.Time) (*Result, error) {
	tracer := otel.Tracer(tracerName)
	runAttrs := trace.WithAttributes(fcotel.AttrRunID.String(runID))

	ctx, span := tracer.Start(ctx, "pipeline.build", runAttrs)
	frame, err := series.Build(obs, cal, cfg.Features)
	span.End()
	if err != nil {
		return nil, err
	}
	log.Debug().Int("points", frame.Len()).Msg("dataset built")

	adapters := Adapters(cfg)

	ctx, span = tracer.Start(ctx, "pipeline.validate", runAttrs,
		trace.WithAttributes(attribute.Int("adapters", len(adapters))))
	folds, err := validate.Run(ctx, log, frame, adapters, cfg.Validation)
	span.End()
	if err != nil {
		return nil, err
	}

	// An adapter with zero successful folds is excluded; every adapter
	// failing aborts the run with the per-adapter reasons.
	succeeded := map[string]bool{}
	failures := map[string]string{}
	for _, f := range folds {
		if f.OK() {
			succeeded[f.Adapter] = true
		} else if _, seen := failures[f.Adapter]; !seen {
			failures[f.Adapter] = f.Err
		}
	}
	failed := map[string]string{}
	for name, reason := range failures {
		if !succeeded[name] {
			failed[name] = reason
		}
	}
	if len(failed) == len(adapters) {
		return nil, &fcerr.EnsembleUnavailableError{Failures: failed}
	}

	_, span = tracer.Start(ctx, "pipeline.optimize", runAttrs)
	weights, err := ensemble.Optimize(folds, cfg.PrimaryMetric)
	span.End()
	if err != nil {
		return nil, err
	}
	backtest, err := ensemble.Backtest(folds, weights)
	if err != nil {
		return nil, err
	}
	metrics.BacktestMAE.Set(backtest.MAE)

	ctx, span = tracer.Start(ctx, "pipeline.compose", runAttrs,
		trace.WithAttributes(fcotel.AttrHorizon.Int(cfg.Compose.HorizonDays)))
	fc, err := compose.Compose(ctx, log, frame, cal, adapters, weights, cfg.Compose)
	span.End()
	if err != nil {
		return nil, err
	}

	_, span = tracer.Start(ctx, "pipeline.evaluate", runAttrs)
	events := alert.Evaluate(frame, fc, cfg.Alerts)
	checks := alert.CheckTargets(backtest, cfg.Targets)
	span.End()

	staffing := compose.StaffingPlan(fc, cfg.Staffing)

	total, meanFc, peak := fc.Totals()
	counts := map[string]int{}
	for _, e := range events {
		counts[string(e.Severity)]++
	}
	approx := false
	for _, e := range fc.Entries {
		if e.ApproxBounds {
			approx = true
			break
		}
	}

	completed := time.Now()
	return &Result{
		RunID:    runID,
		Forecast: fc,
		Staffing: staffing,
		Weights:  weights,
		Folds:    folds,
		Alerts:   events,
		Diagnostic: Diagnostic{
			RunID:          runID,
			StartedAt:      started.UTC(),
			CompletedAt:    completed.UTC(),
			RuntimeSeconds: completed.Sub(started).Seconds(),
			HistoryPoints:  frame.Len(),
			AdaptersUsed:   weights.Active(),
			AdaptersFailed: failed,
			Backtest:       backtest,
			TargetChecks:   checks,
			ApproxBounds:   approx,
			Summary: Summary{
				TotalForecast: total,
				MeanForecast:  meanFc,
				PeakDate:      peak.Date,
				PeakValue:     peak.Point,
				AlertCounts:   counts,
			},
		},
	}, nil
}
