// Package metrics defines the Prometheus instruments of the forecasting
// pipeline. All collectors are registered on the default registry via
// promauto and exposed by the serve command's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsStarted counts pipeline runs that began executing.
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fcast_runs_started_total",
		Help: "Forecast pipeline runs started.",
	})

	// RunsCompleted counts runs that produced a published forecast.
	RunsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fcast_runs_completed_total",
		Help: "Forecast pipeline runs completed successfully.",
	})

	// RunsFailed counts runs aborted by a fatal error.
	RunsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fcast_runs_failed_total",
		Help: "Forecast pipeline runs that aborted without publishing.",
	})

	// RunDuration observes end-to-end pipeline latency.
	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fcast_run_duration_seconds",
		Help:    "End-to-end pipeline run duration.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	// AdapterFitFailures counts excluded adapter fits by adapter name.
	AdapterFitFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fcast_adapter_fit_failures_total",
		Help: "Adapter fits excluded from a run, by adapter.",
	}, []string{"adapter"})

	// FoldFitDuration observes per-fold fit latency by adapter.
	FoldFitDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fcast_fold_fit_duration_seconds",
		Help:    "Validation fold fit duration, by adapter.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 16),
	}, []string{"adapter"})

	// AlertsEmitted counts alert events by severity tier.
	AlertsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fcast_alerts_emitted_total",
		Help: "Alert events emitted by the evaluator, by severity.",
	}, []string{"severity"})

	// BacktestMAE tracks the ensemble backtest MAE of the latest run.
	BacktestMAE = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fcast_backtest_mae",
		Help: "Ensemble backtest MAE of the most recent completed run.",
	})

	// APIRequests counts serve API requests by route and status class.
	APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fcast_api_requests_total",
		Help: "HTTP API requests, by route and status class.",
	}, []string{"route", "status"})
)
