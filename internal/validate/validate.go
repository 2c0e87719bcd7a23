// Package validate implements rolling-origin cross-validation: train/test
// origins advance forward through the trailing window of history, every
// adapter is fitted and scored per fold, and the resulting immutable Fold
// records feed the ensemble weight optimizer.
package validate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/edgargomero/analisis-resultados/internal/eval"
	"github.com/edgargomero/analisis-resultados/internal/fcerr"
	"github.com/edgargomero/analisis-resultados/internal/metrics"
	"github.com/edgargomero/analisis-resultados/internal/model"
	"github.com/edgargomero/analisis-resultados/internal/series"
	fcotel "github.com/edgargomero/analisis-resultados/pkg/otel"
)

const tracerName = "forecast/validate"

// Config tunes the rolling-origin protocol.
type Config struct {
	Window     int           `json:"window" mapstructure:"window"`           // trailing periods the origins sweep over
	Step       int           `json:"step" mapstructure:"step"`               // periods between consecutive origins
	Horizon    int           `json:"horizon" mapstructure:"horizon"`         // test periods held out after each origin
	Workers    int           `json:"workers" mapstructure:"workers"`         // concurrent (fold, adapter) fits
	FitTimeout time.Duration `json:"fit_timeout" mapstructure:"fit_timeout"` // wall-clock budget per fit
}

// DefaultConfig covers the most recent ~90 periods with weekly origin
// steps and a 28-period test horizon.
func DefaultConfig() Config {
	return Config{Window: 90, Step: 7, Horizon: 28, Workers: 4, FitTimeout: 2 * time.Minute}
}

// Fold is one immutable (fold, adapter) validation record. A failed fit
// keeps its slot with Err set and zero metrics; other adapters in the same
// fold are unaffected.
type Fold struct {
	Index       int          `json:"index"`
	Adapter     string       `json:"adapter"`
	TrainStart  time.Time    `json:"train_start"`
	TrainEnd    time.Time    `json:"train_end"`
	TestStart   time.Time    `json:"test_start"`
	TestEnd     time.Time    `json:"test_end"`
	Metrics     eval.Metrics `json:"metrics"`
	Predictions []float64    `json:"predictions,omitempty"` // test-window points, gap rows excluded
	Actuals     []float64    `json:"actuals,omitempty"`
	Err         string       `json:"error,omitempty"`
}

// OK reports whether the fold produced usable metrics.
func (f Fold) OK() bool { return f.Err == "" }

// origins returns the train-end indices of each fold, oldest first. The
// earliest origin still leaves minTrain periods of training data.
func origins(n int, cfg Config, minTrain int) []int {
	first := n - cfg.Window
	if first < minTrain {
		first = minTrain
	}
	last := n - cfg.Horizon
	var out []int
	for o := first; o <= last; o += cfg.Step {
		out = append(out, o)
	}
	return out
}

// Run executes the full protocol over the frame. (fold, adapter) fits run
// on a bounded worker pool; each fit writes only its private Fold slot, so
// no locking is needed beyond the pool itself. Returns folds ordered by
// (fold index, adapter position).
func Run(ctx context.Context, log zerolog.Logger, frame *series.Frame, adapters []model.Adapter, cfg Config) ([]Fold, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters configured")
	}
	minTrain := 2 * frame.Config.MaxLag()
	origs := origins(frame.Len(), cfg, minTrain)
	if len(origs) == 0 {
		return nil, &fcerr.InsufficientHistoryError{
			Have: frame.Len(),
			Need: minTrain + cfg.Horizon,
		}
	}

	folds := make([]Fold, len(origs)*len(adapters))
	type job struct{ foldIdx, adapterIdx int }
	jobs := make(chan job)

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				slot := j.foldIdx*len(adapters) + j.adapterIdx
				folds[slot] = runFold(ctx, log, frame, adapters[j.adapterIdx], j.foldIdx, origs[j.foldIdx], cfg)
			}
		}()
	}
	for fi := range origs {
		for ai := range adapters {
			jobs <- job{fi, ai}
		}
	}
	close(jobs)
	wg.Wait()

	return folds, nil
}

// runFold fits one adapter on one fold's training window and scores it
// over the test horizon.
func runFold(ctx context.Context, log zerolog.Logger, frame *series.Frame, a model.Adapter, foldIdx, origin int, cfg Config) Fold {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "validate.fit",
		trace.WithAttributes(
			fcotel.AttrAdapter.String(a.Name()),
			fcotel.AttrFold.Int(foldIdx),
		))
	defer span.End()

	train := frame.Slice(0, origin)
	testEnd := origin + cfg.Horizon
	if testEnd > frame.Len() {
		testEnd = frame.Len()
	}
	testPts := frame.Points[origin:testEnd]

	fold := Fold{
		Index:      foldIdx,
		Adapter:    a.Name(),
		TrainStart: train.Points[0].Date,
		TrainEnd:   train.LastDate(),
		TestStart:  testPts[0].Date,
		TestEnd:    testPts[len(testPts)-1].Date,
	}

	start := time.Now()
	fit, err := FitWithTimeout(ctx, a, train, cfg.FitTimeout)
	metrics.FoldFitDuration.WithLabelValues(a.Name()).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AdapterFitFailures.WithLabelValues(a.Name()).Inc()
		log.Warn().
			Str("adapter", a.Name()).
			Int("fold", foldIdx).
			Int("train_points", train.Len()).
			Err(err).
			Msg("adapter excluded from fold")
		fold.Err = err.Error()
		return fold
	}

	preds := fit.Predict(model.StepsFromPoints(testPts))
	var actual, predicted []float64
	for i, p := range testPts {
		if p.IsGap {
			continue
		}
		actual = append(actual, p.Observed)
		predicted = append(predicted, preds[i].Point)
	}
	m, err := eval.Compute(actual, predicted)
	if err != nil {
		fold.Err = fmt.Sprintf("score fold: %v", err)
		return fold
	}
	fold.Metrics = m
	fold.Predictions = predicted
	fold.Actuals = actual
	return fold
}

// FitWithTimeout enforces a per-fit wall-clock budget, wrapping failures
// in the adapter error taxonomy. The fit runs in its own goroutine with a
// deadline context; adapters observe the context between iterations, so an
// expired fit also stops burning CPU shortly after the timeout fires. The
// composer reuses this guard for its full-history refits.
func FitWithTimeout(ctx context.Context, a model.Adapter, train *series.Frame, timeout time.Duration) (model.Fit, error) {
	fitCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		fitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		fit model.Fit
		err error
	}
	done := make(chan result, 1)
	go func() {
		fit, err := a.Fit(fitCtx, train)
		done <- result{fit, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, &fcerr.ModelFitTimeout{Adapter: a.Name(), Timeout: timeout}
			}
			return nil, &fcerr.ModelFitError{Adapter: a.Name(), N: train.Len(), Err: r.err}
		}
		return r.fit, nil
	case <-fitCtx.Done():
		if errors.Is(fitCtx.Err(), context.DeadlineExceeded) {
			return nil, &fcerr.ModelFitTimeout{Adapter: a.Name(), Timeout: timeout}
		}
		return nil, fitCtx.Err()
	}
}
