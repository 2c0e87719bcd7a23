package validate

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgargomero/analisis-resultados/internal/fcerr"
	"github.com/edgargomero/analisis-resultados/internal/model"
	"github.com/edgargomero/analisis-resultados/internal/series"
)

// constantAdapter always predicts a fixed value.
type constantAdapter struct {
	name  string
	value float64
}

func (a *constantAdapter) Name() string { return a.name }

func (a *constantAdapter) Fit(ctx context.Context, train *series.Frame) (model.Fit, error) {
	return constantFit(a.value), nil
}

type constantFit float64

func (f constantFit) Predict(steps []series.HorizonStep) []model.Prediction {
	out := make([]model.Prediction, len(steps))
	for i, s := range steps {
		out[i] = model.Prediction{Date: s.Date, Point: float64(f), Lower: float64(f), Upper: float64(f)}
	}
	return out
}

// failingAdapter never converges.
type failingAdapter struct{}

func (a *failingAdapter) Name() string { return "failing" }

func (a *failingAdapter) Fit(ctx context.Context, train *series.Frame) (model.Fit, error) {
	return nil, errors.New("singular input")
}

// slowAdapter blocks until its context is cancelled.
type slowAdapter struct{}

func (a *slowAdapter) Name() string { return "slow" }

func (a *slowAdapter) Fit(ctx context.Context, train *series.Frame) (model.Fit, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func flatFrame(t *testing.T, n int, value float64) *series.Frame {
	t.Helper()
	start, _ := time.Parse("2006-01-02", "2025-01-06")
	obs := make([]series.Observation, n)
	for i := range obs {
		obs[i] = series.Observation{Date: start.AddDate(0, 0, i), Value: value}
	}
	f, err := series.Build(obs, nil, series.DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return f
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Workers = 2
	cfg.FitTimeout = 5 * time.Second
	return cfg
}

func TestFoldsOrderedAndDistinct(t *testing.T) {
	frame := flatFrame(t, 200, 100)
	adapters := []model.Adapter{&constantAdapter{name: "const", value: 100}}

	folds, err := Run(context.Background(), zerolog.Nop(), frame, adapters, testConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(folds) < 2 {
		t.Fatalf("got %d folds, want several", len(folds))
	}
	for i := 1; i < len(folds); i++ {
		if !folds[i-1].TestStart.Before(folds[i].TestStart) {
			t.Errorf("fold %d test start %s not after fold %d test start %s",
				i, folds[i].TestStart, i-1, folds[i-1].TestStart)
		}
	}
	for _, f := range folds {
		if !f.OK() {
			t.Errorf("fold %d failed: %s", f.Index, f.Err)
		}
		if f.Metrics.MAE != 0 {
			t.Errorf("perfect adapter MAE = %v, want 0", f.Metrics.MAE)
		}
		if len(f.Predictions) != len(f.Actuals) {
			t.Errorf("fold %d prediction/actual length mismatch", f.Index)
		}
		if !f.TrainEnd.Before(f.TestStart) {
			t.Errorf("fold %d train end %s overlaps test start %s", f.Index, f.TrainEnd, f.TestStart)
		}
	}
}

func TestFailedAdapterRecordedNotFatal(t *testing.T) {
	frame := flatFrame(t, 200, 100)
	adapters := []model.Adapter{
		&constantAdapter{name: "const", value: 100},
		&failingAdapter{},
	}

	folds, err := Run(context.Background(), zerolog.Nop(), frame, adapters, testConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	var okConst, failedFailing int
	for _, f := range folds {
		switch f.Adapter {
		case "const":
			if f.OK() {
				okConst++
			}
		case "failing":
			if !f.OK() {
				failedFailing++
				if !strings.Contains(f.Err, "singular input") {
					t.Errorf("failure reason lost: %q", f.Err)
				}
			}
		}
	}
	if okConst == 0 {
		t.Errorf("healthy adapter has no successful folds")
	}
	if failedFailing == 0 {
		t.Errorf("failing adapter has no recorded failures")
	}
	if okConst != failedFailing {
		t.Errorf("fold counts diverge: %d ok vs %d failed", okConst, failedFailing)
	}
}

func TestFitTimeout(t *testing.T) {
	frame := flatFrame(t, 120, 100)
	cfg := testConfig()
	cfg.FitTimeout = 50 * time.Millisecond

	folds, err := Run(context.Background(), zerolog.Nop(), frame, []model.Adapter{&slowAdapter{}}, cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, f := range folds {
		if f.OK() {
			t.Fatalf("slow adapter fold succeeded")
		}
		if !strings.Contains(f.Err, "timeout") {
			t.Errorf("timeout not reported: %q", f.Err)
		}
	}
}

func TestInsufficientHistoryForFolds(t *testing.T) {
	frame := flatFrame(t, 60, 100) // enough for features, not for window+horizon
	cfg := testConfig()
	cfg.Window = 90
	cfg.Horizon = 28

	// 2*max_lag = 56 min train, +28 horizon needs 84 > 60.
	_, err := Run(context.Background(), zerolog.Nop(), frame, []model.Adapter{&constantAdapter{name: "c", value: 1}}, cfg)
	var ihe *fcerr.InsufficientHistoryError
	if !errors.As(err, &ihe) {
		t.Fatalf("want InsufficientHistoryError, got %v", err)
	}
}
