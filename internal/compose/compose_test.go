package compose

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgargomero/analisis-resultados/internal/ensemble"
	"github.com/edgargomero/analisis-resultados/internal/model"
	"github.com/edgargomero/analisis-resultados/internal/series"
)

// bandAdapter predicts a fixed point with a fixed symmetric band.
type bandAdapter struct {
	name  string
	point float64
	half  float64
	fail  bool
}

func (a *bandAdapter) Name() string { return a.name }

func (a *bandAdapter) Fit(ctx context.Context, train *series.Frame) (model.Fit, error) {
	if a.fail {
		return nil, errors.New("did not converge")
	}
	return &bandFit{a.point, a.half}, nil
}

type bandFit struct{ point, half float64 }

func (f *bandFit) Predict(steps []series.HorizonStep) []model.Prediction {
	out := make([]model.Prediction, len(steps))
	for i, s := range steps {
		out[i] = model.Prediction{Date: s.Date, Point: f.point, Lower: f.point - f.half, Upper: f.point + f.half}
	}
	return out
}

func testFrame(t *testing.T) *series.Frame {
	t.Helper()
	start, _ := time.Parse("2006-01-02", "2025-01-06")
	obs := make([]series.Observation, 120)
	for i := range obs {
		obs[i] = series.Observation{Date: start.AddDate(0, 0, i), Value: 100}
	}
	f, err := series.Build(obs, nil, series.DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return f
}

func TestComposeWeightedPointsAndEnvelopeBounds(t *testing.T) {
	frame := testFrame(t)
	adapters := []model.Adapter{
		&bandAdapter{name: "narrow", point: 100, half: 5},
		&bandAdapter{name: "wide", point: 120, half: 30},
	}
	w := ensemble.Weights{"narrow": 0.75, "wide": 0.25}

	fc, err := Compose(context.Background(), zerolog.Nop(), frame, nil, adapters, w, DefaultConfig())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if len(fc.Entries) != 28 {
		t.Fatalf("got %d entries, want 28", len(fc.Entries))
	}
	e := fc.Entries[0]
	if want := 0.75*100 + 0.25*120; math.Abs(e.Point-want) > 1e-9 {
		t.Errorf("point = %v, want %v", e.Point, want)
	}
	// Envelope: min of lowers, max of uppers, not a weighted average.
	if e.Lower != 90 || e.Upper != 150 {
		t.Errorf("bounds = [%v, %v], want [90, 150]", e.Lower, e.Upper)
	}
	if len(e.PerModel) != 2 {
		t.Errorf("per-model breakdown has %d entries, want 2", len(e.PerModel))
	}
	// Monday–Saturday horizon: no Sundays.
	for _, e := range fc.Entries {
		if series.DayOfWeek(e.Date) == 6 {
			t.Errorf("Sunday in horizon: %s", e.Date)
		}
	}
}

func TestComposeSingleSurvivorMatchesExactly(t *testing.T) {
	frame := testFrame(t)
	adapters := []model.Adapter{&bandAdapter{name: "only", point: 80, half: 10}}
	w := ensemble.Weights{"only": 1}

	fc, err := Compose(context.Background(), zerolog.Nop(), frame, nil, adapters, w, DefaultConfig())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	for _, e := range fc.Entries {
		if e.Point != 80 || e.Lower != 70 || e.Upper != 90 {
			t.Fatalf("entry %s = %+v, want exact single-model forecast", e.Date, e)
		}
	}
}

func TestComposeRefitFailureRenormalizes(t *testing.T) {
	frame := testFrame(t)
	adapters := []model.Adapter{
		&bandAdapter{name: "good", point: 100, half: 5},
		&bandAdapter{name: "flaky", point: 500, half: 5, fail: true},
	}
	w := ensemble.Weights{"good": 0.5, "flaky": 0.5}

	fc, err := Compose(context.Background(), zerolog.Nop(), frame, nil, adapters, w, DefaultConfig())
	if err != nil {
		t.Fatalf("Compose: %v", err)
	}
	if fc.Entries[0].Point != 100 {
		t.Errorf("point = %v, want survivor's 100", fc.Entries[0].Point)
	}

	adapters[0].(*bandAdapter).fail = true
	if _, err := Compose(context.Background(), zerolog.Nop(), frame, nil, adapters, w, DefaultConfig()); err == nil {
		t.Errorf("want error when every refit fails")
	}
}

func TestStaffingPlan(t *testing.T) {
	fc := &Forecast{Entries: []Entry{
		{
			Date: mustDay("2025-05-05"), Point: 100, Lower: 60, Upper: 170, // a Monday
			Step: series.HorizonStep{DayOfWeek: 0},
		},
		{
			Date: mustDay("2025-05-10"), Point: 4, Lower: 0, Upper: 10, // a Saturday
			Step: series.HorizonStep{DayOfWeek: 5},
		},
	}}
	plan := StaffingPlan(fc, DefaultStaffingConfig())
	if plan[0].MinAgents != 8 || plan[0].OptimalAgents != 13 || plan[0].MaxAgents != 22 {
		t.Errorf("monday plan = %+v, want 8/13/22", plan[0])
	}
	if plan[0].DayType != "high_traffic" {
		t.Errorf("monday day type = %s", plan[0].DayType)
	}
	// Headcount never drops below the floor even on tiny forecasts.
	if plan[1].MinAgents != 1 {
		t.Errorf("saturday min agents = %d, want floor 1", plan[1].MinAgents)
	}
	if plan[1].DayType != "reduced_traffic" {
		t.Errorf("saturday day type = %s", plan[1].DayType)
	}
}

func TestForecastTotals(t *testing.T) {
	fc := &Forecast{Entries: []Entry{
		{Date: mustDay("2025-05-05"), Point: 100},
		{Date: mustDay("2025-05-06"), Point: 200},
		{Date: mustDay("2025-05-07"), Point: 150},
	}}
	total, mean, peak := fc.Totals()
	if total != 450 || mean != 150 {
		t.Errorf("totals = %v/%v, want 450/150", total, mean)
	}
	if !peak.Date.Equal(mustDay("2025-05-06")) {
		t.Errorf("peak = %s, want 2025-05-06", peak.Date)
	}
}

func mustDay(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}
