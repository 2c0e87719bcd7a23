package alert

import (
	"testing"
	"time"

	"github.com/edgargomero/analisis-resultados/internal/compose"
	"github.com/edgargomero/analisis-resultados/internal/eval"
	"github.com/edgargomero/analisis-resultados/internal/series"
)

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func flatFrame(t *testing.T, n int, value float64, cal series.Calendar, mutate func([]series.Observation)) *series.Frame {
	t.Helper()
	start := day("2025-01-06")
	obs := make([]series.Observation, n)
	for i := range obs {
		obs[i] = series.Observation{Date: start.AddDate(0, 0, i), Value: value}
	}
	if mutate != nil {
		mutate(obs)
	}
	f, err := series.Build(obs, cal, series.DefaultFeatureConfig())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return f
}

func TestCheckTargets(t *testing.T) {
	tests := []struct {
		name    string
		metrics eval.Metrics
		pass    map[string]bool
	}{
		{
			name:    "all pass",
			metrics: eval.Metrics{MAE: 5, RMSE: 8, MAPE: 12},
			pass:    map[string]bool{"mae": true, "rmse": true, "mape": true},
		},
		{
			name:    "mae at target fails",
			metrics: eval.Metrics{MAE: 10, RMSE: 8, MAPE: 12},
			pass:    map[string]bool{"mae": false, "rmse": true, "mape": true},
		},
		{
			name:    "all fail",
			metrics: eval.Metrics{MAE: 30, RMSE: 40, MAPE: 80},
			pass:    map[string]bool{"mae": false, "rmse": false, "mape": false},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checks := CheckTargets(tt.metrics, DefaultTargets())
			if len(checks) != 3 {
				t.Fatalf("got %d checks, want 3", len(checks))
			}
			for _, c := range checks {
				if c.Pass != tt.pass[c.Metric] {
					t.Errorf("%s pass = %v, want %v (actual %.1f target %.1f)",
						c.Metric, c.Pass, tt.pass[c.Metric], c.Actual, c.Target)
				}
			}
		})
	}
}

func TestObservedSpikeCritical(t *testing.T) {
	// A single 5x spike on an ordinary day must raise severity >= warning.
	spikeDate := day("2025-01-06").AddDate(0, 0, 80)
	frame := flatFrame(t, 100, 100, nil, func(obs []series.Observation) {
		obs[80].Value = 500
	})

	events := Evaluate(frame, nil, DefaultConfig())
	var found *Event
	for i, e := range events {
		if e.Date.Equal(spikeDate) && e.Kind == KindSpike {
			found = &events[i]
		}
	}
	if found == nil {
		t.Fatalf("no spike event for %s, events: %+v", spikeDate, events)
	}
	if found.Severity != SeverityCritical {
		t.Errorf("5x spike severity = %s, want critical", found.Severity)
	}
	if found.Forecast {
		t.Errorf("observed spike flagged as forecast")
	}
}

func TestForecastSpikeTiers(t *testing.T) {
	frame := flatFrame(t, 100, 100, nil, nil)
	fc := &compose.Forecast{Entries: []compose.Entry{
		{Date: day("2025-04-21"), Point: 120, Lower: 115, Upper: 125}, // no spike
		{Date: day("2025-04-22"), Point: 170, Lower: 165, Upper: 175}, // >= 1.5x: warning
		{Date: day("2025-04-23"), Point: 300, Lower: 290, Upper: 310}, // >= 2.25x: critical
	}}

	events := Evaluate(frame, fc, DefaultConfig())
	bySev := map[Severity]int{}
	for _, e := range events {
		if e.Kind == KindSpike {
			bySev[e.Severity]++
		}
	}
	if bySev[SeverityWarning] != 1 || bySev[SeverityCritical] != 1 {
		t.Errorf("spike tiers = %v, want one warning and one critical", bySev)
	}
}

func TestLowDemandAndUncertaintyInfoAlerts(t *testing.T) {
	frame := flatFrame(t, 100, 100, nil, nil)
	fc := &compose.Forecast{Entries: []compose.Entry{
		{Date: day("2025-04-21"), Point: 10, Lower: 5, Upper: 15},    // low demand
		{Date: day("2025-04-22"), Point: 100, Lower: 40, Upper: 160}, // wide band
	}}

	events := Evaluate(frame, fc, DefaultConfig())
	kinds := map[string]Severity{}
	for _, e := range events {
		kinds[e.Kind] = e.Severity
	}
	if kinds[KindLowDemand] != SeverityInfo {
		t.Errorf("low-demand severity = %s, want info", kinds[KindLowDemand])
	}
	if kinds[KindUncertainty] != SeverityInfo {
		t.Errorf("uncertainty severity = %s, want info", kinds[KindUncertainty])
	}
}

func TestHolidayAnomaly(t *testing.T) {
	cal := series.MapCalendar{}
	// Historical civic holidays run at half demand.
	for i := 10; i < 100; i += 20 {
		cal.Add(day("2025-01-06").AddDate(0, 0, i), series.Holiday{Name: "Feriado", Category: series.CategoryCivic})
	}
	frame := flatFrame(t, 100, 100, cal, func(obs []series.Observation) {
		for i := 10; i < 100; i += 20 {
			obs[i].Value = 50
		}
	})

	futureHoliday := day("2025-04-21")
	fc := &compose.Forecast{Entries: []compose.Entry{
		{
			Date: futureHoliday, Point: 95, Lower: 90, Upper: 100,
			Step: series.HorizonStep{Date: futureHoliday, IsHoliday: true, Category: series.CategoryCivic},
		},
	}}

	events := Evaluate(frame, fc, DefaultConfig())
	var found bool
	for _, e := range events {
		if e.Kind == KindHolidayAnomaly {
			found = true
			if e.Severity != SeverityWarning {
				t.Errorf("holiday anomaly severity = %s, want warning", e.Severity)
			}
		}
	}
	if !found {
		t.Errorf("forecast at twice the historical holiday level raised no anomaly")
	}
}

func TestNoAlertsOnSteadyDemand(t *testing.T) {
	frame := flatFrame(t, 100, 100, nil, nil)
	fc := &compose.Forecast{Entries: []compose.Entry{
		{Date: day("2025-04-21"), Point: 102, Lower: 95, Upper: 109},
		{Date: day("2025-04-22"), Point: 98, Lower: 91, Upper: 105},
	}}
	if events := Evaluate(frame, fc, DefaultConfig()); len(events) != 0 {
		t.Errorf("steady demand raised %d events: %+v", len(events), events)
	}
}
