package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/edgargomero/analisis-resultados/internal/alert"
	"github.com/edgargomero/analisis-resultados/internal/config"
	"github.com/edgargomero/analisis-resultados/internal/pipeline"
	"github.com/edgargomero/analisis-resultados/internal/store"
)

func testServeConfig() config.ServeConfig {
	return config.ServeConfig{
		Addr:      ":0",
		RateLimit: 1000,
		RateBurst: 1000,
		CacheSize: 8,
		CacheTTL:  time.Minute,
	}
}

func newTestAPI(t *testing.T, seed *pipeline.Result) http.Handler {
	t.Helper()
	st, err := store.NewMemory("", 10)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	if seed != nil {
		if err := st.SaveRun(context.Background(), seed); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	a, err := newAPI(st, zerolog.Nop(), testServeConfig())
	if err != nil {
		t.Fatalf("newAPI: %v", err)
	}
	return a.routes()
}

func seedResult() *pipeline.Result {
	return &pipeline.Result{
		RunID: "run-123",
		Alerts: []alert.Event{
			{Kind: alert.KindSpike, Severity: alert.SeverityWarning},
		},
		Diagnostic: pipeline.Diagnostic{
			RunID:        "run-123",
			AdaptersUsed: []string{"arima", "seasonal"},
			CompletedAt:  time.Now().UTC(),
		},
	}
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestAPI(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
}

func TestLatestForecastNotFound(t *testing.T) {
	h := newTestAPI(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/forecast/latest", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("empty store status = %d, want 404", rec.Code)
	}
}

func TestLatestForecastAndDiagnostics(t *testing.T) {
	h := newTestAPI(t, seedResult())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/forecast/latest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("forecast status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["run_id"] != "run-123" {
		t.Errorf("run_id = %v", body["run_id"])
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/diagnostics/latest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("diagnostics status = %d", rec.Code)
	}
}

func TestRunByID(t *testing.T) {
	h := newTestAPI(t, seedResult())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/run-123", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("run status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing run status = %d, want 404", rec.Code)
	}
}

func TestAlertsEndpoint(t *testing.T) {
	h := newTestAPI(t, seedResult())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/alerts?limit=10", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("alerts status = %d", rec.Code)
	}
	var body struct {
		Alerts []alert.Event `json:"alerts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Alerts) != 1 {
		t.Errorf("alerts = %d, want 1", len(body.Alerts))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/alerts?limit=zero", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad limit status = %d, want 400", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	st, err := store.NewMemory("", 10)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	cfg := testServeConfig()
	cfg.RateLimit = 1
	cfg.RateBurst = 1
	a, err := newAPI(st, zerolog.Nop(), cfg)
	if err != nil {
		t.Fatalf("newAPI: %v", err)
	}
	h := a.routes()

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/health", nil))
	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/health", nil))
	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Errorf("rate limit statuses = %d, %d; want 200, 429", first.Code, second.Code)
	}
}
