package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/edgargomero/analisis-resultados/internal/cache"
	"github.com/edgargomero/analisis-resultados/internal/config"
	"github.com/edgargomero/analisis-resultados/internal/metrics"
	"github.com/edgargomero/analisis-resultados/internal/store"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Expose the latest persisted forecast results over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := setup(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			st, err := store.New(ctx, cfg.Store)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			api, err := newAPI(st, log, cfg.Serve)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:         cfg.Serve.Addr,
				Handler:      api.routes(),
				ReadTimeout:  10 * time.Second,
				WriteTimeout: 30 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Serve.Addr).Msg("results API listening")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Serve.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

type api struct {
	store   store.Store
	log     zerolog.Logger
	limiter *rate.Limiter
	cache   *cache.TTLCache[string, []byte]
}

func newAPI(st store.Store, log zerolog.Logger, cfg config.ServeConfig) (*api, error) {
	c, err := cache.New[string, []byte](cfg.CacheSize, cfg.CacheTTL)
	if err != nil {
		return nil, fmt.Errorf("build response cache: %w", err)
	}
	return &api{
		store:   st,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
		cache:   c,
	}, nil
}

func (a *api) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", a.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/forecast/latest", a.cached("forecast_latest", a.latestForecast))
	mux.HandleFunc("GET /v1/diagnostics/latest", a.cached("diagnostics_latest", a.latestDiagnostics))
	mux.HandleFunc("GET /v1/alerts", a.handleAlerts)
	mux.HandleFunc("GET /v1/runs/{id}", a.handleRun)
	return a.withRateLimit(mux)
}

func (a *api) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.limiter.Allow() {
			metrics.APIRequests.WithLabelValues(r.URL.Path, "429").Inc()
			http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *api) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// cached serves a handler's payload from the response cache, so dashboard
// polling does not re-encode an unchanged run on every request.
type payloadFunc func(r *http.Request) (any, error)

func (a *api) cached(key string, fn payloadFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if body, ok := a.cache.Get(key); ok {
			metrics.APIRequests.WithLabelValues(r.URL.Path, "200").Inc()
			w.Header().Set("Content-Type", "application/json")
			w.Write(body)
			return
		}
		payload, err := fn(r)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		body, err := json.Marshal(payload)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		a.cache.Set(key, body)
		metrics.APIRequests.WithLabelValues(r.URL.Path, "200").Inc()
		w.Header().Set("Content-Type", "application/json")
		w.Write(body)
	}
}

func (a *api) latestForecast(r *http.Request) (any, error) {
	res, err := a.store.LatestRun(r.Context())
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"run_id":   res.RunID,
		"forecast": res.Forecast,
		"staffing": res.Staffing,
		"weights":  res.Weights,
	}, nil
}

func (a *api) latestDiagnostics(r *http.Request) (any, error) {
	res, err := a.store.LatestRun(r.Context())
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"diagnostic": res.Diagnostic,
		"folds":      res.Folds,
	}, nil
}

func (a *api) handleAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			a.writeJSON(w, r, http.StatusBadRequest, map[string]string{"error": "invalid limit"})
			return
		}
		limit = n
	}
	alerts, err := a.store.ListAlerts(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, r, http.StatusOK, map[string]any{"alerts": alerts})
}

func (a *api) handleRun(w http.ResponseWriter, r *http.Request) {
	res, err := a.store.GetRun(r.Context(), r.PathValue("id"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	a.writeJSON(w, r, http.StatusOK, res)
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		a.writeJSON(w, r, http.StatusNotFound, map[string]string{"error": "no completed run available"})
		return
	}
	a.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	a.writeJSON(w, r, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func (a *api) writeJSON(w http.ResponseWriter, r *http.Request, status int, payload any) {
	metrics.APIRequests.WithLabelValues(r.URL.Path, strconv.Itoa(status)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.log.Error().Err(err).Msg("encode response")
	}
}
