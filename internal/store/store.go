// Package store persists completed pipeline runs. Three backends share
// one interface: an in-memory store with optional JSON snapshots for
// single-node setups, Postgres for durable history, and Redis for the
// low-latency latest-forecast cache collaborators poll.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/edgargomero/analisis-resultados/internal/alert"
	"github.com/edgargomero/analisis-resultados/internal/pipeline"
)

// ErrNotFound is returned when no run matches the request.
var ErrNotFound = errors.New("store: run not found")

// Store persists completed runs. SaveRun is atomic: a partially written
// run is never observable through the read methods.
type Store interface {
	SaveRun(ctx context.Context, res *pipeline.Result) error
	LatestRun(ctx context.Context) (*pipeline.Result, error)
	GetRun(ctx context.Context, id string) (*pipeline.Result, error)
	ListAlerts(ctx context.Context, limit int) ([]alert.Event, error)
	Close() error
}

// Config selects and parameterizes the backend.
type Config struct {
	Backend       string `json:"backend" mapstructure:"backend"` // memory | postgres | redis
	SnapshotPath  string `json:"snapshot_path" mapstructure:"snapshot_path"`
	PostgresDSN   string `json:"postgres_dsn" mapstructure:"postgres_dsn"`
	RedisAddr     string `json:"redis_addr" mapstructure:"redis_addr"`
	RedisPassword string `json:"redis_password" mapstructure:"redis_password"`
	RedisDB       int    `json:"redis_db" mapstructure:"redis_db"`
	KeepRuns      int    `json:"keep_runs" mapstructure:"keep_runs"` // retained runs, memory backend
}

// DefaultConfig keeps runs in memory without snapshots.
func DefaultConfig() Config {
	return Config{Backend: "memory", KeepRuns: 30}
}

// New builds the configured backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemory(cfg.SnapshotPath, cfg.KeepRuns)
	case "postgres":
		return NewPostgres(ctx, cfg.PostgresDSN)
	case "redis":
		return NewRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
