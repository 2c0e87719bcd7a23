package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edgargomero/analisis-resultados/internal/alert"
	"github.com/edgargomero/analisis-resultados/internal/pipeline"
)

// Postgres persists runs durably. Each run is one JSONB payload row plus
// denormalized alert rows for efficient alert queries; both are written in
// a single transaction so a run appears atomically or not at all.
type Postgres struct {
	pool *pgxpool.Pool
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS forecast_runs (
	run_id     TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	payload    JSONB NOT NULL
);
CREATE TABLE IF NOT EXISTS forecast_alerts (
	id       BIGSERIAL PRIMARY KEY,
	run_id   TEXT NOT NULL REFERENCES forecast_runs(run_id) ON DELETE CASCADE,
	date     DATE NOT NULL,
	kind     TEXT NOT NULL,
	severity TEXT NOT NULL,
	payload  JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS forecast_alerts_date_idx ON forecast_alerts (date DESC);
`

// NewPostgres connects, applies the schema, and returns the store.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

// SaveRun implements Store.
func (p *Postgres) SaveRun(ctx context.Context, res *pipeline.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO forecast_runs (run_id, created_at, payload) VALUES ($1, $2, $3)`,
		res.RunID, res.Diagnostic.CompletedAt, payload); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	for _, e := range res.Alerts {
		ep, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode alert: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO forecast_alerts (run_id, date, kind, severity, payload) VALUES ($1, $2, $3, $4, $5)`,
			res.RunID, e.Date, e.Kind, e.Severity, ep); err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// LatestRun implements Store.
func (p *Postgres) LatestRun(ctx context.Context) (*pipeline.Result, error) {
	return p.scanRun(p.pool.QueryRow(ctx,
		`SELECT payload FROM forecast_runs ORDER BY created_at DESC LIMIT 1`))
}

// GetRun implements Store.
func (p *Postgres) GetRun(ctx context.Context, id string) (*pipeline.Result, error) {
	return p.scanRun(p.pool.QueryRow(ctx,
		`SELECT payload FROM forecast_runs WHERE run_id = $1`, id))
}

func (p *Postgres) scanRun(row pgx.Row) (*pipeline.Result, error) {
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	var res pipeline.Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &res, nil
}

// ListAlerts implements Store.
func (p *Postgres) ListAlerts(ctx context.Context, limit int) ([]alert.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx,
		`SELECT payload FROM forecast_alerts ORDER BY date DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var out []alert.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		var e alert.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("decode alert: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close implements Store.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
