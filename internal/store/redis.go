package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/edgargomero/analisis-resultados/internal/alert"
	"github.com/edgargomero/analisis-resultados/internal/pipeline"
)

const (
	redisLatestKey = "forecast:latest"
	redisRunKey    = "forecast:run:"
	redisAlertsKey = "forecast:alerts"
	redisAlertsCap = 500
)

// Redis keeps the latest published forecast (and a bounded alert log)
// where polling collaborators can read it cheaply. It is a cache-flavored
// backend, not an archive: old runs expire from the alert log but run
// payloads are kept per run id.
type Redis struct {
	client *redis.Client
}

// NewRedis connects and verifies the server is reachable.
func NewRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// SaveRun implements Store. The run payload, latest pointer, and alert
// log entries go through one pipeline so readers never observe a partial
// publish.
func (r *Redis) SaveRun(ctx context.Context, res *pipeline.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode run: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, redisRunKey+res.RunID, payload, 0)
	pipe.Set(ctx, redisLatestKey, payload, 0)
	for _, e := range res.Alerts {
		ep, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("encode alert: %w", err)
		}
		pipe.LPush(ctx, redisAlertsKey, ep)
	}
	pipe.LTrim(ctx, redisAlertsKey, 0, redisAlertsCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish run: %w", err)
	}
	return nil
}

// LatestRun implements Store.
func (r *Redis) LatestRun(ctx context.Context) (*pipeline.Result, error) {
	return r.get(ctx, redisLatestKey)
}

// GetRun implements Store.
func (r *Redis) GetRun(ctx context.Context, id string) (*pipeline.Result, error) {
	return r.get(ctx, redisRunKey+id)
}

func (r *Redis) get(ctx context.Context, key string) (*pipeline.Result, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	var res pipeline.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return &res, nil
}

// ListAlerts implements Store.
func (r *Redis) ListAlerts(ctx context.Context, limit int) ([]alert.Event, error) {
	if limit <= 0 || limit > redisAlertsCap {
		limit = redisAlertsCap
	}
	items, err := r.client.LRange(ctx, redisAlertsKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("range alerts: %w", err)
	}
	out := make([]alert.Event, 0, len(items))
	for _, item := range items {
		var e alert.Event
		if err := json.Unmarshal([]byte(item), &e); err != nil {
			return nil, fmt.Errorf("decode alert: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Close implements Store.
func (r *Redis) Close() error { return r.client.Close() }
