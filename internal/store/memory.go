package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/edgargomero/analisis-resultados/internal/alert"
	"github.com/edgargomero/analisis-resultados/internal/pipeline"
)

// Memory keeps completed runs in process memory, optionally snapshotting
// to a JSON file after every save so a restart resumes with history.
type Memory struct {
	mu       sync.RWMutex
	runs     []*pipeline.Result // oldest first
	byID     map[string]*pipeline.Result
	path     string
	keepRuns int
}

type snapshot struct {
	Runs []*pipeline.Result `json:"runs"`
}

// NewMemory builds the in-memory store, loading the snapshot file if one
// exists at path (empty path disables snapshots).
func NewMemory(path string, keepRuns int) (*Memory, error) {
	if keepRuns < 1 {
		keepRuns = 1
	}
	m := &Memory{byID: map[string]*pipeline.Result{}, path: path, keepRuns: keepRuns}
	if path == "" {
		return m, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	m.runs = snap.Runs
	for _, r := range m.runs {
		m.byID[r.RunID] = r
	}
	return m, nil
}

// SaveRun implements Store.
func (m *Memory) SaveRun(ctx context.Context, res *pipeline.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, res)
	m.byID[res.RunID] = res
	for len(m.runs) > m.keepRuns {
		delete(m.byID, m.runs[0].RunID)
		m.runs = m.runs[1:]
	}
	return m.persistLocked()
}

// persistLocked writes the snapshot via a temp file and rename so a crash
// mid-write never corrupts the previous snapshot.
func (m *Memory) persistLocked() error {
	if m.path == "" {
		return nil
	}
	data, err := json.Marshal(snapshot{Runs: m.runs})
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// LatestRun implements Store.
func (m *Memory) LatestRun(ctx context.Context) (*pipeline.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.runs) == 0 {
		return nil, ErrNotFound
	}
	return m.runs[len(m.runs)-1], nil
}

// GetRun implements Store.
func (m *Memory) GetRun(ctx context.Context, id string) (*pipeline.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

// ListAlerts implements Store: newest runs' alerts first, capped at limit.
func (m *Memory) ListAlerts(ctx context.Context, limit int) ([]alert.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []alert.Event
	for i := len(m.runs) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		for _, e := range m.runs[i].Alerts {
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
