// Package fcerr defines the error taxonomy of the forecasting pipeline.
//
// Fatal errors (InsufficientHistoryError, InvalidSeriesError,
// EnsembleUnavailableError) abort a run before any result is published.
// Per-adapter errors (ModelFitError, ModelFitTimeout) are recovered locally:
// the adapter is excluded from the run and the pipeline continues.
package fcerr

import (
	"fmt"
	"time"
)

// InsufficientHistoryError signals that the input series is too short for
// the requested lag features or validation window. Raised before any
// fitting begins.
type InsufficientHistoryError struct {
	Have int // periods available
	Need int // periods required
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history: %d periods available, %d required", e.Have, e.Need)
}

// InvalidSeriesError signals malformed input: non-monotonic or duplicated
// dates, or negative observations.
type InvalidSeriesError struct {
	Reason string
	Index  int
	Date   time.Time
}

func (e *InvalidSeriesError) Error() string {
	if e.Date.IsZero() {
		return fmt.Sprintf("invalid series at index %d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid series at index %d (%s): %s", e.Index, e.Date.Format("2006-01-02"), e.Reason)
}

// ModelFitError wraps a per-adapter fit failure. The adapter is excluded
// from the run; the run itself continues.
type ModelFitError struct {
	Adapter string
	N       int // training points the adapter saw
	Err     error
}

func (e *ModelFitError) Error() string {
	return fmt.Sprintf("adapter %s failed to fit on %d points: %v", e.Adapter, e.N, e.Err)
}

func (e *ModelFitError) Unwrap() error { return e.Err }

// ModelFitTimeout signals that a fit exceeded its wall-clock budget.
// Treated like ModelFitError: the adapter is excluded for this run.
type ModelFitTimeout struct {
	Adapter string
	Timeout time.Duration
}

func (e *ModelFitTimeout) Error() string {
	return fmt.Sprintf("adapter %s exceeded fit timeout of %s", e.Adapter, e.Timeout)
}

// EnsembleUnavailableError signals that every adapter failed and no
// forecast can be produced. Failures maps adapter name to the reason it
// was excluded.
type EnsembleUnavailableError struct {
	Failures map[string]string
}

func (e *EnsembleUnavailableError) Error() string {
	return fmt.Sprintf("all %d adapters failed, no ensemble available", len(e.Failures))
}
