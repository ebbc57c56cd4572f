// Package history describes what a run leaves behind besides its loss series:
// every published model and the results of re-evaluating them.
package history

import (
	"context"
	"time"
)

// Snapshot is a published best model as stored for later re-evaluation.
type Snapshot struct {
	RunID       string    `json:"run_id"`
	Version     uint64    `json:"version"`
	Loss        float64   `json:"loss"`
	TrainerID   string    `json:"trainer_id"`
	PublishedAt time.Time `json:"published_at"`
	Payload     []byte    `json:"payload"`
}

// EvalResult is the outcome of re-validating a stored snapshot.
type EvalResult struct {
	RunID       string        `json:"run_id"`
	Version     uint64        `json:"version"`
	Loss        float64       `json:"loss"`
	Batches     int           `json:"batches"`
	Samples     int           `json:"samples"`
	Elapsed     time.Duration `json:"elapsed"`
	EvaluatedAt time.Time     `json:"evaluated_at"`
}

// SnapshotRepository lists snapshots of a run in version order.
type SnapshotRepository interface {
	Save(ctx context.Context, s Snapshot) error
	Get(ctx context.Context, runID string, version uint64) (Snapshot, error)
	List(ctx context.Context, runID string, offset, limit uint64) ([]Snapshot, uint64, error)
}

// EvalRepository keeps one result per run and version; saving again
// overwrites it.
type EvalRepository interface {
	Save(ctx context.Context, r EvalResult) error
	List(ctx context.Context, runID string, offset, limit uint64) ([]EvalResult, uint64, error)
}
