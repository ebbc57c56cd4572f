package postgres

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/history"
)

type evalRepo struct {
	db *Database
}

func NewEvalRepository(db *Database) history.EvalRepository {
	return &evalRepo{db: db}
}

type dbEvalResult struct {
	RunID       string    `db:"run_id"`
	Version     int64     `db:"version"`
	Loss        float64   `db:"loss"`
	Batches     int       `db:"batches"`
	Samples     int       `db:"samples"`
	Elapsed     int64     `db:"elapsed"`
	EvaluatedAt time.Time `db:"evaluated_at"`
}

func (r *evalRepo) Save(ctx context.Context, res history.EvalResult) error {
	if res.RunID == "" {
		return pkgerrors.ErrEmptyKey
	}
	query := `INSERT INTO eval_results (run_id, version, loss, batches, samples, elapsed, evaluated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (run_id, version) DO UPDATE SET
			loss = EXCLUDED.loss,
			batches = EXCLUDED.batches,
			samples = EXCLUDED.samples,
			elapsed = EXCLUDED.elapsed,
			evaluated_at = EXCLUDED.evaluated_at`

	_, err := r.db.ExecContext(ctx, query,
		res.RunID, int64(res.Version), res.Loss, res.Batches, res.Samples, int64(res.Elapsed), res.EvaluatedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *evalRepo) List(ctx context.Context, runID string, offset, limit uint64) ([]history.EvalResult, uint64, error) {
	if runID == "" {
		return nil, 0, pkgerrors.ErrEmptyKey
	}

	var total uint64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM eval_results WHERE run_id = $1`, runID); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	query := `SELECT run_id, version, loss, batches, samples, elapsed, evaluated_at
		FROM eval_results WHERE run_id = $1 ORDER BY version LIMIT $2 OFFSET $3`

	var rows []dbEvalResult
	if err := r.db.SelectContext(ctx, &rows, query, runID, int64(limit), int64(offset)); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	results := make([]history.EvalResult, len(rows))
	for i, row := range rows {
		results[i] = history.EvalResult{
			RunID:       row.RunID,
			Version:     uint64(row.Version),
			Loss:        row.Loss,
			Batches:     row.Batches,
			Samples:     row.Samples,
			Elapsed:     time.Duration(row.Elapsed),
			EvaluatedAt: row.EvaluatedAt,
		}
	}

	return results, total, nil
}
