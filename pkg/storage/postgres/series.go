package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/absmach/swamp/pkg/series"
)

type seriesRepo struct {
	db    *Database
	runID string
}

// NewSeriesRepository persists the loss samples of one run. Series returns
// samples in insertion order.
func NewSeriesRepository(db *Database, runID string) series.Sink {
	return &seriesRepo{db: db, runID: runID}
}

type dbSample struct {
	Actor   string    `db:"actor"`
	Loss    float64   `db:"loss"`
	Elapsed int64     `db:"elapsed"`
	At      time.Time `db:"at"`
}

func (r *seriesRepo) Append(ctx context.Context, s series.Sample) error {
	if s.Actor == "" {
		return series.ErrEmptyActor
	}
	query := `INSERT INTO loss_samples (run_id, actor, loss, elapsed, at) VALUES ($1, $2, $3, $4, $5)`
	if _, err := r.db.ExecContext(ctx, query, r.runID, s.Actor, s.Loss, int64(s.Elapsed), s.At); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *seriesRepo) Series(ctx context.Context, actor string) ([]series.Sample, error) {
	if actor == "" {
		return nil, series.ErrEmptyActor
	}
	query := `SELECT actor, loss, elapsed, at FROM loss_samples WHERE run_id = $1 AND actor = $2 ORDER BY id`

	var rows []dbSample
	if err := r.db.SelectContext(ctx, &rows, query, r.runID, actor); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	samples := make([]series.Sample, len(rows))
	for i, row := range rows {
		samples[i] = series.Sample{
			Actor:   row.Actor,
			Loss:    row.Loss,
			Elapsed: time.Duration(row.Elapsed),
			At:      row.At,
		}
	}

	return samples, nil
}

func (r *seriesRepo) Actors(ctx context.Context) ([]string, error) {
	query := `SELECT DISTINCT actor FROM loss_samples WHERE run_id = $1 ORDER BY actor`

	var actors []string
	if err := r.db.SelectContext(ctx, &actors, query, r.runID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return actors, nil
}
