package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/absmach/swamp/pkg/series"
)

type seriesRepo struct {
	db    *Database
	runID string
}

func NewSeriesRepository(db *Database, runID string) series.Sink {
	return &seriesRepo{db: db, runID: runID}
}

type dbSample struct {
	Actor   string          `db:"actor"`
	Loss    sql.NullFloat64 `db:"loss"`
	Elapsed int64           `db:"elapsed"`
	At      time.Time       `db:"at"`
}

func (r *seriesRepo) Append(ctx context.Context, s series.Sample) error {
	if s.Actor == "" {
		return series.ErrEmptyActor
	}
	query := `INSERT INTO loss_samples (run_id, actor, loss, elapsed, at) VALUES (?, ?, ?, ?, ?)`
	if _, err := r.db.ExecContext(ctx, query, r.runID, s.Actor, toNullable(s.Loss), int64(s.Elapsed), s.At); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *seriesRepo) Series(ctx context.Context, actor string) ([]series.Sample, error) {
	if actor == "" {
		return nil, series.ErrEmptyActor
	}
	query := `SELECT actor, loss, elapsed, at FROM loss_samples WHERE run_id = ? AND actor = ? ORDER BY id`

	var rows []dbSample
	if err := r.db.SelectContext(ctx, &rows, query, r.runID, actor); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	samples := make([]series.Sample, len(rows))
	for i, row := range rows {
		samples[i] = series.Sample{
			Actor:   row.Actor,
			Loss:    fromNullable(row.Loss),
			Elapsed: time.Duration(row.Elapsed),
			At:      row.At,
		}
	}

	return samples, nil
}

func (r *seriesRepo) Actors(ctx context.Context) ([]string, error) {
	var actors []string
	query := `SELECT DISTINCT actor FROM loss_samples WHERE run_id = ? ORDER BY actor`
	if err := r.db.SelectContext(ctx, &actors, query, r.runID); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return actors, nil
}
