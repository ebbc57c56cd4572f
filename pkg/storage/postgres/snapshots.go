package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/history"
)

type snapshotRepo struct {
	db *Database
}

func NewSnapshotRepository(db *Database) history.SnapshotRepository {
	return &snapshotRepo{db: db}
}

type dbSnapshot struct {
	RunID       string    `db:"run_id"`
	Version     int64     `db:"version"`
	Loss        float64   `db:"loss"`
	TrainerID   string    `db:"trainer_id"`
	PublishedAt time.Time `db:"published_at"`
	Payload     []byte    `db:"payload"`
}

func (row dbSnapshot) toSnapshot() history.Snapshot {
	return history.Snapshot{
		RunID:       row.RunID,
		Version:     uint64(row.Version),
		Loss:        row.Loss,
		TrainerID:   row.TrainerID,
		PublishedAt: row.PublishedAt,
		Payload:     row.Payload,
	}
}

func (r *snapshotRepo) Save(ctx context.Context, s history.Snapshot) error {
	if s.RunID == "" {
		return pkgerrors.ErrEmptyKey
	}
	query := `INSERT INTO snapshots (run_id, version, loss, trainer_id, published_at, payload)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (run_id, version) DO UPDATE SET
			loss = EXCLUDED.loss,
			trainer_id = EXCLUDED.trainer_id,
			published_at = EXCLUDED.published_at,
			payload = EXCLUDED.payload`

	payload := s.Payload
	if payload == nil {
		payload = []byte{}
	}
	_, err := r.db.ExecContext(ctx, query, s.RunID, int64(s.Version), s.Loss, s.TrainerID, s.PublishedAt, payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *snapshotRepo) Get(ctx context.Context, runID string, version uint64) (history.Snapshot, error) {
	if runID == "" {
		return history.Snapshot{}, pkgerrors.ErrEmptyKey
	}
	query := `SELECT run_id, version, loss, trainer_id, published_at, payload
		FROM snapshots WHERE run_id = $1 AND version = $2`

	var row dbSnapshot
	if err := r.db.GetContext(ctx, &row, query, runID, int64(version)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.Snapshot{}, ErrNotFound
		}

		return history.Snapshot{}, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	return row.toSnapshot(), nil
}

func (r *snapshotRepo) List(ctx context.Context, runID string, offset, limit uint64) ([]history.Snapshot, uint64, error) {
	if runID == "" {
		return nil, 0, pkgerrors.ErrEmptyKey
	}

	var total uint64
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM snapshots WHERE run_id = $1`, runID); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}

	query := `SELECT run_id, version, loss, trainer_id, published_at, payload
		FROM snapshots WHERE run_id = $1 ORDER BY version LIMIT $2 OFFSET $3`

	var rows []dbSnapshot
	if err := r.db.SelectContext(ctx, &rows, query, runID, int64(limit), int64(offset)); err != nil {
		return nil, 0, fmt.Errorf("%w: %w", ErrDBQuery, err)
	}
	snapshots := make([]history.Snapshot, len(rows))
	for i, row := range rows {
		snapshots[i] = row.toSnapshot()
	}

	return snapshots, total, nil
}
