package badger

import (
	"context"
	"encoding/json"
	"fmt"

	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/history"
)

type snapshotRepo struct {
	db *Database
}

func NewSnapshotRepository(db *Database) history.SnapshotRepository {
	return &snapshotRepo{db: db}
}

func snapshotKey(runID string, version uint64) []byte {
	return fmt.Appendf(nil, "snap:%s:%020d", runID, version)
}

func (r *snapshotRepo) Save(_ context.Context, s history.Snapshot) error {
	if s.RunID == "" {
		return pkgerrors.ErrEmptyKey
	}
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	if err := r.db.set(snapshotKey(s.RunID, s.Version), val); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *snapshotRepo) Get(_ context.Context, runID string, version uint64) (history.Snapshot, error) {
	if runID == "" {
		return history.Snapshot{}, pkgerrors.ErrEmptyKey
	}
	val, err := r.db.get(snapshotKey(runID, version))
	if err != nil {
		return history.Snapshot{}, err
	}
	var s history.Snapshot
	if err := json.Unmarshal(val, &s); err != nil {
		return history.Snapshot{}, fmt.Errorf("unmarshal error: %w", err)
	}

	return s, nil
}

func (r *snapshotRepo) List(_ context.Context, runID string, offset, limit uint64) ([]history.Snapshot, uint64, error) {
	if runID == "" {
		return nil, 0, pkgerrors.ErrEmptyKey
	}
	prefix := fmt.Appendf(nil, "snap:%s:", runID)
	total, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	values, err := r.db.listWithPrefix(prefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	snapshots := make([]history.Snapshot, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &snapshots[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return snapshots, total, nil
}
