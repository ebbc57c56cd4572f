package storage

import (
	"context"
	"fmt"

	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/history"
)

// Versions are zero padded so key order is version order.
func versionKey(runID string, version uint64) string {
	return fmt.Sprintf("%s/%020d", runID, version)
}

type memorySnapshotRepo struct {
	storage *inMemoryStorage
}

func newMemorySnapshotRepository(s *inMemoryStorage) history.SnapshotRepository {
	return &memorySnapshotRepo{storage: s}
}

func (r *memorySnapshotRepo) Save(ctx context.Context, s history.Snapshot) error {
	if s.RunID == "" {
		return pkgerrors.ErrEmptyKey
	}

	return r.storage.Put(ctx, versionKey(s.RunID, s.Version), s)
}

func (r *memorySnapshotRepo) Get(ctx context.Context, runID string, version uint64) (history.Snapshot, error) {
	if runID == "" {
		return history.Snapshot{}, pkgerrors.ErrEmptyKey
	}
	data, err := r.storage.Get(ctx, versionKey(runID, version))
	if err != nil {
		return history.Snapshot{}, err
	}
	s, ok := data.(history.Snapshot)
	if !ok {
		return history.Snapshot{}, pkgerrors.ErrInvalidData
	}

	return s, nil
}

func (r *memorySnapshotRepo) List(ctx context.Context, runID string, offset, limit uint64) ([]history.Snapshot, uint64, error) {
	if runID == "" {
		return nil, 0, pkgerrors.ErrEmptyKey
	}
	data, total, err := r.storage.List(ctx, runID+"/", offset, limit)
	if err != nil {
		return nil, 0, err
	}
	snapshots := make([]history.Snapshot, len(data))
	for i, d := range data {
		s, ok := d.(history.Snapshot)
		if !ok {
			return nil, 0, pkgerrors.ErrInvalidData
		}
		snapshots[i] = s
	}

	return snapshots, total, nil
}

type memoryEvalRepo struct {
	storage *inMemoryStorage
}

func newMemoryEvalRepository(s *inMemoryStorage) history.EvalRepository {
	return &memoryEvalRepo{storage: s}
}

func (r *memoryEvalRepo) Save(ctx context.Context, res history.EvalResult) error {
	if res.RunID == "" {
		return pkgerrors.ErrEmptyKey
	}

	return r.storage.Put(ctx, versionKey(res.RunID, res.Version), res)
}

func (r *memoryEvalRepo) List(ctx context.Context, runID string, offset, limit uint64) ([]history.EvalResult, uint64, error) {
	if runID == "" {
		return nil, 0, pkgerrors.ErrEmptyKey
	}
	data, total, err := r.storage.List(ctx, runID+"/", offset, limit)
	if err != nil {
		return nil, 0, err
	}
	results := make([]history.EvalResult, len(data))
	for i, d := range data {
		res, ok := d.(history.EvalResult)
		if !ok {
			return nil, 0, pkgerrors.ErrInvalidData
		}
		results[i] = res
	}

	return results, total, nil
}
