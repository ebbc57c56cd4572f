package badger

import (
	"context"
	"encoding/json"
	"fmt"

	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/history"
)

type evalRepo struct {
	db *Database
}

func NewEvalRepository(db *Database) history.EvalRepository {
	return &evalRepo{db: db}
}

// Save overwrites any previous result for the same run and version.
func (r *evalRepo) Save(_ context.Context, res history.EvalResult) error {
	if res.RunID == "" {
		return pkgerrors.ErrEmptyKey
	}
	key := fmt.Appendf(nil, "eval:%s:%020d", res.RunID, res.Version)
	val, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	if err := r.db.set(key, val); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *evalRepo) List(_ context.Context, runID string, offset, limit uint64) ([]history.EvalResult, uint64, error) {
	if runID == "" {
		return nil, 0, pkgerrors.ErrEmptyKey
	}
	prefix := fmt.Appendf(nil, "eval:%s:", runID)
	total, err := r.db.countWithPrefix(prefix)
	if err != nil {
		return nil, 0, err
	}
	values, err := r.db.listWithPrefix(prefix, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	results := make([]history.EvalResult, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &results[i]); err != nil {
			return nil, 0, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return results, total, nil
}
