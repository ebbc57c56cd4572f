package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync/atomic"

	"github.com/absmach/swamp/pkg/series"
)

const (
	samplePrefix = "ls:"
	actorPrefix  = "la:"
)

type seriesRepo struct {
	db    *Database
	runID string
	seq   atomic.Uint64
}

// NewSeriesRepository persists the loss samples of one run. Keys are ordered
// by timestamp and a process-local sequence, so Series returns samples in
// append order.
func NewSeriesRepository(db *Database, runID string) series.Sink {
	return &seriesRepo{db: db, runID: runID}
}

func (r *seriesRepo) Append(_ context.Context, s series.Sample) error {
	if s.Actor == "" {
		return series.ErrEmptyActor
	}

	key := fmt.Appendf(nil, "%s%s:%020d:%010d", r.samples(), s.Actor, s.At.UnixNano(), r.seq.Add(1))
	val, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal error: %w", err)
	}
	if err := r.db.set(key, val); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}
	if err := r.db.set([]byte(r.actors()+s.Actor), nil); err != nil {
		return fmt.Errorf("%w: %w", ErrCreate, err)
	}

	return nil
}

func (r *seriesRepo) Series(_ context.Context, actor string) ([]series.Sample, error) {
	if actor == "" {
		return nil, series.ErrEmptyActor
	}

	values, err := r.db.listWithPrefix([]byte(r.samples()+actor+":"), 0, math.MaxUint64)
	if err != nil {
		return nil, err
	}
	samples := make([]series.Sample, len(values))
	for i, val := range values {
		if err := json.Unmarshal(val, &samples[i]); err != nil {
			return nil, fmt.Errorf("unmarshal error: %w", err)
		}
	}

	return samples, nil
}

func (r *seriesRepo) Actors(_ context.Context) ([]string, error) {
	prefix := []byte(r.actors())
	keys, err := r.db.keysWithPrefix(prefix)
	if err != nil {
		return nil, err
	}
	actors := make([]string, len(keys))
	for i, k := range keys {
		actors[i] = string(bytes.TrimPrefix(k, prefix))
	}

	return actors, nil
}

func (r *seriesRepo) samples() string {
	return samplePrefix + r.runID + ":"
}

func (r *seriesRepo) actors() string {
	return actorPrefix + r.runID + ":"
}
