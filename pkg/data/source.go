// Package data provides restartable batch sources for trainers and for the
// parameter server's validation holdout.
package data

import (
	"errors"
	"iter"
	"math/rand/v2"
	"sync"
)

var ErrBatchSize = errors.New("batch size must be positive")

type Sample struct {
	Features []float64 `json:"features"`
	Target   float64   `json:"target"`
}

type Batch struct {
	Samples []Sample
}

func (b Batch) Len() int {
	return len(b.Samples)
}

// Source produces a lazy sequence of batches. Every call to Batches starts a
// fresh pass over the data.
type Source interface {
	Batches() iter.Seq[Batch]
	// Len is the number of batches in one pass.
	Len() int
}

type sliceSource struct {
	samples   []Sample
	batchSize int
	mu        sync.Mutex
	rng       *rand.Rand
}

// NewSliceSource serves samples in batches of batchSize. The last batch may be
// short. The order is fixed, which keeps validation deterministic.
func NewSliceSource(samples []Sample, batchSize int) (Source, error) {
	if batchSize <= 0 {
		return nil, ErrBatchSize
	}

	return &sliceSource{samples: samples, batchSize: batchSize}, nil
}

// NewShuffledSource reshuffles the sample order at the start of every pass
// using its own seeded generator.
func NewShuffledSource(samples []Sample, batchSize int, seed uint64) (Source, error) {
	if batchSize <= 0 {
		return nil, ErrBatchSize
	}

	return &sliceSource{
		samples:   samples,
		batchSize: batchSize,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

func (s *sliceSource) Len() int {
	return (len(s.samples) + s.batchSize - 1) / s.batchSize
}

func (s *sliceSource) Batches() iter.Seq[Batch] {
	return func(yield func(Batch) bool) {
		order := s.order()
		for start := 0; start < len(order); start += s.batchSize {
			end := min(start+s.batchSize, len(order))
			b := Batch{Samples: make([]Sample, 0, end-start)}
			for _, idx := range order[start:end] {
				b.Samples = append(b.Samples, s.samples[idx])
			}
			if !yield(b) {
				return
			}
		}
	}
}

func (s *sliceSource) order() []int {
	order := make([]int, len(s.samples))
	for i := range order {
		order[i] = i
	}
	if s.rng == nil {
		return order
	}

	s.mu.Lock()
	s.rng.Shuffle(len(order), func(i, j int) {
		order[i], order[j] = order[j], order[i]
	})
	s.mu.Unlock()

	return order
}

// Shard returns the i-th of n contiguous, near-equal partitions of samples.
func Shard(samples []Sample, n, i int) []Sample {
	if n <= 0 || i < 0 || i >= n {
		return nil
	}
	size := len(samples) / n
	rem := len(samples) % n
	start := i*size + min(i, rem)
	end := start + size
	if i < rem {
		end++
	}

	return samples[start:end]
}
