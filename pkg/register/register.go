// Package register holds the single-slot, versioned best-model register shared
// by the parameter server (sole writer) and every trainer (readers).
//
// Publish swaps an immutable snapshot pointer, so a reader observes either the
// previous or the next snapshot in full and never a mix of the two.
package register

import (
	"sync/atomic"

	"github.com/absmach/swamp/pkg/model"
)

// Reader is the read side handed to trainers.
type Reader interface {
	// Read returns the latest published snapshot, or false if nothing has been
	// published yet.
	Read() (model.State, bool)
}

type Register struct {
	current atomic.Pointer[model.State]
}

var _ Reader = (*Register)(nil)

func New() *Register {
	return &Register{}
}

// Publish stores candidate as the new best model with version previous+1, or 1
// for the first publish, and returns the stored snapshot.
func (r *Register) Publish(candidate model.State) model.State {
	for {
		prev := r.current.Load()
		var version uint64 = 1
		if prev != nil {
			version = prev.Version() + 1
		}
		next := candidate.WithVersion(version)
		if r.current.CompareAndSwap(prev, &next) {
			return next
		}
	}
}

func (r *Register) Read() (model.State, bool) {
	s := r.current.Load()
	if s == nil {
		return model.State{}, false
	}

	return *s, true
}

// Version returns the published version, 0 while the register is empty.
func (r *Register) Version() uint64 {
	s := r.current.Load()
	if s == nil {
		return 0
	}

	return s.Version()
}
