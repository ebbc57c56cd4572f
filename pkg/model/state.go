// Package model defines the immutable model snapshot exchanged between trainers
// and the parameter server, and its wire encoding.
package model

import (
	"bytes"
	"math"
	"time"
)

// State is an immutable snapshot of a model replica. Values are safe to share
// between goroutines: constructors copy the blobs they are given and accessors
// return copies.
type State struct {
	params         []byte
	optimizerState []byte
	loss           float64
	version        uint64
	trainerID      string
	createdAt      time.Time
}

// New builds an unversioned candidate. Only the best-model register assigns
// versions.
func New(trainerID string, params, optimizerState []byte, loss float64) State {
	return State{
		params:         clone(params),
		optimizerState: clone(optimizerState),
		loss:           loss,
		trainerID:      trainerID,
		createdAt:      time.Now().UTC(),
	}
}

func (s State) Params() []byte {
	return clone(s.params)
}

func (s State) OptimizerState() []byte {
	return clone(s.optimizerState)
}

func (s State) Loss() float64 {
	return s.loss
}

// Version is zero for candidates that were never published.
func (s State) Version() uint64 {
	return s.version
}

func (s State) TrainerID() string {
	return s.trainerID
}

func (s State) CreatedAt() time.Time {
	return s.createdAt
}

// WithVersion returns a copy of s carrying version v. The blobs are shared with
// s, which is fine since neither value ever mutates them.
func (s State) WithVersion(v uint64) State {
	s.version = v

	return s
}

// WithLoss returns a copy of s carrying loss l.
func (s State) WithLoss(l float64) State {
	s.loss = l

	return s
}

// Equal reports whether both snapshots carry the same blobs, loss and version.
func (s State) Equal(o State) bool {
	return s.version == o.version &&
		s.trainerID == o.trainerID &&
		(s.loss == o.loss || (math.IsNaN(s.loss) && math.IsNaN(o.loss))) &&
		bytes.Equal(s.params, o.params) &&
		bytes.Equal(s.optimizerState, o.optimizerState)
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}

	return bytes.Clone(b)
}
