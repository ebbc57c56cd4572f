// Package optim declares the local optimizer capability the exchange protocol
// drives, and ships a small linear model that implements it.
package optim

import (
	"errors"

	"github.com/absmach/swamp/pkg/data"
)

var (
	ErrShape      = errors.New("parameter blob does not match model shape")
	ErrEmptyBatch = errors.New("empty batch")
)

// LocalOptimizer owns a model replica and its optimizer. Losses are per-sample
// averages over the batch. Implementations are used by a single goroutine.
type LocalOptimizer interface {
	// TrainStep returns the loss of the batch under the current parameters and
	// then applies one update.
	TrainStep(b data.Batch) (float64, error)
	// Evaluate returns the loss of the batch without touching the parameters.
	Evaluate(b data.Batch) (float64, error)
	// Snapshot serializes the parameters and the optimizer state.
	Snapshot() (params, optimizerState []byte, err error)
	// Load replaces the parameters and the optimizer state.
	Load(params, optimizerState []byte) error
}

// Factory builds a fresh replica. The coordinator calls it once per trainer and
// once for the parameter server's scratch model.
type Factory func() (LocalOptimizer, error)
