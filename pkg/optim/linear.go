package optim

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/absmach/swamp/pkg/data"
)

// Linear is a least-squares linear regressor trained with momentum SGD. The
// last parameter is the bias.
type Linear struct {
	weights  []float64
	velocity []float64
	lr       float64
	momentum float64
}

var _ LocalOptimizer = (*Linear)(nil)

func NewLinear(features int, lr, momentum float64) *Linear {
	return &Linear{
		weights:  make([]float64, features+1),
		velocity: make([]float64, features+1),
		lr:       lr,
		momentum: momentum,
	}
}

// LinearFactory returns a Factory producing zero-initialised replicas.
func LinearFactory(features int, lr, momentum float64) Factory {
	return func() (LocalOptimizer, error) {
		return NewLinear(features, lr, momentum), nil
	}
}

func (l *Linear) TrainStep(b data.Batch) (float64, error) {
	loss, grad, err := l.lossAndGrad(b, true)
	if err != nil {
		return 0, err
	}
	for i := range l.weights {
		l.velocity[i] = l.momentum*l.velocity[i] - l.lr*grad[i]
		l.weights[i] += l.velocity[i]
	}

	return loss, nil
}

func (l *Linear) Evaluate(b data.Batch) (float64, error) {
	loss, _, err := l.lossAndGrad(b, false)

	return loss, err
}

func (l *Linear) Snapshot() ([]byte, []byte, error) {
	return encodeFloats(l.weights), encodeFloats(l.velocity), nil
}

func (l *Linear) Load(params, optimizerState []byte) error {
	w, err := decodeFloats(params, len(l.weights))
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}
	v, err := decodeFloats(optimizerState, len(l.velocity))
	if err != nil {
		return fmt.Errorf("optimizer state: %w", err)
	}
	l.weights, l.velocity = w, v

	return nil
}

// Weights returns a copy of the current parameters, bias last.
func (l *Linear) Weights() []float64 {
	return append([]float64(nil), l.weights...)
}

func (l *Linear) lossAndGrad(b data.Batch, withGrad bool) (float64, []float64, error) {
	if b.Len() == 0 {
		return 0, nil, ErrEmptyBatch
	}
	features := len(l.weights) - 1

	var grad []float64
	if withGrad {
		grad = make([]float64, len(l.weights))
	}
	var sum float64
	for _, s := range b.Samples {
		if len(s.Features) != features {
			return 0, nil, fmt.Errorf("%w: sample has %d features, model expects %d", ErrShape, len(s.Features), features)
		}
		pred := l.weights[features]
		for i, x := range s.Features {
			pred += l.weights[i] * x
		}
		diff := pred - s.Target
		sum += diff * diff
		if withGrad {
			for i, x := range s.Features {
				grad[i] += 2 * diff * x
			}
			grad[features] += 2 * diff
		}
	}

	n := float64(b.Len())
	for i := range grad {
		grad[i] /= n
	}

	return sum / n, grad, nil
}

func encodeFloats(v []float64) []byte {
	buf := make([]byte, 0, 8*len(v))
	for _, f := range v {
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(f))
	}

	return buf
}

func decodeFloats(b []byte, n int) ([]float64, error) {
	if len(b) != 8*n {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrShape, len(b), 8*n)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[8*i:]))
	}

	return out, nil
}
