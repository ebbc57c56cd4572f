package ps

import (
	"context"
	"errors"
	"fmt"

	"github.com/absmach/swamp/pkg/data"
	"github.com/absmach/swamp/pkg/optim"
)

var ErrNoValidationData = errors.New("validation source produced no batches")

// Validation is the result of a capped validation pass.
type Validation struct {
	// Loss is the per-sample average over every validated sample.
	Loss    float64 `json:"loss"`
	Batches int     `json:"batches"`
	Samples int     `json:"samples"`
	// Exhausted is set when the source ran out before maxBatches.
	Exhausted bool `json:"exhausted"`
}

// Validate evaluates opt on at most maxBatches batches of src. A source with
// fewer batches is validated on what it has. The same optimizer state, source
// and cap always produce the same loss.
func Validate(ctx context.Context, opt optim.LocalOptimizer, src data.Source, maxBatches int) (Validation, error) {
	var (
		v   Validation
		sum float64
	)
	for b := range src.Batches() {
		if v.Batches >= maxBatches {
			break
		}
		if err := ctx.Err(); err != nil {
			return Validation{}, err
		}
		if b.Len() == 0 {
			continue
		}
		loss, err := opt.Evaluate(b)
		if err != nil {
			return Validation{}, fmt.Errorf("validation batch %d: %w", v.Batches, err)
		}
		sum += loss * float64(b.Len())
		v.Samples += b.Len()
		v.Batches++
	}

	if v.Samples == 0 {
		return Validation{}, ErrNoValidationData
	}
	v.Loss = sum / float64(v.Samples)
	v.Exhausted = v.Batches < maxBatches

	return v, nil
}
