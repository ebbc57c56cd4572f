// Package ps implements the parameter server: the sole authority deciding
// which pushed candidate becomes the published best model.
package ps

import (
	"context"

	"github.com/absmach/swamp/pkg/model"
)

type Outcome string

const (
	// OutcomeAccepted means the candidate passed the double check and was
	// published.
	OutcomeAccepted Outcome = "accepted"
	// OutcomeRejected means the candidate passed the cheap gate but its
	// validation loss did not beat the current score.
	OutcomeRejected Outcome = "rejected"
	// OutcomeDiscarded means the reported loss did not beat the current score,
	// so no validation was performed.
	OutcomeDiscarded Outcome = "discarded"
	// OutcomeMalformed means the payload could not be decoded or loaded.
	OutcomeMalformed Outcome = "malformed"
)

// Decision describes how one candidate was handled.
type Decision struct {
	Outcome       Outcome `json:"outcome"`
	TrainerID     string  `json:"trainer_id,omitempty"`
	CandidateLoss float64 `json:"candidate_loss"`
	// DoubleCheckLoss is set only when Validated is true.
	DoubleCheckLoss float64 `json:"double_check_loss"`
	Validated       bool    `json:"validated"`
	// Version is the published version for accepted candidates.
	Version uint64 `json:"version,omitempty"`
	// PreviousScore is the score the candidate was compared against.
	PreviousScore float64 `json:"previous_score"`
}

type Service interface {
	// Handle decodes, gates, validates and conditionally publishes one
	// candidate. Candidates are handled one at a time. A returned error
	// concerns only this candidate.
	Handle(ctx context.Context, payload []byte) (Decision, error)
	// Best returns the published best model, if any.
	Best(ctx context.Context) (model.State, bool)
	// Score returns the validation loss of the published best model, +Inf
	// before the first publish.
	Score(ctx context.Context) float64
}
