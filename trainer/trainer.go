// Package trainer runs local optimization over a private data shard and takes
// part in the push/pull exchange with the parameter server.
package trainer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/absmach/swamp/pkg/data"
	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/model"
	"github.com/absmach/swamp/pkg/optim"
	"github.com/absmach/swamp/pkg/queue"
	"github.com/absmach/swamp/pkg/register"
	"github.com/absmach/swamp/pkg/series"
)

var (
	errEmptyID            = errors.New("trainer ID is required")
	errEpochs             = errors.New("epochs must be positive")
	errFreeTrialSteps     = errors.New("free trial steps must not be negative")
	errPullProbability    = errors.New("pull probability must be within [0, 1]")
	errLossSampleInterval = errors.New("loss sample interval must be positive")
	errNilDependency      = errors.New("optimizer, data source, upload queue and best-model reader are required")
)

type Config struct {
	ID                 string
	Epochs             int
	FreeTrialSteps     int
	PullProbability    float64
	LossSampleInterval int
	// LogInterval of 0 disables progress logging.
	LogInterval int
	Seed        uint64
}

func (c Config) Validate() error {
	var err error
	switch {
	case c.ID == "":
		err = errEmptyID
	case c.Epochs <= 0:
		err = errEpochs
	case c.FreeTrialSteps < 0:
		err = errFreeTrialSteps
	case c.PullProbability < 0 || c.PullProbability > 1 || math.IsNaN(c.PullProbability):
		err = errPullProbability
	case c.LossSampleInterval <= 0:
		err = errLossSampleInterval
	}
	if err != nil {
		return errors.Join(pkgerrors.ErrInvalidConfig, err)
	}

	return nil
}

// Summary describes a finished (or aborted) trainer run.
type Summary struct {
	ID           string        `json:"id"`
	Steps        int           `json:"steps"`
	Exchanges    int           `json:"exchanges"`
	Pushes       int           `json:"pushes"`
	PushFailures int           `json:"push_failures"`
	Pulls        int           `json:"pulls"`
	EmptyPulls   int           `json:"empty_pulls"`
	PullVersion  uint64        `json:"pull_version"`
	Score        float64       `json:"score"`
	Elapsed      time.Duration `json:"elapsed"`
	Err          string        `json:"error,omitempty"`
}

// MarshalJSON reports a score that is still +Inf as null.
func (s Summary) MarshalJSON() ([]byte, error) {
	type alias Summary
	var score *float64
	if !math.IsInf(s.Score, 0) && !math.IsNaN(s.Score) {
		score = &s.Score
	}

	return json.Marshal(struct {
		alias
		Score *float64 `json:"score"`
	}{
		alias: alias(s),
		Score: score,
	})
}

type Trainer struct {
	cfg     Config
	opt     optim.LocalOptimizer
	data    data.Source
	uploads queue.Sender[[]byte]
	best    register.Reader
	losses  *series.Recorder
	pulls   *series.Recorder
	rng     *rand.Rand
	logger  *slog.Logger
	start   time.Time

	score     float64
	freeTrial int
	summary   Summary
}

// New builds a trainer. sink may be nil, in which case no samples are kept.
func New(cfg Config, opt optim.LocalOptimizer, src data.Source, uploads queue.Sender[[]byte], best register.Reader, sink series.Sink, logger *slog.Logger) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opt == nil || src == nil || uploads == nil || best == nil {
		return nil, errors.Join(pkgerrors.ErrInvalidConfig, errNilDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	t := &Trainer{
		cfg:     cfg,
		opt:     opt,
		data:    src,
		uploads: uploads,
		best:    best,
		rng:     rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5bd1e995)),
		logger:  logger.With(slog.String("trainer", cfg.ID)),
		start:   start,
		score:   math.Inf(1),
		summary: Summary{ID: cfg.ID},
	}
	if sink != nil {
		t.losses = series.NewRecorder(sink, cfg.ID, start)
		t.pulls = series.NewRecorder(sink, series.PullActor(cfg.ID), start)
	}

	return t, nil
}

// Run trains for the configured number of epochs. It never notifies the
// parameter server when done.
func (t *Trainer) Run(ctx context.Context) (Summary, error) {
	for epoch := range t.cfg.Epochs {
		batchIdx := 0
		for b := range t.data.Batches() {
			if err := ctx.Err(); err != nil {
				return t.finish(err)
			}

			loss, err := t.Step(ctx, b)
			if err != nil {
				return t.finish(fmt.Errorf("epoch %d batch %d: %w", epoch, batchIdx, err))
			}

			if batchIdx%t.cfg.LossSampleInterval == 0 {
				if err := t.losses.Record(ctx, loss); err != nil {
					t.logger.Warn("Failed to record loss sample", slog.Any("error", err))
				}
			}
			if t.cfg.LogInterval > 0 && batchIdx%t.cfg.LogInterval == 0 {
				t.logger.Debug("Training progress",
					slog.Int("epoch", epoch),
					slog.Int("batch", batchIdx),
					slog.Float64("loss", loss),
					slog.Float64("score", t.score),
				)
			}
			batchIdx++
		}
		t.logger.Info("Trainer finished epoch", slog.Int("epoch", epoch), slog.Int("batches", batchIdx))
	}

	return t.finish(nil)
}

// Step processes one batch. During the free-trial phase the update is applied
// unconditionally; the step after it is an exchange step that evaluates the
// current replica and either pushes it or, with the configured probability,
// pulls the published best model. The free-trial counter then restarts.
func (t *Trainer) Step(ctx context.Context, b data.Batch) (float64, error) {
	t.summary.Steps++

	if t.freeTrial < t.cfg.FreeTrialSteps {
		loss, err := t.opt.TrainStep(b)
		if err != nil {
			return 0, err
		}
		t.freeTrial++

		return loss, nil
	}

	t.freeTrial = 0
	t.summary.Exchanges++
	loss, err := t.opt.Evaluate(b)
	if err != nil {
		return 0, err
	}

	switch {
	case loss < t.score:
		if err := t.push(loss); err != nil {
			return 0, err
		}
	case t.rng.Float64() < t.cfg.PullProbability:
		t.pull(ctx)
	}

	return loss, nil
}

// Score is the best loss this trainer has observed, locally or by pulling.
func (t *Trainer) Score() float64 {
	return t.score
}

// Summary returns the counters accumulated so far.
func (t *Trainer) Summary() Summary {
	s := t.summary
	s.Score = t.score
	s.Elapsed = time.Since(t.start)

	return s
}

func (t *Trainer) push(loss float64) error {
	params, optState, err := t.opt.Snapshot()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	payload, err := model.Encode(model.New(t.cfg.ID, params, optState, loss))
	if err != nil {
		return err
	}
	t.score = loss

	// Delivery is best effort; the sender is never told what happened.
	if err := t.uploads.Send(payload); err != nil {
		t.summary.PushFailures++
		t.logger.Warn("Failed to push candidate", slog.Float64("loss", loss), slog.Any("error", err))

		return nil
	}
	t.summary.Pushes++

	return nil
}

func (t *Trainer) pull(ctx context.Context) {
	best, ok := t.best.Read()
	if !ok {
		t.summary.EmptyPulls++

		return
	}
	if err := t.opt.Load(best.Params(), best.OptimizerState()); err != nil {
		t.logger.Warn("Failed to load pulled model", slog.Uint64("version", best.Version()), slog.Any("error", err))

		return
	}
	t.score = best.Loss()
	t.summary.Pulls++
	t.summary.PullVersion = best.Version()

	if err := t.pulls.Record(ctx, best.Loss()); err != nil {
		t.logger.Warn("Failed to record pull sample", slog.Any("error", err))
	}
}

func (t *Trainer) finish(err error) (Summary, error) {
	t.summary.Score = t.score
	t.summary.Elapsed = time.Since(t.start)
	if err != nil {
		t.summary.Err = err.Error()
	}

	return t.summary, err
}
