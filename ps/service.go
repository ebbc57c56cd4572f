package ps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/absmach/swamp/pkg/data"
	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/model"
	"github.com/absmach/swamp/pkg/optim"
	"github.com/absmach/swamp/pkg/register"
	"github.com/absmach/swamp/pkg/series"
)

var (
	errValidateMaxBatches = errors.New("validate max batches must be positive")
	errNilDependency      = errors.New("register, scratch optimizer and validation source are required")
)

type Config struct {
	ValidateMaxBatches int           `env:"VALIDATE_MAX_BATCHES" envDefault:"5"   toml:"validate_max_batches"`
	ReceiveTimeout     time.Duration `env:"RECEIVE_TIMEOUT"      envDefault:"10s" toml:"receive_timeout"`
}

func (c Config) Validate() error {
	if c.ValidateMaxBatches <= 0 {
		return errors.Join(pkgerrors.ErrInvalidConfig, errValidateMaxBatches)
	}

	return nil
}

var _ Service = (*service)(nil)

type service struct {
	mu         sync.Mutex
	best       *register.Register
	scratch    optim.LocalOptimizer
	validation data.Source
	maxBatches int
	recorder   *series.Recorder
	hooks      []PublishHook
	logger     *slog.Logger
}

// NewService builds the parameter server. scratch is used only to evaluate
// candidates and is never exposed. sink may be nil.
func NewService(cfg Config, best *register.Register, scratch optim.LocalOptimizer, validation data.Source, sink series.Sink, logger *slog.Logger, hooks ...PublishHook) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if best == nil || scratch == nil || validation == nil {
		return nil, errors.Join(pkgerrors.ErrInvalidConfig, errNilDependency)
	}
	if logger == nil {
		logger = slog.Default()
	}

	svc := &service{
		best:       best,
		scratch:    scratch,
		validation: validation,
		maxBatches: cfg.ValidateMaxBatches,
		hooks:      hooks,
		logger:     logger,
	}
	if sink != nil {
		svc.recorder = series.NewRecorder(sink, series.PSActor, time.Now())
	}

	return svc, nil
}

func (svc *service) Handle(ctx context.Context, payload []byte) (Decision, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	score := svc.score()
	candidate, err := model.Decode(payload)
	if err != nil {
		return Decision{Outcome: OutcomeMalformed, PreviousScore: score}, err
	}

	d := Decision{
		TrainerID:     candidate.TrainerID(),
		CandidateLoss: candidate.Loss(),
		PreviousScore: score,
	}

	if !(candidate.Loss() < score) {
		d.Outcome = OutcomeDiscarded

		return d, nil
	}

	if err := svc.scratch.Load(candidate.Params(), candidate.OptimizerState()); err != nil {
		d.Outcome = OutcomeMalformed

		return d, fmt.Errorf("%w: %w", model.ErrMalformed, err)
	}

	v, err := Validate(ctx, svc.scratch, svc.validation, svc.maxBatches)
	if err != nil {
		d.Outcome = OutcomeRejected

		return d, err
	}
	if v.Exhausted {
		svc.logger.Debug("Validation source exhausted before the batch cap",
			slog.Int("batches", v.Batches),
			slog.Int("max_batches", svc.maxBatches),
		)
	}
	d.Validated = true
	d.DoubleCheckLoss = v.Loss

	if !(v.Loss < score) {
		d.Outcome = OutcomeRejected

		return d, nil
	}

	published := svc.best.Publish(candidate.WithLoss(v.Loss))
	d.Outcome = OutcomeAccepted
	d.Version = published.Version()

	if err := svc.recorder.Record(ctx, v.Loss); err != nil {
		svc.logger.Warn("Failed to record parameter server loss", slog.Any("error", err))
	}
	svc.runHooks(ctx, published)

	return d, nil
}

func (svc *service) Best(ctx context.Context) (model.State, bool) {
	return svc.best.Read()
}

func (svc *service) Score(ctx context.Context) float64 {
	return svc.score()
}

// score is the loss of the published model. Published snapshots carry their
// double-check loss, so the register alone is the source of truth.
func (svc *service) score() float64 {
	s, ok := svc.best.Read()
	if !ok {
		return math.Inf(1)
	}

	return s.Loss()
}

func (svc *service) runHooks(ctx context.Context, published model.State) {
	for _, h := range svc.hooks {
		if err := h.OnPublish(ctx, published); err != nil {
			svc.logger.Warn("Publish hook failed",
				slog.Uint64("version", published.Version()),
				slog.Any("error", err),
			)
		}
	}
}
