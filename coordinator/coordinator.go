// Package coordinator runs one swamp training job: a parameter server and a
// fixed set of trainers sharing an upload queue and a best-model register.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/0x6flab/namegenerator"
	"github.com/absmach/swamp/pkg/data"
	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/optim"
	"github.com/absmach/swamp/pkg/queue"
	"github.com/absmach/swamp/pkg/register"
	"github.com/absmach/swamp/pkg/series"
	"github.com/absmach/swamp/pkg/usage"
	"github.com/absmach/swamp/ps"
	"github.com/absmach/swamp/trainer"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	errTrainerCount  = errors.New("trainer count must be positive")
	errBatchSize     = errors.New("batch sizes must be positive")
	errNoFactory     = errors.New("optimizer factory is required")
	errNoTrainData   = errors.New("training data is required")
	errNoValidation  = errors.New("validation data is required")
	errShardTooSmall = errors.New("training data has fewer samples than trainers")
)

type Config struct {
	RunID              string    `env:"RUN_ID"               envDefault:""      toml:"run_id"`
	RunName            string    `env:"RUN_NAME"             envDefault:""      toml:"run_name"`
	Trainers           int       `env:"TRAINER_COUNT"        envDefault:"1"     toml:"trainer_count"`
	Epochs             int       `env:"EPOCHS"               envDefault:"1"     toml:"epochs"`
	BatchSize          int       `env:"BATCH_SIZE"           envDefault:"64"    toml:"batch_size"`
	ValidateBatchSize  int       `env:"VALIDATE_BATCH_SIZE"  envDefault:"64"    toml:"validate_batch_size"`
	FreeTrialSteps     int       `env:"FREE_TRIAL_STEPS"     envDefault:"10"    toml:"free_trial_steps"`
	PullProbability    float64   `env:"PULL_PROBABILITY"     envDefault:"0"     toml:"pull_probability"`
	LossSampleInterval int       `env:"LOSS_SAMPLE_INTERVAL" envDefault:"1"     toml:"loss_sample_interval"`
	LogInterval        int       `env:"LOG_INTERVAL"         envDefault:"50"    toml:"log_interval"`
	Seed               uint64    `env:"SEED"                 envDefault:"1"     toml:"seed"`
	// DrainOnFinish lets the parameter server handle every queued candidate
	// after the trainers finish instead of dropping them.
	DrainOnFinish bool `env:"DRAIN_ON_FINISH" envDefault:"false" toml:"drain_on_finish"`
	// UsageInterval is how often process CPU and memory are sampled. Zero
	// samples only at the start and end of the run.
	UsageInterval time.Duration `env:"USAGE_INTERVAL" envDefault:"1s" toml:"usage_interval"`
	PS            ps.Config     `envPrefix:"PS_" toml:"ps"`
}

func (c Config) Validate() error {
	var err error
	switch {
	case c.Trainers <= 0:
		err = errTrainerCount
	case c.BatchSize <= 0 || c.ValidateBatchSize <= 0:
		err = errBatchSize
	}
	if err != nil {
		return errors.Join(pkgerrors.ErrInvalidConfig, err)
	}

	return c.PS.Validate()
}

// Dependencies are the collaborators a run is built from. Train is split into
// one contiguous shard per trainer.
type Dependencies struct {
	Factory    optim.Factory
	Train      []data.Sample
	Validation []data.Sample
	// Sink receives loss samples; nil keeps none.
	Sink series.Sink
	// Exchange defaults to LocalExchange.
	Exchange Exchange
	// Hooks run after every publish, before the exchange's own hooks.
	Hooks []ps.PublishHook
	// Wrap decorates the parameter server, typically with middleware.
	Wrap   func(ps.Service) ps.Service
	Logger *slog.Logger
}

// Report describes a finished run.
type Report struct {
	RunID    string            `json:"run_id"`
	RunName  string            `json:"run_name"`
	Trainers []trainer.Summary `json:"trainers"`
	Failed   int               `json:"failed"`
	// Published is the number of versions the parameter server published.
	Published uint64     `json:"published"`
	Best      *BestModel `json:"best,omitempty"`
	// LowestPSLoss is the lowest loss in the parameter server series, +Inf
	// when nothing was recorded.
	LowestPSLoss float64       `json:"lowest_ps_loss"`
	Usage        usage.Summary `json:"usage"`
	Elapsed      time.Duration `json:"elapsed"`
}

type BestModel struct {
	Version   uint64    `json:"version"`
	Loss      float64   `json:"loss"`
	TrainerID string    `json:"trainer_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (r Report) MarshalJSON() ([]byte, error) {
	type alias Report

	return json.Marshal(struct {
		alias
		LowestPSLoss *float64 `json:"lowest_ps_loss"`
	}{
		alias:        alias(r),
		LowestPSLoss: finite(r.LowestPSLoss),
	})
}

type Coordinator struct {
	cfg  Config
	deps Dependencies
}

func New(cfg Config, deps Dependencies) (*Coordinator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	var err error
	switch {
	case deps.Factory == nil:
		err = errNoFactory
	case len(deps.Train) == 0:
		err = errNoTrainData
	case len(deps.Validation) == 0:
		err = errNoValidation
	case len(deps.Train) < cfg.Trainers:
		err = errShardTooSmall
	}
	if err != nil {
		return nil, errors.Join(pkgerrors.ErrInvalidConfig, err)
	}

	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if cfg.RunName == "" {
		cfg.RunName = namegenerator.NewGenerator().Generate()
	}
	if deps.Exchange == nil {
		deps.Exchange = LocalExchange()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With(slog.Group("run",
		slog.String("id", cfg.RunID),
		slog.String("name", cfg.RunName),
	))

	return &Coordinator{cfg: cfg, deps: deps}, nil
}

func (c *Coordinator) RunID() string {
	return c.cfg.RunID
}

func (c *Coordinator) RunName() string {
	return c.cfg.RunName
}

// Run starts the parameter server and every trainer, waits for the trainers
// and then stops the parameter server. Candidates still queued at that point
// are dropped unless DrainOnFinish is set. A failing trainer ends only itself
// and is counted in the report.
func (c *Coordinator) Run(ctx context.Context) (Report, error) {
	start := time.Now()
	logger := c.deps.Logger
	report := Report{RunID: c.cfg.RunID, RunName: c.cfg.RunName, LowestPSLoss: math.Inf(1)}

	uploads := queue.NewUnbounded[[]byte]()
	best := register.New()
	defer func() {
		if err := c.deps.Exchange.Close(context.Background()); err != nil {
			logger.Warn("Failed to close exchange", slog.Any("error", err))
		}
	}()

	svc, err := c.server(ctx, uploads, best)
	if err != nil {
		return report, err
	}

	trainers, err := c.trainers(ctx)
	if err != nil {
		return report, err
	}

	usageCtx, stopUsage := context.WithCancel(ctx)
	defer stopUsage()
	usageDone := make(chan usage.Summary, 1)
	go func() {
		usageDone <- usage.NewCollector().Sample(usageCtx, c.cfg.UsageInterval)
	}()

	psCtx, stopPS := context.WithCancel(ctx)
	defer stopPS()
	psDone := make(chan error, 1)
	go func() {
		psDone <- ps.Run(psCtx, svc, uploads, c.cfg.PS.ReceiveTimeout, logger)
	}()
	logger.Info("Started swamp run", slog.Int("trainers", len(trainers)))

	summaries := make([]trainer.Summary, len(trainers))
	var g errgroup.Group
	for i, tr := range trainers {
		g.Go(func() error {
			s, err := tr.Run(ctx)
			summaries[i] = s
			if err != nil {
				logger.Warn("Trainer stopped with error", slog.String("trainer", s.ID), slog.Any("error", err))

				return fmt.Errorf("trainer %s: %w", s.ID, err)
			}
			logger.Info("Trainer finished",
				slog.String("trainer", s.ID),
				slog.Int("steps", s.Steps),
				slog.Int("pushes", s.Pushes),
				slog.Int("pulls", s.Pulls),
			)

			return nil
		})
	}
	_ = g.Wait()

	if !c.cfg.DrainOnFinish {
		stopPS()
	}
	uploads.Close()
	if err := <-psDone; err != nil {
		logger.Warn("Parameter server stopped with error", slog.Any("error", err))
	}

	stopUsage()
	report.Usage = <-usageDone
	report.Trainers = summaries
	for _, s := range summaries {
		if s.Err != "" {
			report.Failed++
		}
	}
	report.Published = best.Version()
	if s, ok := best.Read(); ok {
		report.Best = &BestModel{
			Version:   s.Version(),
			Loss:      s.Loss(),
			TrainerID: s.TrainerID(),
			CreatedAt: s.CreatedAt(),
		}
	}
	if c.deps.Sink != nil {
		samples, err := c.deps.Sink.Series(context.Background(), series.PSActor)
		if err != nil {
			logger.Warn("Failed to read parameter server series", slog.Any("error", err))
		}
		report.LowestPSLoss = series.Lowest(samples)
	}
	report.Elapsed = time.Since(start)

	logger.Info("Finished swamp run",
		slog.Uint64("published", report.Published),
		slog.Int("failed", report.Failed),
		slog.Float64("cpu_seconds", report.Usage.CPUSeconds),
		slog.Uint64("max_rss_bytes", report.Usage.MaxRSSBytes),
		slog.String("duration", report.Elapsed.String()),
	)

	return report, ctx.Err()
}

func (c *Coordinator) server(ctx context.Context, uploads *queue.Unbounded[[]byte], best *register.Register) (ps.Service, error) {
	hooks, err := c.deps.Exchange.Serve(ctx, uploads, best)
	if err != nil {
		return nil, fmt.Errorf("serve exchange: %w", err)
	}

	scratch, err := c.deps.Factory()
	if err != nil {
		return nil, fmt.Errorf("scratch optimizer: %w", err)
	}
	validation, err := data.NewSliceSource(c.deps.Validation, c.cfg.ValidateBatchSize)
	if err != nil {
		return nil, err
	}

	allHooks := append(append([]ps.PublishHook{}, c.deps.Hooks...), hooks...)
	svc, err := ps.NewService(c.cfg.PS, best, scratch, validation, c.deps.Sink, c.deps.Logger, allHooks...)
	if err != nil {
		return nil, err
	}
	if c.deps.Wrap != nil {
		svc = c.deps.Wrap(svc)
	}

	return svc, nil
}

func (c *Coordinator) trainers(ctx context.Context) ([]*trainer.Trainer, error) {
	trainers := make([]*trainer.Trainer, 0, c.cfg.Trainers)
	for i := range c.cfg.Trainers {
		id := fmt.Sprintf("trainer-%d", i)
		seed := c.cfg.Seed + uint64(i)

		src, err := data.NewShuffledSource(data.Shard(c.deps.Train, c.cfg.Trainers, i), c.cfg.BatchSize, seed)
		if err != nil {
			return nil, err
		}
		opt, err := c.deps.Factory()
		if err != nil {
			return nil, fmt.Errorf("optimizer for %s: %w", id, err)
		}
		uploads, best, err := c.deps.Exchange.Trainer(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("exchange for %s: %w", id, err)
		}

		tr, err := trainer.New(trainer.Config{
			ID:                 id,
			Epochs:             c.cfg.Epochs,
			FreeTrialSteps:     c.cfg.FreeTrialSteps,
			PullProbability:    c.cfg.PullProbability,
			LossSampleInterval: c.cfg.LossSampleInterval,
			LogInterval:        c.cfg.LogInterval,
			Seed:               seed,
		}, opt, src, uploads, best, c.deps.Sink, c.deps.Logger)
		if err != nil {
			return nil, err
		}
		trainers = append(trainers, tr)
	}

	return trainers, nil
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}

	return &v
}
