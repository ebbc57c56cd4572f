// Package eval re-validates the snapshots a run published, in parallel.
package eval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/absmach/swamp/pkg/data"
	pkgerrors "github.com/absmach/swamp/pkg/errors"
	"github.com/absmach/swamp/pkg/history"
	"github.com/absmach/swamp/pkg/model"
	"github.com/absmach/swamp/pkg/optim"
	"github.com/absmach/swamp/ps"
	"golang.org/x/sync/errgroup"
)

const pageSize = 100

var (
	errConcurrency = errors.New("concurrency must be positive")
	errBatchSize   = errors.New("batch size must be positive")
	errRunID       = errors.New("run ID is required")
	errNoData      = errors.New("evaluation data is required")
)

type Config struct {
	RunID       string `env:"RUN_ID"      envDefault:""   toml:"run_id"`
	Concurrency int    `env:"CONCURRENCY" envDefault:"4"  toml:"concurrency"`
	BatchSize   int    `env:"BATCH_SIZE"  envDefault:"64" toml:"batch_size"`
	// MaxBatches of 0 evaluates every batch.
	MaxBatches int `env:"MAX_BATCHES" envDefault:"0" toml:"max_batches"`
}

func (c Config) Validate() error {
	var err error
	switch {
	case c.RunID == "":
		err = errRunID
	case c.Concurrency <= 0:
		err = errConcurrency
	case c.BatchSize <= 0:
		err = errBatchSize
	}
	if err != nil {
		return errors.Join(pkgerrors.ErrInvalidConfig, err)
	}

	return nil
}

type Harness struct {
	cfg       Config
	factory   optim.Factory
	samples   []data.Sample
	snapshots history.SnapshotRepository
	results   history.EvalRepository
	logger    *slog.Logger
}

// New builds a harness. results may be nil, in which case nothing is stored.
func New(cfg Config, factory optim.Factory, samples []data.Sample, snapshots history.SnapshotRepository, results history.EvalRepository, logger *slog.Logger) (*Harness, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if factory == nil || snapshots == nil || len(samples) == 0 {
		return nil, errors.Join(pkgerrors.ErrInvalidConfig, errNoData)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Harness{
		cfg:       cfg,
		factory:   factory,
		samples:   samples,
		snapshots: snapshots,
		results:   results,
		logger:    logger.With(slog.String("run_id", cfg.RunID)),
	}, nil
}

// Run evaluates every stored snapshot of the run and returns the results in
// version order. Snapshots that cannot be decoded or loaded are skipped.
func (h *Harness) Run(ctx context.Context) ([]history.EvalResult, error) {
	g, ctx := errgroup.WithContext(ctx)
	jobs := make(chan history.Snapshot)

	g.Go(func() error {
		defer close(jobs)

		return h.produce(ctx, jobs)
	})

	var (
		mu      sync.Mutex
		results []history.EvalResult
	)
	for range h.cfg.Concurrency {
		g.Go(func() error {
			opt, err := h.factory()
			if err != nil {
				return err
			}
			src, err := data.NewSliceSource(h.samples, h.cfg.BatchSize)
			if err != nil {
				return err
			}

			for s := range jobs {
				res, err := h.evaluate(ctx, opt, src, s)
				switch {
				case errors.Is(err, model.ErrMalformed):
					h.logger.Warn("Skipping unreadable snapshot", slog.Uint64("version", s.Version), slog.Any("error", err))

					continue
				case err != nil:
					return err
				}

				mu.Lock()
				results = append(results, res)
				mu.Unlock()
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b history.EvalResult) int {
		return cmp.Compare(a.Version, b.Version)
	})
	h.logger.Info("Evaluation finished", slog.Int("snapshots", len(results)))

	return results, nil
}

func (h *Harness) produce(ctx context.Context, jobs chan<- history.Snapshot) error {
	for offset := uint64(0); ; offset += pageSize {
		page, total, err := h.snapshots.List(ctx, h.cfg.RunID, offset, pageSize)
		if err != nil {
			return fmt.Errorf("list snapshots: %w", err)
		}
		for _, s := range page {
			select {
			case jobs <- s:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if len(page) == 0 || offset+uint64(len(page)) >= total {
			return nil
		}
	}
}

func (h *Harness) evaluate(ctx context.Context, opt optim.LocalOptimizer, src data.Source, s history.Snapshot) (history.EvalResult, error) {
	start := time.Now()
	state, err := model.Decode(s.Payload)
	if err != nil {
		return history.EvalResult{}, err
	}
	if err := opt.Load(state.Params(), state.OptimizerState()); err != nil {
		return history.EvalResult{}, fmt.Errorf("%w: %w", model.ErrMalformed, err)
	}

	maxBatches := h.cfg.MaxBatches
	if maxBatches <= 0 {
		maxBatches = math.MaxInt
	}
	v, err := ps.Validate(ctx, opt, src, maxBatches)
	if err != nil {
		return history.EvalResult{}, fmt.Errorf("validate version %d: %w", s.Version, err)
	}

	res := history.EvalResult{
		RunID:       s.RunID,
		Version:     s.Version,
		Loss:        v.Loss,
		Batches:     v.Batches,
		Samples:     v.Samples,
		Elapsed:     time.Since(start),
		EvaluatedAt: time.Now().UTC(),
	}
	if h.results != nil {
		if err := h.results.Save(ctx, res); err != nil {
			return history.EvalResult{}, fmt.Errorf("save result %d: %w", s.Version, err)
		}
	}
	h.logger.Debug("Evaluated snapshot",
		slog.Uint64("version", s.Version),
		slog.Float64("loss", v.Loss),
		slog.Float64("published_loss", s.Loss),
	)

	return res, nil
}
