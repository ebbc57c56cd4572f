package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/absmach/swamp"
	"github.com/absmach/swamp/eval"
	"github.com/absmach/swamp/pkg/data"
	"github.com/absmach/swamp/pkg/history"
	"github.com/absmach/swamp/pkg/optim"
	"github.com/absmach/swamp/pkg/storage"
	"github.com/spf13/cobra"
)

func NewEvalCmd() *cobra.Command {
	var (
		concurrency int
		maxBatches  int
		storeType   string
		storePath   string
		logLevel    string
	)

	cmd := &cobra.Command{
		Use:   "eval <run_id>",
		Short: "Evaluate stored snapshots",
		Long: `Re-evaluate every model the run published on a held-out test set.

Examples:
  swamp eval 3f1c2a5e-... --concurrency 8`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cfg := *conf
			cfg.Eval.RunID = args[0]
			flags := cmd.Flags()
			if flags.Changed("concurrency") {
				cfg.Eval.Concurrency = concurrency
			}
			if flags.Changed("max-batches") {
				cfg.Eval.MaxBatches = maxBatches
			}
			if !flags.Changed("storage") {
				storeType = ""
			}
			if !flags.Changed("storage-path") {
				storePath = ""
			}
			cfg.Storage = historyStorage(cfg.Storage, storeType, storePath)
			if flags.Changed("log-level") {
				cfg.LogLevel = logLevel
			}

			results, err := evaluate(cmd.Context(), cfg)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, results)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&concurrency, "concurrency", 4, "Number of evaluation workers")
	flags.IntVar(&maxBatches, "max-batches", 0, "Batches per snapshot, 0 for the whole test set")
	flags.StringVar(&storeType, "storage", "badger", "Storage backend: badger, sqlite or postgres")
	flags.StringVar(&storePath, "storage-path", "./data/badger", "Badger directory or SQLite file")
	flags.StringVarP(&logLevel, "log-level", "l", "info", "Log level")

	return cmd
}

func evaluate(ctx context.Context, cfg swamp.Config) ([]history.EvalResult, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	repos, err := storage.NewRepositories(cfg.Storage, cfg.Eval.RunID)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			logger.Error("failed to close storage", slog.Any("error", err))
		}
	}()

	// The test set comes from the same problem as training but a seed no
	// trainer or validation set uses.
	weights, bias := data.Coefficients(cfg.Data.Features, cfg.Data.Seed)
	test := data.Linear(cfg.Data.ValidationSamples, weights, bias, cfg.Data.Noise, cfg.Data.Seed+2)

	h, err := eval.New(cfg.Eval, optim.LinearFactory(cfg.Data.Features, cfg.Optimizer.LearningRate, cfg.Optimizer.Momentum), test, repos.Snapshots, repos.Evals, logger)
	if err != nil {
		return nil, err
	}

	return h.Run(ctx)
}
