package cli

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/absmach/swamp"
	"github.com/absmach/swamp/pkg/history"
	"github.com/absmach/swamp/pkg/series"
	"github.com/absmach/swamp/pkg/storage"
	"github.com/spf13/cobra"
)

const listLimit = 1000

type actorReport struct {
	Actor   string   `json:"actor"`
	Samples int      `json:"samples"`
	Lowest  *float64 `json:"lowest_loss,omitempty"`
}

type runReport struct {
	RunID        string               `json:"run_id"`
	LowestPSLoss *float64             `json:"lowest_ps_loss,omitempty"`
	Actors       []actorReport        `json:"actors"`
	Snapshots    uint64               `json:"snapshots"`
	Evals        []history.EvalResult `json:"evals,omitempty"`
}

func NewReportCmd() *cobra.Command {
	var storeType, storePath string

	cmd := &cobra.Command{
		Use:   "report <run_id>",
		Short: "Summarise a stored run",
		Long:  `Summarise the loss series, snapshots and evaluation results stored for a run.`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}

			cfg := *conf
			flags := cmd.Flags()
			if !flags.Changed("storage") {
				storeType = ""
			}
			if !flags.Changed("storage-path") {
				storePath = ""
			}
			cfg.Storage = historyStorage(cfg.Storage, storeType, storePath)

			r, err := report(cmd.Context(), cfg, args[0])
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, r)
		},
	}

	cmd.Flags().StringVar(&storeType, "storage", "badger", "Storage backend: badger, sqlite or postgres")
	cmd.Flags().StringVar(&storePath, "storage-path", "./data/badger", "Badger directory or SQLite file")

	return cmd
}

func report(ctx context.Context, cfg swamp.Config, runID string) (runReport, error) {
	repos, err := storage.NewRepositories(cfg.Storage, runID)
	if err != nil {
		return runReport{}, fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := repos.Close(); err != nil {
			slog.Error("failed to close storage", slog.Any("error", err))
		}
	}()

	r := runReport{RunID: runID}
	actors, err := repos.Series.Actors(ctx)
	if err != nil {
		return runReport{}, err
	}
	for _, actor := range actors {
		samples, err := repos.Series.Series(ctx, actor)
		if err != nil {
			return runReport{}, err
		}
		lowest := series.Lowest(samples)
		r.Actors = append(r.Actors, actorReport{
			Actor:   actor,
			Samples: len(samples),
			Lowest:  finite(lowest),
		})
		if actor == series.PSActor {
			r.LowestPSLoss = finite(lowest)
		}
	}

	_, r.Snapshots, err = repos.Snapshots.List(ctx, runID, 0, 0)
	if err != nil {
		return runReport{}, err
	}
	r.Evals, _, err = repos.Evals.List(ctx, runID, 0, listLimit)
	if err != nil {
		return runReport{}, err
	}

	return r, nil
}

func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}

	return &v
}
