package cli

import (
	"github.com/absmach/swamp/pkg/sdk"
	"github.com/spf13/cobra"
)

var (
	statusURL string
	defOffset uint64
	defLimit  uint64 = 100
)

func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [best|series|snapshots|evals]",
		Short: "Query a running job",
		Long:  `Query the status API of a running training job.`,
	}

	client := func() sdk.SDK {
		return sdk.NewSDK(sdk.Config{URL: statusURL})
	}

	bestCmd := &cobra.Command{
		Use:   "best",
		Short: "Show the published model",
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 0 {
				logUsageCmd(*cmd, cmd.Use)

				return
			}
			b, err := client().Best()
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, b)
		},
	}

	seriesCmd := &cobra.Command{
		Use:   "series [actor]",
		Short: "List actors or show one actor's loss series",
		Run: func(cmd *cobra.Command, args []string) {
			switch len(args) {
			case 0:
				actors, err := client().Actors()
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, actors)
			case 1:
				page, err := client().Series(args[0], defOffset, defLimit)
				if err != nil {
					logErrorCmd(*cmd, err)

					return
				}
				logJSONCmd(*cmd, page)
			default:
				logUsageCmd(*cmd, cmd.Use)
			}
		},
	}

	snapshotsCmd := &cobra.Command{
		Use:   "snapshots",
		Short: "List stored published models",
		Run: func(cmd *cobra.Command, _ []string) {
			page, err := client().Snapshots(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	evalsCmd := &cobra.Command{
		Use:   "evals",
		Short: "List stored evaluation results",
		Run: func(cmd *cobra.Command, _ []string) {
			page, err := client().Evals(defOffset, defLimit)
			if err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logJSONCmd(*cmd, page)
		},
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check the status API",
		Run: func(cmd *cobra.Command, _ []string) {
			if err := client().Health(); err != nil {
				logErrorCmd(*cmd, err)

				return
			}
			logSuccessCmd(*cmd, "ok")
		},
	}

	cmd.AddCommand(bestCmd, seriesCmd, snapshotsCmd, evalsCmd, healthCmd)

	cmd.PersistentFlags().StringVarP(&statusURL, "url", "u", "http://localhost:9090", "Status API URL")
	cmd.PersistentFlags().Uint64VarP(&defOffset, "offset", "o", defOffset, "Page offset")
	cmd.PersistentFlags().Uint64VarP(&defLimit, "limit", "L", defLimit, "Page size")

	return cmd
}
