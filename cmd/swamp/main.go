package main

import (
	"log"
	"os"

	"github.com/absmach/swamp"
	"github.com/absmach/swamp/cli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const pathEnv = ".env"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "swamp",
		Short: "Swamp asynchronous training",
		Long:  `Swamp trains a model with concurrent trainers that exchange candidates through a validating parameter server.`,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if _, err := os.Stat(pathEnv); err == nil {
				_ = godotenv.Load(pathEnv)
			}
			cfg, err := swamp.LoadConfig(configPath)
			if err != nil {
				return err
			}
			cli.SetConfig(cfg)

			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a TOML config file")
	rootCmd.AddCommand(cli.NewTrainCmd(), cli.NewEvalCmd(), cli.NewReportCmd(), cli.NewStatusCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
