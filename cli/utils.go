package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/absmach/swamp/pkg/storage"
	"github.com/fatih/color"
	prettyjson "github.com/hokaccha/go-prettyjson"
	"github.com/spf13/cobra"
)

func logJSONCmd(cmd cobra.Command, iList ...any) {
	for _, i := range iList {
		m, err := json.Marshal(i)
		if err != nil {
			logErrorCmd(cmd, err)

			return
		}

		pj, err := prettyjson.Format(m)
		if err != nil {
			logErrorCmd(cmd, err)

			return
		}

		fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n\n", string(pj))
	}
}

func logUsageCmd(cmd cobra.Command, u string) {
	fmt.Fprint(cmd.OutOrStdout(), color.YellowString("\nusage: %s\n\n", u))
}

func logErrorCmd(cmd cobra.Command, err error) {
	boldRed := color.New(color.FgRed, color.Bold)
	boldRed.Fprintf(cmd.ErrOrStderr(), "\nerror: ")

	fmt.Fprintf(cmd.ErrOrStderr(), "%s\n\n", color.RedString(err.Error()))
}

func logSuccessCmd(cmd cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n\n", color.BlueString(msg))
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("failed to parse log level: %w", err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)

	return logger, nil
}

// historyStorage picks the backend eval and report read a finished run from.
// The in-memory backend does not outlive a run, so badger stands in for it.
func historyStorage(cfg storage.Config, storeType, path string) storage.Config {
	if storeType != "" {
		cfg.Type = storeType
	}
	if !cfg.Persistent() {
		cfg.Type = "badger"
	}

	return withStoragePath(cfg, path)
}

// withStoragePath points the file based backends at path.
func withStoragePath(cfg storage.Config, path string) storage.Config {
	if path == "" {
		return cfg
	}
	switch cfg.Type {
	case "sqlite":
		cfg.SQLitePath = path
	default:
		cfg.BadgerPath = path
	}

	return cfg
}
