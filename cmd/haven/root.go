package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/havenos/haven/internal/config"
	"github.com/havenos/haven/internal/logging"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:           "haven",
	Short:         "Haven content workspace backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "haven:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	rootCmd.AddCommand(serveCmd, sweepCmd, backfillCmd, canvasCmd)
}

// loadConfig reads the configuration and builds the process logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	logger := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
