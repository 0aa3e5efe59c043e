package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/incident-ingest-service/internal/config"
	"github.com/couchcryptid/incident-ingest-service/internal/observability"
	"github.com/spf13/cobra"
)

var version = "dev"

var (
	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ingest",
		Short:         "Incident ingestion service",
		Long:          "ingest pulls incident candidates from news, weather, and social sources into the incident store.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger = observability.NewLogger(cfg)
			return nil
		},
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newRunCmd())
	root.AddCommand(newStatusCmd())
	return root
}
