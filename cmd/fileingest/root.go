package main

import (
	"github.com/spf13/cobra"

	"github.com/maneesh/fileingest/internal/config"
	"github.com/maneesh/fileingest/internal/tracing"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "fileingest",
		Short:         "Chunked file ingestion: gateway, ingestion and metadata services",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = tracing.Version
	cmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")

	cmd.AddCommand(
		newGatewayCmd(cfg),
		newIngestCmd(cfg),
		newMetadataCmd(cfg),
		newReconcileCmd(cfg),
		newUploadCmd(cfg),
		newListCmd(cfg),
	)

	return cmd
}
