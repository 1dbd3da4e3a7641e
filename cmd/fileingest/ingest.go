package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maneesh/fileingest/internal/config"
	"github.com/maneesh/fileingest/internal/ingest"
	"github.com/maneesh/fileingest/internal/metrics"
	"github.com/maneesh/fileingest/internal/rpc"
)

func newIngestCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run the ingestion service (upload.UploadService over gRPC)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := startProcess(cfg, "ingest")
			if err != nil {
				return err
			}
			defer p.stop()
			log := p.log

			blobs, err := openBlobStore(p.ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("failed to initialize blob store: %w", err)
			}
			log.Infow("blob store initialized", "backend", cfg.Ingest.BlobBackend)

			conn, err := rpc.Dial(cfg.Gateway.MetadataServiceAddr)
			if err != nil {
				return fmt.Errorf("failed to dial metadata service: %w", err)
			}
			defer conn.Close()

			m := metrics.New()
			svc := ingest.NewService(blobs, rpc.NewMetadataClient(conn), log,
				ingest.WithKeyPrefix(cfg.Ingest.BlobKeyPrefix),
				ingest.WithMetrics(m),
			)

			srv, hs := rpc.NewServer(log)
			rpc.RegisterUploadServer(srv, rpc.NewUploadHandler(svc))

			go rpc.WatchReadiness(p.ctx, hs, 5*time.Second, blobs)
			go m.Serve(p.ctx, ":"+cfg.Ingest.MetricsPort, log)

			return serveGRPC(p.ctx, srv, cfg.Ingest.GRPCPort, log)
		},
	}

	cmd.Flags().StringVar(&cfg.Ingest.GRPCPort, "port", cfg.Ingest.GRPCPort, "gRPC listen port")
	cmd.Flags().StringVar(&cfg.Ingest.BlobBackend, "blob-backend", cfg.Ingest.BlobBackend, "blob store backend (minio|s3|memory)")
	cmd.Flags().StringVar(&cfg.Gateway.MetadataServiceAddr, "metadata-addr", cfg.Gateway.MetadataServiceAddr, "metadata service address")
	cmd.Flags().StringVar(&cfg.Ingest.MetricsPort, "metrics-port", cfg.Ingest.MetricsPort, "Prometheus metrics listen port")
	return cmd
}
