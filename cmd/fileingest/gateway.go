package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/maneesh/fileingest/internal/config"
	"github.com/maneesh/fileingest/internal/gateway"
	"github.com/maneesh/fileingest/internal/handlers"
	"github.com/maneesh/fileingest/internal/metrics"
	"github.com/maneesh/fileingest/internal/rpc"
)

func newGatewayCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Run the HTTP gateway (POST /upload, GET /files)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := startProcess(cfg, "gateway")
			if err != nil {
				return err
			}
			defer p.stop()
			log := p.log

			uploadConn, err := rpc.Dial(cfg.Gateway.UploadServiceAddr)
			if err != nil {
				return fmt.Errorf("failed to dial upload service: %w", err)
			}
			defer uploadConn.Close()

			metaConn, err := rpc.Dial(cfg.Gateway.MetadataServiceAddr)
			if err != nil {
				return fmt.Errorf("failed to dial metadata service: %w", err)
			}
			defer metaConn.Close()

			relay := gateway.NewRelay(
				rpc.NewUploadClient(uploadConn),
				rpc.NewMetadataClient(metaConn),
				log,
				gateway.WithChunkSize(cfg.GetChunkSizeBytes()),
			)

			router := handlers.NewRouter(relay, cfg.GetMaxUploadBytes(), metrics.New(), log)

			srv := &http.Server{
				Addr:         ":" + cfg.Gateway.Port,
				Handler:      router,
				ReadTimeout:  5 * time.Minute,
				WriteTimeout: 5 * time.Minute,
				IdleTimeout:  60 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Infow("gateway listening",
					"port", cfg.Gateway.Port,
					"upload_service", cfg.Gateway.UploadServiceAddr,
					"metadata_service", cfg.Gateway.MetadataServiceAddr,
				)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("gateway failed: %w", err)
				}
				return nil
			case <-p.ctx.Done():
			}

			log.Infow("shutting down gateway")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				log.Warnw("gateway forced to shutdown", "error", err)
			}
			log.Infow("server exited")
			return nil
		},
	}

	cmd.Flags().StringVar(&cfg.Gateway.Port, "port", cfg.Gateway.Port, "HTTP listen port")
	cmd.Flags().StringVar(&cfg.Gateway.UploadServiceAddr, "upload-addr", cfg.Gateway.UploadServiceAddr, "ingestion service address")
	cmd.Flags().StringVar(&cfg.Gateway.MetadataServiceAddr, "metadata-addr", cfg.Gateway.MetadataServiceAddr, "metadata service address")
	return cmd
}
