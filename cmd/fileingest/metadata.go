package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/maneesh/fileingest/internal/config"
	"github.com/maneesh/fileingest/internal/metadata"
	"github.com/maneesh/fileingest/internal/metrics"
	"github.com/maneesh/fileingest/internal/rpc"
	"github.com/maneesh/fileingest/internal/storage"
)

func newMetadataCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metadata",
		Short: "Run the metadata service (metadata.MetadataService over gRPC)",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := startProcess(cfg, "metadata")
			if err != nil {
				return err
			}
			defer p.stop()
			log := p.log

			log.Infow("connecting to metadata store", "driver", cfg.Metadata.Driver)
			store, err := storage.NewSQLClient(p.ctx, cfg.Metadata.Driver, cfg.GetDSN())
			if err != nil {
				return fmt.Errorf("failed to initialize metadata store: %w", err)
			}
			defer store.Close()

			m := metrics.New()
			opts := []metadata.Option{metadata.WithMetrics(m)}

			// The cache is optional; the service runs against the store alone
			if cfg.Redis.Enabled {
				rc, err := storage.NewRedisClient(p.ctx, cfg.GetRedisAddr(), cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.CacheTTL)
				if err != nil {
					log.Warnw("redis unavailable, listing without cache", "addr", cfg.GetRedisAddr(), "error", err)
				} else {
					defer rc.Close()
					opts = append(opts, metadata.WithCache(rc))
					log.Infow("redis cache initialized", "addr", cfg.GetRedisAddr(), "ttl", cfg.Redis.CacheTTL)
				}
			}

			svc := metadata.NewService(store, log, opts...)

			srv, hs := rpc.NewServer(log)
			rpc.RegisterMetadataServer(srv, rpc.NewMetadataHandler(svc))

			go rpc.WatchReadiness(p.ctx, hs, 5*time.Second, store)
			go m.Serve(p.ctx, ":"+cfg.Metadata.MetricsPort, log)

			return serveGRPC(p.ctx, srv, cfg.Metadata.GRPCPort, log)
		},
	}

	cmd.Flags().StringVar(&cfg.Metadata.GRPCPort, "port", cfg.Metadata.GRPCPort, "gRPC listen port")
	cmd.Flags().StringVar(&cfg.Metadata.Driver, "driver", cfg.Metadata.Driver, "metadata store driver (mysql|sqlite)")
	cmd.Flags().StringVar(&cfg.Metadata.SQLitePath, "sqlite-path", cfg.Metadata.SQLitePath, "database file for the sqlite driver")
	cmd.Flags().StringVar(&cfg.Metadata.MetricsPort, "metrics-port", cfg.Metadata.MetricsPort, "Prometheus metrics listen port")
	return cmd
}
