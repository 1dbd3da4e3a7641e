package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/maneesh/fileingest/internal/config"
	"github.com/maneesh/fileingest/internal/metrics"
	"github.com/maneesh/fileingest/internal/reconcile"
	"github.com/maneesh/fileingest/internal/rpc"
)

func newReconcileCmd(cfg *config.Config) *cobra.Command {
	var remove bool

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Find blob objects without a metadata record",
		Long: "Lists uploaded objects older than the grace period that no metadata record\n" +
			"points at. Orphans are only reported unless --delete is given. With a\n" +
			"non-zero --interval the sweep repeats until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := startProcess(cfg, "reconcile")
			if err != nil {
				return err
			}
			defer p.stop()
			log := p.log

			blobs, err := openBlobStore(p.ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("failed to initialize blob store: %w", err)
			}

			conn, err := rpc.Dial(cfg.Gateway.MetadataServiceAddr)
			if err != nil {
				return fmt.Errorf("failed to dial metadata service: %w", err)
			}
			defer conn.Close()

			m := metrics.New()
			r := reconcile.New(blobs, rpc.NewMetadataClient(conn), log,
				reconcile.WithPrefix(cfg.Ingest.BlobKeyPrefix),
				reconcile.WithGrace(cfg.Reconcile.Grace),
				reconcile.WithDelete(remove),
				reconcile.WithMetrics(m),
			)

			if cfg.Reconcile.Interval > 0 {
				go m.Serve(p.ctx, ":"+cfg.Reconcile.MetricsPort, log)
				r.Loop(p.ctx, cfg.Reconcile.Interval)
				return nil
			}

			report, err := r.Run(p.ctx)
			if report != nil {
				printReport(cmd, report, remove)
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&remove, "delete", false, "delete the orphans found")
	cmd.Flags().DurationVar(&cfg.Reconcile.Grace, "grace", cfg.Reconcile.Grace, "skip objects younger than this")
	cmd.Flags().DurationVar(&cfg.Reconcile.Interval, "interval", cfg.Reconcile.Interval, "repeat the sweep at this interval (0 runs once)")
	cmd.Flags().StringVar(&cfg.Ingest.BlobKeyPrefix, "prefix", cfg.Ingest.BlobKeyPrefix, "object key prefix to sweep")
	cmd.Flags().StringVar(&cfg.Reconcile.MetricsPort, "metrics-port", cfg.Reconcile.MetricsPort, "Prometheus metrics listen port")
	return cmd
}

func printReport(cmd *cobra.Command, report *reconcile.Report, removed bool) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "scanned %d objects, %d orphans", report.Scanned, len(report.Orphans))
	if removed {
		fmt.Fprintf(out, ", %d removed", report.Removed)
	}
	fmt.Fprintln(out)

	if len(report.Orphans) == 0 {
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tSIZE\tAGE")
	for _, o := range report.Orphans {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", o.Key, humanize.IBytes(uint64(o.Size)), humanize.Time(o.LastModified))
	}
	tw.Flush()
}
