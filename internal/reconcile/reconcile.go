// Package reconcile finds blob objects that no metadata record points at.
// Such orphans are left behind when the metadata commit of an upload fails
// after its object was written.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/maneesh/fileingest/internal/metrics"
	"github.com/maneesh/fileingest/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("fileingest-reconcile")

// BlobStore lists and removes uploaded objects
type BlobStore interface {
	ListObjects(ctx context.Context, prefix string) ([]models.BlobObject, error)
	RemoveObject(ctx context.Context, key string) error
}

// Index is the metadata index the objects are checked against
type Index interface {
	GetAllFiles(ctx context.Context, req *models.GetAllFilesRequest) (*models.GetAllFilesReply, error)
}

// Report is the outcome of one sweep
type Report struct {
	Scanned int
	Orphans []models.BlobObject
	Removed int
}

// Reconciler sweeps the blob store for orphans
type Reconciler struct {
	blobs   BlobStore
	index   Index
	prefix  string
	grace   time.Duration
	remove  bool
	now     func() time.Time
	metrics *metrics.Metrics
	log     *zap.SugaredLogger
}

// Option configures a Reconciler
type Option func(*Reconciler)

// WithPrefix limits the sweep to keys under prefix
func WithPrefix(prefix string) Option {
	return func(r *Reconciler) { r.prefix = prefix }
}

// WithGrace skips objects younger than d. Their commit may still be in flight.
func WithGrace(d time.Duration) Option {
	return func(r *Reconciler) { r.grace = d }
}

// WithDelete removes the orphans found instead of only reporting them
func WithDelete(remove bool) Option {
	return func(r *Reconciler) { r.remove = remove }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithMetrics records sweep results
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// New creates a report-only reconciler
func New(blobs BlobStore, index Index, log *zap.SugaredLogger, opts ...Option) *Reconciler {
	r := &Reconciler{
		blobs:  blobs,
		index:  index,
		prefix: "uploads/",
		grace:  10 * time.Minute,
		now:    time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run performs one sweep. Objects are listed before the index so a record
// committed in between is still seen.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	ctx, span := tracer.Start(ctx, "reconcile.run")
	defer span.End()

	objects, err := r.blobs.ListObjects(ctx, r.prefix)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	reply, err := r.index.GetAllFiles(ctx, &models.GetAllFilesRequest{})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to list metadata: %w", err)
	}
	known := make(map[string]struct{}, len(reply.Files))
	for _, f := range reply.Files {
		known[f.FileURL] = struct{}{}
	}

	cutoff := r.now().Add(-r.grace)
	report := &Report{Scanned: len(objects)}
	for _, obj := range objects {
		if _, ok := known[obj.URL]; ok {
			continue
		}
		if obj.LastModified.After(cutoff) {
			continue
		}
		report.Orphans = append(report.Orphans, obj)
		r.log.Warnw("orphan object",
			"key", obj.Key,
			"size", humanize.IBytes(uint64(obj.Size)),
			"age", humanize.Time(obj.LastModified),
		)
	}

	var errs []error
	if r.remove {
		for _, obj := range report.Orphans {
			if err := r.blobs.RemoveObject(ctx, obj.Key); err != nil {
				errs = append(errs, fmt.Errorf("remove %s: %w", obj.Key, err))
				continue
			}
			report.Removed++
			r.log.Infow("orphan object removed", "key", obj.Key)
		}
	}

	span.SetAttributes(
		attribute.Int("objects_scanned", report.Scanned),
		attribute.Int("orphans_found", len(report.Orphans)),
		attribute.Int("orphans_removed", report.Removed),
	)
	if r.metrics != nil {
		r.metrics.OrphansDetected.Set(float64(len(report.Orphans)))
		r.metrics.OrphansRemoved.Add(float64(report.Removed))
	}
	r.log.Infow("reconcile sweep done",
		"scanned", report.Scanned,
		"orphans", len(report.Orphans),
		"removed", report.Removed,
		"delete", r.remove,
	)

	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		return report, err
	}
	return report, nil
}

// Loop sweeps every interval until ctx is done. A failed sweep is logged and
// retried on the next tick.
func (r *Reconciler) Loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := r.Run(ctx); err != nil {
			r.log.Errorw("reconcile sweep failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
