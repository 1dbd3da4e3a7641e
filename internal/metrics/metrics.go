package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Result label values
const (
	ResultSuccess = "success"
	ResultInvalid = "invalid"
	ResultStorage = "storage_error"
	ResultCommit  = "commit_error"
	ResultAborted = "aborted"
	ResultError   = "error"
)

// Metrics holds the collectors of one process
type Metrics struct {
	registry *prometheus.Registry

	UploadsTotal    *prometheus.CounterVec
	UploadBytes     prometheus.Histogram
	UploadDuration  prometheus.Histogram
	GatewayRequests *prometheus.CounterVec
	MetadataSaves   *prometheus.CounterVec
	MetadataLists   *prometheus.CounterVec
	CacheLookups    *prometheus.CounterVec
	OrphansDetected prometheus.Gauge
	OrphansRemoved  prometheus.Counter
}

// New registers every collector on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		UploadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fileingest",
			Name:      "uploads_total",
			Help:      "Upload streams handled by the ingestion service, by result.",
		}, []string{"result"}),
		UploadBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fileingest",
			Name:      "upload_bytes",
			Help:      "Size of reassembled upload payloads.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}),
		UploadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fileingest",
			Name:      "upload_duration_seconds",
			Help:      "Time from stream open to terminal result.",
			Buckets:   prometheus.DefBuckets,
		}),
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fileingest",
			Name:      "gateway_requests_total",
			Help:      "Gateway HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		MetadataSaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fileingest",
			Name:      "metadata_saves_total",
			Help:      "Metadata records saved, by result.",
		}, []string{"result"}),
		MetadataLists: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fileingest",
			Name:      "metadata_lists_total",
			Help:      "Metadata list calls, by result.",
		}, []string{"result"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fileingest",
			Name:      "cache_lookups_total",
			Help:      "File list cache lookups, by status.",
		}, []string{"status"}),
		OrphansDetected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fileingest",
			Name:      "orphan_objects",
			Help:      "Blob objects without a metadata record found by the last sweep.",
		}),
		OrphansRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "fileingest",
			Name:      "orphan_objects_removed_total",
			Help:      "Orphan blob objects deleted by the reconciler.",
		}),
	}

	reg.MustRegister(
		m.UploadsTotal,
		m.UploadBytes,
		m.UploadDuration,
		m.GatewayRequests,
		m.MetadataSaves,
		m.MetadataLists,
		m.CacheLookups,
		m.OrphansDetected,
		m.OrphansRemoved,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveUpload records one terminal upload outcome
func (m *Metrics) ObserveUpload(result string, size int64, started time.Time) {
	m.UploadsTotal.WithLabelValues(result).Inc()
	if result == ResultSuccess {
		m.UploadBytes.Observe(float64(size))
	}
	m.UploadDuration.Observe(time.Since(started).Seconds())
}

// Serve exposes /metrics on addr until ctx is done
func (m *Metrics) Serve(ctx context.Context, addr string, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Infow("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Errorw("metrics server failed", "error", err)
	}
}
