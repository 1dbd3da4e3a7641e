package handlers

import (
	"net/http"
	"strconv"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"
	"github.com/maneesh/fileingest/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Relay is what the gateway routes need from the downstream services
type Relay interface {
	Uploader
	Lister
}

// NewRouter wires the gateway routes. m may be nil.
func NewRouter(relay Relay, maxUploadBytes int64, m *metrics.Metrics, log *zap.SugaredLogger) *mux.Router {
	router := mux.NewRouter()

	// Health check endpoint (no tracing needed)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	if m != nil {
		router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	}

	upload := NewUploadHandler(relay, maxUploadBytes, log)
	files := NewFilesHandler(relay, log)

	router.Handle("/upload", instrument(upload, "POST /upload", m, log)).Methods(http.MethodPost)
	router.Handle("/files", instrument(files, "GET /files", m, log)).Methods(http.MethodGet)

	return router
}

func instrument(h http.Handler, route string, m *metrics.Metrics, log *zap.SugaredLogger) http.Handler {
	counted := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snoop := httpsnoop.CaptureMetrics(h, w, r)
		if m != nil {
			m.GatewayRequests.WithLabelValues(route, strconv.Itoa(snoop.Code)).Inc()
		}
		log.Infow("http",
			"route", route,
			"code", snoop.Code,
			"bytes", snoop.Written,
			"duration", snoop.Duration,
		)
	})
	return otelhttp.NewHandler(counted, route)
}
