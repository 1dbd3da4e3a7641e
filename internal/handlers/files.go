package handlers

import (
	"context"
	"net/http"

	"github.com/maneesh/fileingest/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Lister returns every file metadata record
type Lister interface {
	ListFiles(ctx context.Context) ([]*models.FileMetadata, error)
}

// FilesHandler lists uploaded files
type FilesHandler struct {
	lister Lister
	log    *zap.SugaredLogger
}

// NewFilesHandler creates a new files handler
func NewFilesHandler(lister Lister, log *zap.SugaredLogger) *FilesHandler {
	return &FilesHandler{lister: lister, log: log}
}

type filesResponse struct {
	Files []*models.FileMetadata `json:"files"`
}

// ServeHTTP handles GET /files
func (fh *FilesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "list_files",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	files, err := fh.lister.ListFiles(ctx)
	if err != nil {
		span.RecordError(err)
		writeMessage(w, http.StatusInternalServerError, "Failed to get files")
		return
	}

	span.SetAttributes(attribute.Int("file_count", len(files)))
	writeJSON(w, http.StatusOK, filesResponse{Files: files})
}
