package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/maneesh/fileingest/internal/gateway"
	"github.com/maneesh/fileingest/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("fileingest-handlers")

const (
	formField       = "file"
	defaultMimetype = "application/octet-stream"
	multipartMemory = 32 << 20
)

// Uploader relays one buffered file to the ingestion service
type Uploader interface {
	Upload(ctx context.Context, filename, mimetype string, payload []byte) (*models.UploadResult, error)
}

// UploadHandler handles multipart file uploads
type UploadHandler struct {
	relay    Uploader
	maxBytes int64
	log      *zap.SugaredLogger
}

// NewUploadHandler creates a new upload handler. maxBytes <= 0 disables the
// request size cap.
func NewUploadHandler(relay Uploader, maxBytes int64, log *zap.SugaredLogger) *UploadHandler {
	return &UploadHandler{
		relay:    relay,
		maxBytes: maxBytes,
		log:      log,
	}
}

// ServeHTTP handles POST /upload with the file in the "file" form field
func (uh *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "upload_file",
		trace.WithSpanKind(trace.SpanKindServer),
	)
	defer span.End()

	if uh.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, uh.maxBytes)
	}

	// Step 1: Buffer the uploaded part
	filename, mimetype, payload, err := readUpload(r)
	if err != nil {
		span.RecordError(err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			uh.log.Warnw("upload too large", "limit", tooLarge.Limit)
			writeMessage(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		uh.log.Warnw("upload without file", "error", err)
		writeMessage(w, http.StatusBadRequest, "No file uploaded")
		return
	}

	span.SetAttributes(
		attribute.String("file_name", filename),
		attribute.Int("file_size", len(payload)),
	)

	// Step 2: Relay to the ingestion service
	res, err := uh.relay.Upload(ctx, filename, mimetype, payload)
	switch {
	case errors.Is(err, gateway.ErrNoPayload):
		writeMessage(w, http.StatusBadRequest, "No file uploaded")
		return
	case err != nil:
		span.RecordError(err)
		writeMessage(w, http.StatusInternalServerError, "Failed to upload file")
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func readUpload(r *http.Request) (string, string, []byte, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return "", "", nil, err
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	file, header, err := r.FormFile(formField)
	if err != nil {
		return "", "", nil, err
	}
	defer file.Close()

	payload, err := io.ReadAll(file)
	if err != nil {
		return "", "", nil, err
	}

	mimetype := header.Header.Get("Content-Type")
	if mimetype == "" {
		mimetype = defaultMimetype
	}
	return header.Filename, mimetype, payload, nil
}

type messageResponse struct {
	Message string `json:"message"`
}

func writeMessage(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, messageResponse{Message: msg})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
