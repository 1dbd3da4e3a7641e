package gateway

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/dustin/go-humanize"
	"github.com/maneesh/fileingest/internal/chunker"
	"github.com/maneesh/fileingest/internal/models"
	"github.com/maneesh/fileingest/internal/rpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var tracer = otel.Tracer("fileingest-gateway")

var (
	ErrNoPayload    = errors.New("no file uploaded")
	ErrUploadFailed = errors.New("failed to upload file")
	ErrListFailed   = errors.New("failed to get files")
)

var whitespace = regexp.MustCompile(`\s+`)

// NormalizeFilename replaces each run of whitespace with a single underscore
func NormalizeFilename(name string) string {
	return whitespace.ReplaceAllString(name, "_")
}

// Uploader opens upload streams to the ingestion service
type Uploader interface {
	UploadFile(ctx context.Context, opts ...grpc.CallOption) (rpc.UploadFileClient, error)
}

// Lister reads the metadata index
type Lister interface {
	GetAllFiles(ctx context.Context, req *models.GetAllFilesRequest) (*models.GetAllFilesReply, error)
}

// Relay turns buffered HTTP uploads into upload streams
type Relay struct {
	uploader  Uploader
	lister    Lister
	chunkSize int64
	log       *zap.SugaredLogger
}

// RelayOption configures a Relay
type RelayOption func(*Relay)

// WithChunkSize sets the largest data message sent downstream
func WithChunkSize(n int64) RelayOption {
	return func(r *Relay) { r.chunkSize = n }
}

// NewRelay creates a relay over the ingestion and metadata clients
func NewRelay(uploader Uploader, lister Lister, log *zap.SugaredLogger, opts ...RelayOption) *Relay {
	r := &Relay{
		uploader:  uploader,
		lister:    lister,
		chunkSize: chunker.DefaultChunkSize,
		log:       log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Upload streams payload to the ingestion service as one control message
// followed by data messages in order. Any downstream failure is reported as
// ErrUploadFailed.
func (r *Relay) Upload(ctx context.Context, filename, mimetype string, payload []byte) (*models.UploadResult, error) {
	if len(payload) == 0 {
		return nil, ErrNoPayload
	}
	filename = NormalizeFilename(filename)

	ctx, span := tracer.Start(ctx, "gateway.relay_upload")
	defer span.End()
	span.SetAttributes(
		attribute.String("file_name", filename),
		attribute.String("mimetype", mimetype),
		attribute.Int("file_size", len(payload)),
	)

	// The stream is torn down with ctx if we bail out before CloseAndRecv
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	res, chunks, err := r.send(ctx, filename, mimetype, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.Errorw("upload relay failed", "filename", filename, "chunks", chunks, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	span.SetAttributes(attribute.Int("chunk_count", chunks))
	r.log.Infow("upload relayed",
		"filename", filename,
		"size", humanize.IBytes(uint64(len(payload))),
		"chunks", chunks,
		"file_url", res.FileURL,
	)
	return res, nil
}

func (r *Relay) send(ctx context.Context, filename, mimetype string, payload []byte) (*models.UploadResult, int, error) {
	stream, err := r.uploader.UploadFile(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open upload stream: %w", err)
	}

	if err := stream.Send(&models.UploadChunk{Filename: filename, Mimetype: mimetype}); err != nil {
		return nil, 0, fmt.Errorf("failed to send file info: %w", err)
	}

	chunks := 0
	_, err = chunker.NewChunker(r.chunkSize).ChunkStream(bytes.NewReader(payload), func(c *models.ChunkData) error {
		if err := stream.Send(&models.UploadChunk{FileChunk: c.Data}); err != nil {
			return fmt.Errorf("failed to send chunk %d: %w", c.OrderIndex, err)
		}
		chunks++
		return nil
	})
	if err != nil {
		return nil, chunks, err
	}

	res, err := stream.CloseAndRecv()
	if err != nil {
		return nil, chunks, fmt.Errorf("upload rejected: %w", err)
	}
	return res, chunks, nil
}

// ListFiles returns every record of the metadata index
func (r *Relay) ListFiles(ctx context.Context) ([]*models.FileMetadata, error) {
	ctx, span := tracer.Start(ctx, "gateway.list_files")
	defer span.End()

	reply, err := r.lister.GetAllFiles(ctx, &models.GetAllFilesRequest{})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.log.Errorw("list files failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrListFailed, err)
	}
	files := reply.Files
	if files == nil {
		files = []*models.FileMetadata{}
	}
	span.SetAttributes(attribute.Int("file_count", len(files)))
	return files, nil
}
