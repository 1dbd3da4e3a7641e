package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/maneesh/fileingest/internal/chunker"
	"github.com/maneesh/fileingest/internal/metrics"
	"github.com/maneesh/fileingest/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("fileingest-ingest")

// DefaultMimetype is recorded when the stream declares no content type
const DefaultMimetype = "application/octet-stream"

// SuccessMessage is the message of a committed upload
const SuccessMessage = "success"

var (
	ErrEmptyPayload    = errors.New("no file data received")
	ErrMissingFilename = errors.New("no filename received")
	ErrStreamAborted   = errors.New("upload stream aborted")
	ErrBlobWrite       = errors.New("failed to write file to blob store")
	ErrMetadataCommit  = errors.New("failed to save file metadata")
)

// BlobStore is the durable object store the payload is written to
type BlobStore interface {
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// MetadataSaver commits the record describing a written object
type MetadataSaver interface {
	SaveMetadata(ctx context.Context, req *models.SaveMetadataRequest) (*models.SaveMetadataReply, error)
}

// ChunkSource yields the messages of one upload stream and io.EOF once the
// sender has closed it normally.
type ChunkSource interface {
	Recv() (*models.UploadChunk, error)
}

// Service reassembles upload streams, writes them to the blob store and
// commits their metadata
type Service struct {
	blobs     BlobStore
	meta      MetadataSaver
	keyPrefix string
	now       func() time.Time
	metrics   *metrics.Metrics
	log       *zap.SugaredLogger
}

// Option configures a Service
type Option func(*Service)

// WithKeyPrefix sets the prefix of every object key
func WithKeyPrefix(prefix string) Option {
	return func(s *Service) { s.keyPrefix = prefix }
}

// WithClock replaces time.Now for key generation
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records upload outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates an ingestion service
func NewService(blobs BlobStore, meta MetadataSaver, log *zap.SugaredLogger, opts ...Option) *Service {
	s := &Service{
		blobs:     blobs,
		meta:      meta,
		keyPrefix: "uploads/",
		now:       time.Now,
		log:       log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest consumes one upload stream. Nothing is written until src reports a
// normal end of stream. A failed metadata commit leaves the written object in
// place; it is not rolled back.
func (s *Service) Ingest(ctx context.Context, src ChunkSource) (*models.UploadResult, error) {
	started := time.Now()
	uploadID := uuid.NewString()

	ctx, span := tracer.Start(ctx, "ingest.upload",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("upload_id", uploadID)),
	)
	defer span.End()

	fail := func(result string, err error) (*models.UploadResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.observe(result, 0, started)
		return nil, err
	}

	// Step 1: Accumulate the stream
	asm := chunker.NewAssembler()
	if err := s.receive(ctx, src, asm); err != nil {
		s.log.Warnw("upload stream aborted", "upload_id", uploadID, "chunks", asm.ChunkCount(), "error", err)
		return fail(metrics.ResultAborted, fmt.Errorf("%w: %w", ErrStreamAborted, err))
	}

	// Step 2: Validate
	if asm.Empty() {
		s.log.Warnw("upload rejected", "upload_id", uploadID, "reason", ErrEmptyPayload)
		return fail(metrics.ResultInvalid, ErrEmptyPayload)
	}
	filename := asm.Filename()
	if filename == "" {
		s.log.Warnw("upload rejected", "upload_id", uploadID, "reason", ErrMissingFilename)
		return fail(metrics.ResultInvalid, ErrMissingFilename)
	}
	mimetype := asm.Mimetype()
	if mimetype == "" {
		mimetype = DefaultMimetype
	}

	// Step 3: Materialize
	chunkCount := asm.ChunkCount()
	payload := asm.Payload()
	asm.Reset()
	size := int64(len(payload))

	span.SetAttributes(
		attribute.String("file_name", filename),
		attribute.String("mimetype", mimetype),
		attribute.Int64("file_size", size),
		attribute.Int("chunk_count", chunkCount),
		attribute.String("sha256", chunker.ComputeHash(payload)),
	)
	s.log.Infow("upload stream complete",
		"upload_id", uploadID,
		"filename", filename,
		"mimetype", mimetype,
		"chunks", chunkCount,
		"size", humanize.IBytes(uint64(size)),
	)

	if err := ctx.Err(); err != nil {
		return fail(metrics.ResultAborted, fmt.Errorf("%w: %w", ErrStreamAborted, err))
	}

	// Step 4: Durable write
	key := s.objectKey(filename)
	fileURL, err := s.writeBlob(ctx, key, payload, mimetype)
	if err != nil {
		s.log.Errorw("blob write failed", "upload_id", uploadID, "key", key, "error", err)
		return fail(metrics.ResultStorage, fmt.Errorf("%w: %w", ErrBlobWrite, err))
	}

	// Step 5: Metadata commit
	reply, err := s.commit(ctx, &models.SaveMetadataRequest{
		Filename: filename,
		Mimetype: mimetype,
		Size:     size,
		FileURL:  fileURL,
	})
	if err != nil {
		s.log.Errorw("metadata commit failed, object left without record",
			"upload_id", uploadID, "key", key, "file_url", fileURL, "error", err)
		return fail(metrics.ResultCommit, fmt.Errorf("%w: %w", ErrMetadataCommit, err))
	}

	s.observe(metrics.ResultSuccess, size, started)
	s.log.Infow("upload committed", "upload_id", uploadID, "record_id", reply.ID, "file_url", fileURL)

	return &models.UploadResult{
		Message: SuccessMessage,
		FileURL: fileURL,
	}, nil
}

func (s *Service) receive(ctx context.Context, src ChunkSource, asm *chunker.Assembler) error {
	_, span := tracer.Start(ctx, "ingest.receive")
	defer span.End()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg, err := src.Recv()
		if err == io.EOF {
			span.SetAttributes(attribute.Int("chunk_count", asm.ChunkCount()))
			return nil
		}
		if err != nil {
			span.RecordError(err)
			return err
		}
		asm.Add(msg)
	}
}

func (s *Service) writeBlob(ctx context.Context, key string, payload []byte, mimetype string) (string, error) {
	ctx, span := tracer.Start(ctx, "ingest.write_blob",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	url, err := s.blobs.PutObject(ctx, key, bytes.NewReader(payload), int64(len(payload)), mimetype)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return url, nil
}

func (s *Service) commit(ctx context.Context, req *models.SaveMetadataRequest) (*models.SaveMetadataReply, error) {
	ctx, span := tracer.Start(ctx, "ingest.commit_metadata")
	defer span.End()

	reply, err := s.meta.SaveMetadata(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if reply == nil {
		reply = &models.SaveMetadataReply{}
	}
	span.SetAttributes(attribute.String("record_id", reply.ID))
	return reply, nil
}

func (s *Service) objectKey(filename string) string {
	return fmt.Sprintf("%s%d_%s", s.keyPrefix, s.now().UnixMilli(), strings.ReplaceAll(filename, "/", "_"))
}

func (s *Service) observe(result string, size int64, started time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveUpload(result, size, started)
	}
}
