package metadata

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/maneesh/fileingest/internal/metrics"
	"github.com/maneesh/fileingest/internal/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("fileingest-metadata")

// SavedMessage is the message of a successful save
const SavedMessage = "Metadata saved successfully"

var (
	ErrInvalidRecord = errors.New("invalid metadata record")
	ErrStore         = errors.New("metadata store failure")
)

// Store is the durable metadata index
type Store interface {
	InsertFile(ctx context.Context, file *models.FileMetadata) error
	ListFiles(ctx context.Context) ([]*models.FileMetadata, error)
}

// Cache holds a copy of the full listing. A miss is nil, nil.
//
// Every invalidation advances the generation. SetFileList only stores a
// listing read under the generation it is given, so a snapshot taken before a
// save can never replace the invalidation that save made.
type Cache interface {
	GetFileList(ctx context.Context) ([]*models.FileMetadata, error)
	Generation(ctx context.Context) (int64, error)
	SetFileList(ctx context.Context, gen int64, files []*models.FileMetadata) (bool, error)
	InvalidateFileList(ctx context.Context) error
}

// NoopCache never holds anything
type NoopCache struct{}

// GetFileList always misses
func (NoopCache) GetFileList(context.Context) ([]*models.FileMetadata, error) { return nil, nil }

// Generation is always 0
func (NoopCache) Generation(context.Context) (int64, error) { return 0, nil }

// SetFileList discards the listing
func (NoopCache) SetFileList(context.Context, int64, []*models.FileMetadata) (bool, error) {
	return false, nil
}

// InvalidateFileList does nothing
func (NoopCache) InvalidateFileList(context.Context) error { return nil }

// Service persists and lists file metadata records
type Service struct {
	store   Store
	cache   Cache
	now     func() time.Time
	metrics *metrics.Metrics
	log     *zap.SugaredLogger

	// set while a save could not invalidate the cache
	stale atomic.Bool
}

// Option configures a Service
type Option func(*Service)

// WithCache puts a read-through cache in front of ListAll
func WithCache(c Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithClock replaces time.Now for upload dates
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMetrics records save and list outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a metadata service over store
func NewService(store Store, log *zap.SugaredLogger, opts ...Option) *Service {
	s := &Service{
		store: store,
		cache: NoopCache{},
		now:   time.Now,
		log:   log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save validates and persists a new record and returns it
func (s *Service) Save(ctx context.Context, req *models.SaveMetadataRequest) (*models.FileMetadata, error) {
	ctx, span := tracer.Start(ctx, "metadata.save")
	defer span.End()

	if err := validate(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.count(metrics.ResultInvalid, true)
		return nil, err
	}

	file := &models.FileMetadata{
		ID:         uuid.NewString(),
		Filename:   req.Filename,
		Mimetype:   req.Mimetype,
		Size:       req.Size,
		UploadDate: s.now().UTC(),
		FileURL:    req.FileURL,
	}
	span.SetAttributes(
		attribute.String("record_id", file.ID),
		attribute.String("file_name", file.Filename),
		attribute.Int64("file_size", file.Size),
	)

	if err := s.store.InsertFile(ctx, file); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.count(metrics.ResultStorage, true)
		s.log.Errorw("metadata insert failed", "filename", file.Filename, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}

	if err := s.cache.InvalidateFileList(ctx); err != nil {
		s.stale.Store(true)
		s.log.Warnw("file list cache invalidation failed, bypassing cache", "error", err)
	}

	s.count(metrics.ResultSuccess, true)
	s.log.Infow("metadata saved", "record_id", file.ID, "filename", file.Filename, "size", file.Size)
	return file, nil
}

// ListAll returns every record in insertion order. A store failure yields no
// records at all.
func (s *Service) ListAll(ctx context.Context) ([]*models.FileMetadata, error) {
	ctx, span := tracer.Start(ctx, "metadata.list_all")
	defer span.End()

	useCache := s.cacheUsable(ctx)
	if useCache {
		cached, err := s.cache.GetFileList(ctx)
		switch {
		case err != nil:
			s.lookup("error")
			s.log.Warnw("file list cache read failed", "error", err)
		case cached != nil:
			s.lookup("hit")
			span.SetAttributes(attribute.Bool("cache_hit", true), attribute.Int("file_count", len(cached)))
			s.count(metrics.ResultSuccess, false)
			return cached, nil
		default:
			s.lookup("miss")
		}
	} else {
		s.lookup("bypass")
	}

	// The generation must be read before the store snapshot
	var gen int64
	if useCache {
		g, err := s.cache.Generation(ctx)
		if err != nil {
			s.log.Warnw("file list cache generation read failed", "error", err)
			useCache = false
		}
		gen = g
	}

	files, err := s.store.ListFiles(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.count(metrics.ResultStorage, false)
		s.log.Errorw("metadata list failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStore, err)
	}
	if files == nil {
		files = []*models.FileMetadata{}
	}
	span.SetAttributes(attribute.Bool("cache_hit", false), attribute.Int("file_count", len(files)))

	if useCache {
		stored, err := s.cache.SetFileList(ctx, gen, files)
		if err != nil {
			s.log.Warnw("file list cache write failed", "error", err)
		} else if !stored {
			s.log.Debugw("file list changed while listing, cache not written", "generation", gen)
		}
	}

	s.count(metrics.ResultSuccess, false)
	return files, nil
}

// cacheUsable retries a failed invalidation before the cache is trusted again
func (s *Service) cacheUsable(ctx context.Context) bool {
	if !s.stale.Load() {
		return true
	}
	if err := s.cache.InvalidateFileList(ctx); err != nil {
		return false
	}
	s.stale.Store(false)
	s.log.Infow("file list cache invalidated after earlier failure")
	return true
}

func validate(req *models.SaveMetadataRequest) error {
	switch {
	case req == nil:
		return fmt.Errorf("%w: empty request", ErrInvalidRecord)
	case req.Filename == "":
		return fmt.Errorf("%w: filename is required", ErrInvalidRecord)
	case req.Mimetype == "":
		return fmt.Errorf("%w: mimetype is required", ErrInvalidRecord)
	case req.FileURL == "":
		return fmt.Errorf("%w: fileUrl is required", ErrInvalidRecord)
	case req.Size < 0:
		return fmt.Errorf("%w: negative size %d", ErrInvalidRecord, req.Size)
	}
	return nil
}

func (s *Service) count(result string, save bool) {
	if s.metrics == nil {
		return
	}
	if save {
		s.metrics.MetadataSaves.WithLabelValues(result).Inc()
	} else {
		s.metrics.MetadataLists.WithLabelValues(result).Inc()
	}
}

func (s *Service) lookup(status string) {
	if s.metrics != nil {
		s.metrics.CacheLookups.WithLabelValues(status).Inc()
	}
}
