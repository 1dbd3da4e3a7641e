package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/maneesh/fileingest/internal/models"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultCacheTTL is the time-to-live for the cached file list (5 minutes)
	DefaultCacheTTL = 5 * time.Minute

	fileListKey    = "files:all"
	fileListGenKey = "files:gen"
)

var errGenerationMoved = errors.New("file list generation moved")

// RedisClient caches the metadata listing with tracing
type RedisClient struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisClient initializes a new Redis client
func NewRedisClient(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return newRedisClient(client, ttl), nil
}

func newRedisClient(client *redis.Client, ttl time.Duration) *RedisClient {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisClient{client: client, ttl: ttl}
}

// Close closes the Redis connection
func (rc *RedisClient) Close() error {
	return rc.client.Close()
}

// GetFileList returns the cached listing; a miss yields nil, nil
func (rc *RedisClient) GetFileList(ctx context.Context) ([]*models.FileMetadata, error) {
	ctx, span := tracer.Start(ctx, "redis.get_file_list",
		trace.WithAttributes(attribute.String("cache_key", fileListKey)),
	)
	defer span.End()

	data, err := rc.client.Get(ctx, fileListKey).Bytes()
	if err == redis.Nil {
		span.SetAttributes(
			attribute.Bool("cache_hit", false),
			attribute.String("cache_status", "miss"),
		)
		return nil, nil
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get from cache: %w", err)
	}

	files := []*models.FileMetadata{}
	if err := json.Unmarshal(data, &files); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}

	span.SetAttributes(
		attribute.Bool("cache_hit", true),
		attribute.String("cache_status", "hit"),
		attribute.Int("file_count", len(files)),
	)
	return files, nil
}

// Generation returns the current file list generation; 0 if none was recorded
func (rc *RedisClient) Generation(ctx context.Context) (int64, error) {
	gen, err := rc.client.Get(ctx, fileListGenKey).Int64()
	if err == redis.Nil {
		return 0, nil
	} else if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

// SetFileList stores the listing with the configured TTL if the generation is
// still gen. It reports false when an invalidation happened in between.
func (rc *RedisClient) SetFileList(ctx context.Context, gen int64, files []*models.FileMetadata) (bool, error) {
	ctx, span := tracer.Start(ctx, "redis.set_file_list",
		trace.WithAttributes(
			attribute.Int("file_count", len(files)),
			attribute.Int64("generation", gen),
		),
	)
	defer span.End()

	data, err := json.Marshal(files)
	if err != nil {
		span.RecordError(err)
		return false, fmt.Errorf("failed to marshal files: %w", err)
	}

	err = rc.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, fileListGenKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if cur != gen {
			return errGenerationMoved
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fileListKey, data, rc.ttl)
			return nil
		})
		return err
	}, fileListGenKey)

	switch {
	case errors.Is(err, errGenerationMoved), errors.Is(err, redis.TxFailedErr):
		span.SetAttributes(attribute.Bool("cache_set_success", false))
		return false, nil
	case err != nil:
		span.RecordError(err)
		return false, fmt.Errorf("failed to set cache: %w", err)
	}

	span.SetAttributes(
		attribute.Bool("cache_set_success", true),
		attribute.Int64("ttl_seconds", int64(rc.ttl.Seconds())),
	)
	return true, nil
}

// InvalidateFileList bumps the generation and removes the cached listing
func (rc *RedisClient) InvalidateFileList(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.invalidate_file_list")
	defer span.End()

	_, err := rc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, fileListGenKey)
		pipe.Del(ctx, fileListKey)
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to invalidate cache: %w", err)
	}

	span.SetAttributes(attribute.Bool("cache_invalidate_success", true))
	return nil
}

// IsReady pings Redis
func (rc *RedisClient) IsReady(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}
