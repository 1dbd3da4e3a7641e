package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/maneesh/fileingest/internal/models"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("fileingest-storage")

// MinioClient wraps MinIO operations with tracing
type MinioClient struct {
	client     *minio.Client
	bucketName string
	publicBase string
}

// NewMinioClient initializes a new MinIO client and ensures the bucket exists.
// publicBase overrides the address prefix used in returned object URLs.
func NewMinioClient(ctx context.Context, endpoint, accessKey, secretKey, bucketName string, useSSL bool, publicBase string, log *zap.SugaredLogger) (*MinioClient, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	if publicBase == "" {
		publicBase = endpointURL(endpoint, useSSL)
	}

	mc := &MinioClient{
		client:     client,
		bucketName: bucketName,
		publicBase: publicBase,
	}

	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		log.Infow("creating bucket", "bucket", bucketName)
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return mc, nil
}

// PutObject uploads an object and returns its public URL
func (mc *MinioClient) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	ctx, span := tracer.Start(ctx, "minio.put_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int64("size_bytes", size),
			attribute.String("content_type", contentType),
		),
	)
	defer span.End()

	_, err := mc.client.PutObject(ctx, mc.bucketName, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to upload object: %w", err)
	}

	span.SetAttributes(attribute.Bool("upload_success", true))
	return mc.PublicURL(key), nil
}

// PublicURL returns the address an object key is served under
func (mc *MinioClient) PublicURL(key string) string {
	return PublicURL(mc.publicBase, mc.bucketName, key)
}

// ListObjects lists every object under prefix
func (mc *MinioClient) ListObjects(ctx context.Context, prefix string) ([]models.BlobObject, error) {
	ctx, span := tracer.Start(ctx, "minio.list_objects",
		trace.WithAttributes(attribute.String("prefix", prefix)),
	)
	defer span.End()

	var objects []models.BlobObject
	for info := range mc.client.ListObjects(ctx, mc.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if info.Err != nil {
			span.RecordError(info.Err)
			return nil, fmt.Errorf("failed to list objects: %w", info.Err)
		}
		objects = append(objects, models.BlobObject{
			Key:          info.Key,
			Size:         info.Size,
			LastModified: info.LastModified,
			URL:          mc.PublicURL(info.Key),
		})
	}

	span.SetAttributes(attribute.Int("object_count", len(objects)))
	return objects, nil
}

// RemoveObject deletes an object from MinIO
func (mc *MinioClient) RemoveObject(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "minio.remove_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
		),
	)
	defer span.End()

	err := mc.client.RemoveObject(ctx, mc.bucketName, key, minio.RemoveObjectOptions{})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete object: %w", err)
	}

	return nil
}

// IsReady checks that the bucket is reachable
func (mc *MinioClient) IsReady(ctx context.Context) error {
	_, err := mc.client.BucketExists(ctx, mc.bucketName)
	return err
}
