package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/maneesh/fileingest/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// S3Client wraps S3 operations with tracing
type S3Client struct {
	client     *s3.Client
	bucketName string
	publicBase string
}

// NewS3Client loads the default AWS config for region. A non-empty endpoint
// switches to path-style addressing against an S3-compatible service.
func NewS3Client(ctx context.Context, region, bucketName, endpoint, accessKey, secretKey, publicBase string) (*S3Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(endpoint, true))
			o.UsePathStyle = true
		}
	})

	if publicBase == "" {
		if endpoint != "" {
			publicBase = endpointURL(endpoint, true)
		} else {
			publicBase = fmt.Sprintf("https://s3.%s.amazonaws.com", region)
		}
	}

	return &S3Client{
		client:     client,
		bucketName: bucketName,
		publicBase: publicBase,
	}, nil
}

// PutObject uploads an object and returns its public URL
func (sc *S3Client) PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	ctx, span := tracer.Start(ctx, "s3.put_object",
		trace.WithAttributes(
			attribute.String("object_key", key),
			attribute.Int64("size_bytes", size),
			attribute.String("content_type", contentType),
		),
	)
	defer span.End()

	_, err := sc.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(sc.bucketName),
		Key:           aws.String(key),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("failed to put object: %w", err)
	}

	span.SetAttributes(attribute.Bool("upload_success", true))
	return sc.PublicURL(key), nil
}

// PublicURL returns the address an object key is served under
func (sc *S3Client) PublicURL(key string) string {
	return PublicURL(sc.publicBase, sc.bucketName, key)
}

// ListObjects lists every object under prefix
func (sc *S3Client) ListObjects(ctx context.Context, prefix string) ([]models.BlobObject, error) {
	ctx, span := tracer.Start(ctx, "s3.list_objects",
		trace.WithAttributes(attribute.String("prefix", prefix)),
	)
	defer span.End()

	paginator := s3.NewListObjectsV2Paginator(sc.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(sc.bucketName),
		Prefix: aws.String(prefix),
	})

	var objects []models.BlobObject
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			objects = append(objects, models.BlobObject{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				URL:          sc.PublicURL(key),
			})
		}
	}

	span.SetAttributes(attribute.Int("object_count", len(objects)))
	return objects, nil
}

// RemoveObject deletes an object from S3
func (sc *S3Client) RemoveObject(ctx context.Context, key string) error {
	ctx, span := tracer.Start(ctx, "s3.remove_object",
		trace.WithAttributes(attribute.String("object_key", key)),
	)
	defer span.End()

	_, err := sc.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(sc.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// IsReady checks that the bucket is reachable
func (sc *S3Client) IsReady(ctx context.Context) error {
	_, err := sc.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(sc.bucketName),
	})
	return err
}
