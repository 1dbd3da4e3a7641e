package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/maneesh/fileingest/internal/config"
	"github.com/maneesh/fileingest/internal/logger"
	"github.com/maneesh/fileingest/internal/models"
	"github.com/maneesh/fileingest/internal/storage"
	"github.com/maneesh/fileingest/internal/tracing"
)

const shutdownTimeout = 10 * time.Second

// process holds what every server command sets up first
type process struct {
	ctx  context.Context
	log  *zap.SugaredLogger
	stop func()
}

// startProcess builds the logger, installs tracing and ties ctx to
// SIGINT/SIGTERM.
func startProcess(cfg *config.Config, component string) (*process, error) {
	log, err := logger.New(cfg.ServiceName+"-"+component, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}

	log.Infow("starting", "component", component, "version", tracing.Version)

	shutdownTracer, err := tracing.InitTracer(cfg.ServiceName+"-"+component, cfg.JaegerEndpoint, log)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	p := &process{ctx: ctx, log: log}
	p.stop = func() {
		cancel()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := shutdownTracer(shutdownCtx); err != nil {
			log.Warnw("error shutting down tracer", "error", err)
		}
		log.Sync()
	}
	return p, nil
}

// objectStore is what the ingest and reconcile commands need from a backend
type objectStore interface {
	PutObject(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
	ListObjects(ctx context.Context, prefix string) ([]models.BlobObject, error)
	RemoveObject(ctx context.Context, key string) error
	IsReady(ctx context.Context) error
}

// openBlobStore connects to the configured BLOB_BACKEND
func openBlobStore(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (objectStore, error) {
	switch cfg.Ingest.BlobBackend {
	case "minio":
		log.Infow("connecting to MinIO", "endpoint", cfg.MinIO.Endpoint, "bucket", cfg.MinIO.BucketName)
		return storage.NewMinioClient(ctx,
			cfg.MinIO.Endpoint,
			cfg.MinIO.AccessKey,
			cfg.MinIO.SecretKey,
			cfg.MinIO.BucketName,
			cfg.MinIO.UseSSL,
			cfg.Ingest.BlobPublicURL,
			log,
		)
	case "s3":
		log.Infow("connecting to S3", "region", cfg.S3.Region, "bucket", cfg.S3.Bucket)
		return storage.NewS3Client(ctx,
			cfg.S3.Region,
			cfg.S3.Bucket,
			cfg.S3.Endpoint,
			cfg.S3.AccessKey,
			cfg.S3.SecretKey,
			cfg.Ingest.BlobPublicURL,
		)
	case "memory":
		log.Warnw("using in-memory blob store, objects are lost on exit")
		return storage.NewMemoryBlobStore(cfg.Ingest.BlobPublicURL, cfg.MinIO.BucketName), nil
	}
	return nil, fmt.Errorf("unknown blob backend %q", cfg.Ingest.BlobBackend)
}

// serveGRPC serves srv on port until ctx is done, then stops it gracefully
func serveGRPC(ctx context.Context, srv *grpc.Server, port string, log *zap.SugaredLogger) error {
	lis, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", port, err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("gRPC server listening", "port", port)
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Infow("shutting down gRPC server")
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		log.Warnw("graceful stop timed out, forcing")
		srv.Stop()
	}
	log.Infow("server exited")
	return nil
}
