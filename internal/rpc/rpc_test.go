package rpc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/maneesh/fileingest/internal/ingest"
	"github.com/maneesh/fileingest/internal/logger"
	"github.com/maneesh/fileingest/internal/metadata"
	"github.com/maneesh/fileingest/internal/metrics"
	"github.com/maneesh/fileingest/internal/models"
	"github.com/maneesh/fileingest/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type pipeline struct {
	conn    *grpc.ClientConn
	health  *health.Server
	blobs   *storage.MemoryBlobStore
	store   *storage.SQLClient
	metrics *metrics.Metrics
	started chan struct{}
}

type signalingUpload struct {
	UploadServer
	started chan struct{}
}

func (s signalingUpload) UploadFile(stream UploadService_UploadFileServer) error {
	select {
	case s.started <- struct{}{}:
	default:
	}
	return s.UploadServer.UploadFile(stream)
}

// startPipeline serves both services on one in-memory listener. The ingest
// service reaches the metadata service through the same connection.
func startPipeline(t *testing.T) *pipeline {
	t.Helper()
	log := logger.Nop()

	lis := bufconn.Listen(1 << 20)
	conn, err := Dial("bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	store, err := storage.NewSQLClient(context.Background(), "sqlite", filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	p := &pipeline{
		conn:    conn,
		blobs:   storage.NewMemoryBlobStore("http://blobs", "labdropbox"),
		store:   store,
		metrics: metrics.New(),
		started: make(chan struct{}, 1),
	}

	metaSvc := metadata.NewService(store, log, metadata.WithMetrics(p.metrics))
	ingestSvc := ingest.NewService(p.blobs, NewMetadataClient(conn), log, ingest.WithMetrics(p.metrics))

	srv, hs := NewServer(log)
	RegisterMetadataServer(srv, NewMetadataHandler(metaSvc))
	RegisterUploadServer(srv, signalingUpload{UploadServer: NewUploadHandler(ingestSvc), started: p.started})
	p.health = hs

	go srv.Serve(lis)
	t.Cleanup(srv.Stop)
	return p
}

func upload(ctx context.Context, conn grpc.ClientConnInterface, msgs ...*models.UploadChunk) (*models.UploadResult, error) {
	stream, err := NewUploadClient(conn).UploadFile(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range msgs {
		if err := stream.Send(m); err != nil {
			return nil, err
		}
	}
	return stream.CloseAndRecv()
}

func TestUploadOverGRPC(t *testing.T) {
	p := startPipeline(t)
	ctx := context.Background()

	res, err := upload(ctx, p.conn,
		&models.UploadChunk{Filename: "notes.txt", Mimetype: "text/plain"},
		&models.UploadChunk{FileChunk: []byte("hello ")},
		&models.UploadChunk{FileChunk: []byte("world")},
	)
	require.NoError(t, err)
	assert.Equal(t, "success", res.Message)
	assert.Contains(t, res.FileURL, "http://blobs/labdropbox/uploads/")
	assert.Contains(t, res.FileURL, "_notes.txt")

	reply, err := NewMetadataClient(p.conn).GetAllFiles(ctx, nil)
	require.NoError(t, err)
	require.Len(t, reply.Files, 1)
	assert.Equal(t, "notes.txt", reply.Files[0].Filename)
	assert.Equal(t, "text/plain", reply.Files[0].Mimetype)
	assert.Equal(t, int64(11), reply.Files[0].Size)
	assert.Equal(t, res.FileURL, reply.Files[0].FileURL)
}

func TestUploadEmptyStreamIsInvalidArgument(t *testing.T) {
	p := startPipeline(t)

	_, err := upload(context.Background(), p.conn, &models.UploadChunk{Filename: "empty.txt", Mimetype: "text/plain"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Zero(t, p.blobs.Len())
}

func TestUploadCancelledMidStream(t *testing.T) {
	p := startPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, err := NewUploadClient(p.conn).UploadFile(ctx)
	require.NoError(t, err)
	require.NoError(t, stream.Send(&models.UploadChunk{Filename: "big.iso", Mimetype: "application/octet-stream"}))
	require.NoError(t, stream.Send(&models.UploadChunk{FileChunk: bytes.Repeat([]byte("a"), 1024)}))

	select {
	case <-p.started:
	case <-time.After(5 * time.Second):
		t.Fatal("upload handler never started")
	}
	cancel()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(p.metrics.UploadsTotal.WithLabelValues(metrics.ResultAborted)) == 1
	}, 5*time.Second, 10*time.Millisecond)

	assert.Zero(t, p.blobs.Len())
	files, err := p.store.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestSaveMetadataOverGRPC(t *testing.T) {
	p := startPipeline(t)
	client := NewMetadataClient(p.conn)
	ctx := context.Background()

	reply, err := client.SaveMetadata(ctx, &models.SaveMetadataRequest{
		Filename: "a.txt", Mimetype: "text/plain", Size: 3, FileURL: "http://blobs/a",
	})
	require.NoError(t, err)
	assert.Equal(t, "Metadata saved successfully", reply.Message)
	assert.NotEmpty(t, reply.ID)

	_, err = client.SaveMetadata(ctx, &models.SaveMetadataRequest{Filename: "b.txt"})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	list, err := client.GetAllFiles(ctx, &models.GetAllFilesRequest{})
	require.NoError(t, err)
	require.Len(t, list.Files, 1)
	assert.Equal(t, reply.ID, list.Files[0].ID)
}

type readiness struct{ err error }

func (r readiness) IsReady(context.Context) error { return r.err }

func TestHealthFollowsReadiness(t *testing.T) {
	p := startPipeline(t)
	hc := healthpb.NewHealthClient(p.conn)
	ctx := context.Background()

	resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)

	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go WatchReadiness(watchCtx, p.health, 10*time.Millisecond, readiness{}, p.store, p.blobs)

	require.Eventually(t, func() bool {
		resp, err := hc.Check(ctx, &healthpb.HealthCheckRequest{})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCodeMapping(t *testing.T) {
	cases := []struct {
		err  error
		want codes.Code
	}{
		{ingest.ErrEmptyPayload, codes.InvalidArgument},
		{ingest.ErrMissingFilename, codes.InvalidArgument},
		{fmt.Errorf("%w: filename is required", metadata.ErrInvalidRecord), codes.InvalidArgument},
		{fmt.Errorf("%w: %w", ingest.ErrBlobWrite, errors.New("refused")), codes.Unavailable},
		{fmt.Errorf("%w: %w", ingest.ErrMetadataCommit, status.Error(codes.Unavailable, "down")), codes.Aborted},
		{fmt.Errorf("%w: %w", ingest.ErrStreamAborted, context.Canceled), codes.Canceled},
		{fmt.Errorf("%w: %w", metadata.ErrStore, errors.New("locked")), codes.Unavailable},
		{status.Error(codes.DeadlineExceeded, "slow"), codes.DeadlineExceeded},
		{errors.New("boom"), codes.Internal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Code(tc.err), tc.err.Error())
	}
	assert.NoError(t, ToStatus(nil))
	assert.Equal(t, codes.Aborted, status.Code(ToStatus(cases[4].err)))
}
