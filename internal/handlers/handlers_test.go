package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/maneesh/fileingest/internal/gateway"
	"github.com/maneesh/fileingest/internal/ingest"
	"github.com/maneesh/fileingest/internal/logger"
	"github.com/maneesh/fileingest/internal/metadata"
	"github.com/maneesh/fileingest/internal/metrics"
	"github.com/maneesh/fileingest/internal/models"
	"github.com/maneesh/fileingest/internal/rpc"
	"github.com/maneesh/fileingest/internal/storage"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
)

type countingUpload struct {
	next    rpc.UploadServer
	streams *atomic.Int32
	chunks  *atomic.Int32
}

func (c countingUpload) UploadFile(stream rpc.UploadService_UploadFileServer) error {
	c.streams.Add(1)
	return c.next.UploadFile(&countingStream{UploadService_UploadFileServer: stream, chunks: c.chunks})
}

type countingStream struct {
	rpc.UploadService_UploadFileServer
	chunks *atomic.Int32
}

func (s *countingStream) Recv() (*models.UploadChunk, error) {
	m, err := s.UploadService_UploadFileServer.Recv()
	if err == nil && m.IsData() {
		s.chunks.Add(1)
	}
	return m, err
}

type failingBlobs struct{}

func (failingBlobs) PutObject(context.Context, string, io.Reader, int64, string) (string, error) {
	return "", errors.New("connection refused")
}

type gatewayEnv struct {
	server  *httptest.Server
	store   *storage.SQLClient
	metrics *metrics.Metrics
	streams atomic.Int32
	chunks  atomic.Int32
}

func startGateway(t *testing.T, blobs ingest.BlobStore) *gatewayEnv {
	t.Helper()
	log := logger.Nop()
	env := &gatewayEnv{metrics: metrics.New()}

	lis := bufconn.Listen(1 << 20)
	conn, err := rpc.Dial("bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	env.store, err = storage.NewSQLClient(context.Background(), "sqlite", filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { env.store.Close() })

	metaClient := rpc.NewMetadataClient(conn)
	ingestSvc := ingest.NewService(blobs, metaClient, log)

	srv, _ := rpc.NewServer(log)
	rpc.RegisterMetadataServer(srv, rpc.NewMetadataHandler(metadata.NewService(env.store, log)))
	rpc.RegisterUploadServer(srv, countingUpload{
		next:    rpc.NewUploadHandler(ingestSvc),
		streams: &env.streams,
		chunks:  &env.chunks,
	})
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	relay := gateway.NewRelay(rpc.NewUploadClient(conn), metaClient, log, gateway.WithChunkSize(50))
	env.server = httptest.NewServer(NewRouter(relay, 1<<20, env.metrics, log))
	t.Cleanup(env.server.Close)
	return env
}

func multipartBody(t *testing.T, field, filename, mimetype string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, filename))
	if mimetype != "" {
		h.Set("Content-Type", mimetype)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return body, mw.FormDataContentType()
}

func postFile(t *testing.T, url, field, filename, mimetype string, content []byte) (int, map[string]interface{}) {
	t.Helper()
	body, contentType := multipartBody(t, field, filename, mimetype, content)
	resp, err := http.Post(url+"/upload", contentType, body)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func listFiles(t *testing.T, url string) (int, []*models.FileMetadata) {
	t.Helper()
	resp, err := http.Get(url + "/files")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out struct {
		Files []*models.FileMetadata `json:"files"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out.Files
}

func TestUploadEndToEnd(t *testing.T) {
	blobs := storage.NewMemoryBlobStore("http://blobs", "labdropbox")
	env := startGateway(t, blobs)
	payload := bytes.Repeat([]byte("p"), 150)

	code, out := postFile(t, env.server.URL, "file", "report final.pdf", "application/pdf", payload)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "success", out["message"])
	fileURL, _ := out["fileUrl"].(string)
	assert.True(t, strings.HasPrefix(fileURL, "http://blobs/labdropbox/uploads/"), fileURL)
	assert.True(t, strings.HasSuffix(fileURL, "_report_final.pdf"), fileURL)

	assert.Equal(t, int32(1), env.streams.Load())
	assert.Equal(t, int32(3), env.chunks.Load())

	code, files := listFiles(t, env.server.URL)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, files, 1)
	assert.Equal(t, "report_final.pdf", files[0].Filename)
	assert.Equal(t, "application/pdf", files[0].Mimetype)
	assert.Equal(t, int64(150), files[0].Size)
	assert.Equal(t, fileURL, files[0].FileURL)
	assert.NotEmpty(t, files[0].ID)
	assert.False(t, files[0].UploadDate.IsZero())

	objects, err := blobs.ListObjects(context.Background(), "uploads/")
	require.NoError(t, err)
	require.Len(t, objects, 1)
	assert.Equal(t, int64(150), objects[0].Size)

	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.GatewayRequests.WithLabelValues("POST /upload", "200")))
}

func TestUploadNoPayload(t *testing.T) {
	blobs := storage.NewMemoryBlobStore("http://blobs", "labdropbox")
	env := startGateway(t, blobs)

	code, out := postFile(t, env.server.URL, "file", "empty.txt", "text/plain", nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No file uploaded", out["message"])

	code, out = postFile(t, env.server.URL, "attachment", "a.txt", "text/plain", []byte("abc"))
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "No file uploaded", out["message"])

	assert.Zero(t, env.streams.Load())
	assert.Zero(t, blobs.Len())

	_, files := listFiles(t, env.server.URL)
	assert.Empty(t, files)
}

func TestUploadTooLarge(t *testing.T) {
	blobs := storage.NewMemoryBlobStore("http://blobs", "labdropbox")
	env := startGateway(t, blobs)

	code, out := postFile(t, env.server.URL, "file", "big.bin", "application/octet-stream", bytes.Repeat([]byte("x"), 2<<20))
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)
	assert.Equal(t, "File too large", out["message"])

	assert.Zero(t, env.streams.Load())
	assert.Zero(t, blobs.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(env.metrics.GatewayRequests.WithLabelValues("POST /upload", "413")))
}

func TestUploadBlobFailure(t *testing.T) {
	env := startGateway(t, failingBlobs{})

	code, out := postFile(t, env.server.URL, "file", "a.txt", "text/plain", []byte("abc"))
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, "Failed to upload file", out["message"])

	files, err := env.store.ListFiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUploadDefaultsMimetype(t *testing.T) {
	env := startGateway(t, storage.NewMemoryBlobStore("", "b"))

	code, _ := postFile(t, env.server.URL, "file", "blob", "", []byte{1, 2, 3})
	require.Equal(t, http.StatusOK, code)

	_, files := listFiles(t, env.server.URL)
	require.Len(t, files, 1)
	assert.Equal(t, "application/octet-stream", files[0].Mimetype)
}

func TestListFilesFailure(t *testing.T) {
	env := startGateway(t, storage.NewMemoryBlobStore("", "b"))
	require.NoError(t, env.store.Close())

	resp, err := http.Get(env.server.URL + "/files")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "Failed to get files", out["message"])
}

func TestHealth(t *testing.T) {
	env := startGateway(t, storage.NewMemoryBlobStore("", "b"))

	resp, err := http.Get(env.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(body))
}
