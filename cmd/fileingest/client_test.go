package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maneesh/fileingest/internal/config"
	"github.com/maneesh/fileingest/internal/models"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfg := &config.Config{Gateway: config.GatewayConfig{Port: "3000"}, LogLevel: "info"}
	cmd := newRootCmd(cfg)

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestUploadCommand(t *testing.T) {
	var gotName, gotType string
	var gotBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		file, header, err := r.FormFile("file")
		if !assert.NoError(t, err) {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		gotName = header.Filename
		gotType = header.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(file)

		json.NewEncoder(w).Encode(models.UploadResult{Message: "success", FileURL: "http://blobs/uploads/1_notes.txt"})
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o600))

	out, err := runCLI(t, "upload", path, "--gateway", srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "notes.txt", gotName)
	assert.Contains(t, gotType, "text/plain")
	assert.Equal(t, []byte("hello"), gotBody)
	assert.Contains(t, out, "http://blobs/uploads/1_notes.txt")
}

func TestListCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/files", r.URL.Path)
		json.NewEncoder(w).Encode(models.GetAllFilesReply{Files: []*models.FileMetadata{{
			ID:         "id-1",
			Filename:   "report_final.pdf",
			Mimetype:   "application/pdf",
			Size:       150,
			UploadDate: time.Now().Add(-time.Hour),
			FileURL:    "http://blobs/uploads/1_report_final.pdf",
		}}})
	}))
	defer srv.Close()

	out, err := runCLI(t, "list", "--gateway", srv.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "report_final.pdf")
	assert.Contains(t, out, "150 B")
	assert.Contains(t, out, "1 hour ago")

	out, err = runCLI(t, "list", "--gateway", srv.URL, "--json")
	require.NoError(t, err)
	var files []*models.FileMetadata
	require.NoError(t, json.Unmarshal([]byte(out), &files))
	require.Len(t, files, 1)
	assert.Equal(t, int64(150), files[0].Size)
}

func TestListCommandGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"message":"Failed to get files"}`))
	}))
	defer srv.Close()

	_, err := runCLI(t, "list", "--gateway", srv.URL)
	assert.ErrorContains(t, err, "Failed to get files")
}

func TestUploadCommandMissingFile(t *testing.T) {
	_, err := runCLI(t, "upload", filepath.Join(t.TempDir(), "nope.bin"))
	assert.Error(t, err)
}
