package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Gateway.Port)
	assert.Equal(t, int64(64*1024), cfg.GetChunkSizeBytes())
	assert.Equal(t, int64(64*1024*1024), cfg.GetMaxUploadBytes())
	assert.Equal(t, "minio", cfg.Ingest.BlobBackend)
	assert.Equal(t, "uploads/", cfg.Ingest.BlobKeyPrefix)
	assert.Equal(t, "localhost:6379", cfg.GetRedisAddr())
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, "9090", cfg.Ingest.MetricsPort)
	assert.Equal(t, "9091", cfg.Metadata.MetricsPort)
	assert.Equal(t, "9092", cfg.Reconcile.MetricsPort)
	assert.Equal(t,
		"root:@tcp(localhost:4000)/labdropbox?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.GetDSN())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("METADATA_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/files.db")
	t.Setenv("CHUNK_SIZE_KB", "16")
	t.Setenv("BLOB_BACKEND", "memory")
	t.Setenv("RECONCILE_GRACE", "1h")
	t.Setenv("METADATA_METRICS_PORT", "19091")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/files.db", cfg.GetDSN())
	assert.Equal(t, int64(16*1024), cfg.GetChunkSizeBytes())
	assert.Equal(t, "memory", cfg.Ingest.BlobBackend)
	assert.Equal(t, time.Hour, cfg.Reconcile.Grace)
	assert.Equal(t, "19091", cfg.Metadata.MetricsPort)
	assert.Equal(t, "9090", cfg.Ingest.MetricsPort)
}

func TestLoadConfigRejectsUnknownBackend(t *testing.T) {
	t.Setenv("BLOB_BACKEND", "ftp")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "BLOB_BACKEND")
}

func TestLoadConfigRejectsUnknownDriver(t *testing.T) {
	t.Setenv("METADATA_DRIVER", "mongo")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "METADATA_DRIVER")
}
