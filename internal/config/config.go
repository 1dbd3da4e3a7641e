package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServiceName string `envconfig:"SERVICE_NAME" default:"labdropbox"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	Gateway   GatewayConfig
	Ingest    IngestConfig
	Metadata  MetadataConfig
	MinIO     MinIOConfig
	S3        S3Config
	TiDB      TiDBConfig
	Redis     RedisConfig
	Reconcile ReconcileConfig

	// Jaeger configuration, empty disables tracing
	JaegerEndpoint string `envconfig:"JAEGER_ENDPOINT" default:"localhost:4318"`
}

// GatewayConfig configures the public HTTP gateway
type GatewayConfig struct {
	Port                string `envconfig:"GATEWAY_PORT" default:"3000"`
	MaxUploadMB         int    `envconfig:"GATEWAY_MAX_UPLOAD_MB" default:"64"`
	ChunkSizeKB         int    `envconfig:"CHUNK_SIZE_KB" default:"64"`
	UploadServiceAddr   string `envconfig:"UPLOAD_SERVICE_ADDR" default:"localhost:50051"`
	MetadataServiceAddr string `envconfig:"METADATA_SERVICE_ADDR" default:"localhost:50052"`
}

// IngestConfig configures the ingestion service
type IngestConfig struct {
	GRPCPort      string `envconfig:"INGEST_GRPC_PORT" default:"50051"`
	BlobBackend   string `envconfig:"BLOB_BACKEND" default:"minio"`
	BlobKeyPrefix string `envconfig:"BLOB_KEY_PREFIX" default:"uploads/"`
	BlobPublicURL string `envconfig:"BLOB_PUBLIC_URL"`
	MetricsPort   string `envconfig:"INGEST_METRICS_PORT" default:"9090"`
}

// MetadataConfig configures the metadata service
type MetadataConfig struct {
	GRPCPort    string `envconfig:"METADATA_GRPC_PORT" default:"50052"`
	Driver      string `envconfig:"METADATA_DRIVER" default:"mysql"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"labdropbox.db"`
	MetricsPort string `envconfig:"METADATA_METRICS_PORT" default:"9091"`
}

// MinIOConfig configures the MinIO blob backend
type MinIOConfig struct {
	Endpoint   string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey  string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey  string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	BucketName string `envconfig:"MINIO_BUCKET_NAME" default:"labdropbox"`
	UseSSL     bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

// S3Config configures the S3 blob backend
type S3Config struct {
	Region    string `envconfig:"S3_REGION" default:"us-east-1"`
	Bucket    string `envconfig:"S3_BUCKET" default:"labdropbox"`
	Endpoint  string `envconfig:"S3_ENDPOINT"`
	AccessKey string `envconfig:"S3_ACCESS_KEY"`
	SecretKey string `envconfig:"S3_SECRET_KEY"`
}

// TiDBConfig configures the MySQL-compatible metadata store
type TiDBConfig struct {
	Host     string `envconfig:"TIDB_HOST" default:"localhost"`
	Port     string `envconfig:"TIDB_PORT" default:"4000"`
	User     string `envconfig:"TIDB_USER" default:"root"`
	Password string `envconfig:"TIDB_PASSWORD"`
	Database string `envconfig:"TIDB_DATABASE" default:"labdropbox"`
}

// RedisConfig configures the file list cache
type RedisConfig struct {
	Enabled  bool          `envconfig:"REDIS_ENABLED" default:"true"`
	Host     string        `envconfig:"REDIS_HOST" default:"localhost"`
	Port     string        `envconfig:"REDIS_PORT" default:"6379"`
	Password string        `envconfig:"REDIS_PASSWORD"`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"5m"`
}

// ReconcileConfig configures the orphan sweep
type ReconcileConfig struct {
	Grace       time.Duration `envconfig:"RECONCILE_GRACE" default:"10m"`
	Interval    time.Duration `envconfig:"RECONCILE_INTERVAL" default:"0"`
	MetricsPort string        `envconfig:"RECONCILE_METRICS_PORT" default:"9092"`
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the enumerated settings
func (c *Config) Validate() error {
	switch c.Ingest.BlobBackend {
	case "minio", "s3", "memory":
	default:
		return fmt.Errorf("unknown BLOB_BACKEND %q", c.Ingest.BlobBackend)
	}
	switch c.Metadata.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("unknown METADATA_DRIVER %q", c.Metadata.Driver)
	}
	if c.Gateway.ChunkSizeKB <= 0 {
		return fmt.Errorf("CHUNK_SIZE_KB must be positive, got %d", c.Gateway.ChunkSizeKB)
	}
	return nil
}

// GetDSN returns the metadata store connection string for the configured driver
func (c *Config) GetDSN() string {
	if c.Metadata.Driver == "sqlite" {
		return c.Metadata.SQLitePath
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.TiDB.User,
		c.TiDB.Password,
		c.TiDB.Host,
		c.TiDB.Port,
		c.TiDB.Database,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// GetChunkSizeBytes returns chunk size in bytes
func (c *Config) GetChunkSizeBytes() int64 {
	return int64(c.Gateway.ChunkSizeKB) * 1024
}

// GetMaxUploadBytes returns the gateway request body limit in bytes
func (c *Config) GetMaxUploadBytes() int64 {
	return int64(c.Gateway.MaxUploadMB) * 1024 * 1024
}
