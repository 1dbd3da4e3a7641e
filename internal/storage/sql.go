package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/maneesh/fileingest/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	_ "modernc.org/sqlite"
)

var schemas = map[string]string{
	"mysql": `CREATE TABLE IF NOT EXISTS files (
		seq BIGINT AUTO_INCREMENT PRIMARY KEY,
		id VARCHAR(36) NOT NULL UNIQUE,
		filename VARCHAR(1024) NOT NULL,
		mimetype VARCHAR(255) NOT NULL,
		size BIGINT NOT NULL,
		upload_date DATETIME(6) NOT NULL,
		file_url TEXT NOT NULL
	)`,
	"sqlite": `CREATE TABLE IF NOT EXISTS files (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		filename TEXT NOT NULL,
		mimetype TEXT NOT NULL,
		size INTEGER NOT NULL,
		upload_date DATETIME NOT NULL,
		file_url TEXT NOT NULL
	)`,
}

// SQLClient wraps the metadata table with tracing. It speaks to TiDB/MySQL
// through go-sql-driver/mysql or to a local SQLite file.
type SQLClient struct {
	db     *sql.DB
	driver string
}

// NewSQLClient opens and pings the database and creates the files table
func NewSQLClient(ctx context.Context, driver, dsn string) (*SQLClient, error) {
	schema, ok := schemas[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if driver == "sqlite" {
		// SQLite serialises writers; one connection avoids SQLITE_BUSY
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create files table: %w", err)
	}

	return &SQLClient{db: db, driver: driver}, nil
}

// Close closes the database connection
func (sc *SQLClient) Close() error {
	return sc.db.Close()
}

// IsReady pings the database
func (sc *SQLClient) IsReady(ctx context.Context) error {
	return sc.db.PingContext(ctx)
}

// InsertFile inserts one metadata record with tracing
func (sc *SQLClient) InsertFile(ctx context.Context, file *models.FileMetadata) error {
	ctx, span := tracer.Start(ctx, "sql.insert_file",
		trace.WithAttributes(
			attribute.String("db.system", sc.driver),
			attribute.String("file_id", file.ID),
			attribute.String("file_name", file.Filename),
			attribute.Int64("file_size", file.Size),
		),
	)
	defer span.End()

	query := `INSERT INTO files (id, filename, mimetype, size, upload_date, file_url)
			  VALUES (?, ?, ?, ?, ?, ?)`

	_, err := sc.db.ExecContext(ctx, query,
		file.ID, file.Filename, file.Mimetype, file.Size, file.UploadDate.UTC(), file.FileURL)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert file: %w", err)
	}

	span.SetAttributes(attribute.Bool("insert_success", true))
	return nil
}

// ListFiles returns every record in insertion order with tracing
func (sc *SQLClient) ListFiles(ctx context.Context) ([]*models.FileMetadata, error) {
	ctx, span := tracer.Start(ctx, "sql.list_files",
		trace.WithAttributes(attribute.String("db.system", sc.driver)),
	)
	defer span.End()

	query := `SELECT id, filename, mimetype, size, upload_date, file_url
			  FROM files
			  ORDER BY seq ASC`

	rows, err := sc.db.QueryContext(ctx, query)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query files: %w", err)
	}
	defer rows.Close()

	files := []*models.FileMetadata{}
	for rows.Next() {
		var file models.FileMetadata
		err := rows.Scan(
			&file.ID,
			&file.Filename,
			&file.Mimetype,
			&file.Size,
			&file.UploadDate,
			&file.FileURL,
		)
		if err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		file.UploadDate = file.UploadDate.UTC()
		files = append(files, &file)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating files: %w", err)
	}

	span.SetAttributes(
		attribute.Int("file_count", len(files)),
		attribute.Bool("query_success", true),
	)
	return files, nil
}
