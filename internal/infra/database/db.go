package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"activity_scraper/internal/domain/acquisition"

	"github.com/cockroachdb/errors"
	"github.com/lib/pq" // PostgreSQL driver
)

const (
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

// NewPostgresConnection creates and returns a new PostgreSQL connection pool.
// It also pings the database to ensure connectivity.
func NewPostgresConnection(dataSourceName string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)
	db.SetConnMaxIdleTime(defaultConnMaxIdleTime)

	if err = db.Ping(); err != nil {
		db.Close() // Close the pool if ping fails
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS activities (
	id                 BIGSERIAL PRIMARY KEY,
	external_id        TEXT NOT NULL UNIQUE,
	name               TEXT NOT NULL,
	description        TEXT NOT NULL DEFAULT '',
	top_level_category TEXT NOT NULL DEFAULT '',
	sub_level_category TEXT NOT NULL DEFAULT '',
	latitude           DOUBLE PRECISION NOT NULL DEFAULT 0,
	longitude          DOUBLE PRECISION NOT NULL DEFAULT 0,
	url                TEXT NOT NULL DEFAULT '',
	scraped_at         TIMESTAMPTZ NOT NULL,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_activities_categories ON activities (top_level_category, sub_level_category);`

// EnsureSchema creates the activities table and its indexes when they do not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return MarkConnectionError(fmt.Errorf("failed to ensure schema: %w", err))
	}
	return nil
}

// MarkConnectionError tags errors caused by a broken database connection as
// transport failures so the scheduler can tell them apart from bad data.
func MarkConnectionError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrConnDone) {
		return errors.Mark(err, acquisition.ErrTransport)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Class() == "08" { // connection_exception
		return errors.Mark(err, acquisition.ErrTransport)
	}
	return err
}
