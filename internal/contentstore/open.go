// Package contentstore provides the content-addressed SQLite cache for
// fetched article bodies, keyed by URL with a time-to-live eviction sweep.
package contentstore

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// ConnectionConfig holds SQLite connection pool configuration. SQLite
// serializes writes internally, so a small pool is deliberate here, unlike
// the larger Postgres pool used elsewhere in this module.
type ConnectionConfig struct {
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// DefaultConnectionConfig returns the default connection pool configuration
// for the content cache.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		MaxOpenConns:    1,
		ConnMaxLifetime: time.Hour,
	}
}

// Open opens (creating if necessary) the SQLite database at path and
// applies the embedded schema. Callers own the returned *sql.DB and must
// Close it.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("contentstore: open: %w", err)
	}

	cfg := DefaultConnectionConfig()
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("contentstore: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("contentstore: apply schema: %w", err)
	}

	slog.Info("content store opened", slog.String("path", path))
	return db, nil
}
