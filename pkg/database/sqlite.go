// Package database persists session snapshots in SQLite.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const connectTimeout = 5 * time.Second

// DB is an open, migrated SQLite database.
type DB struct {
	db     *sql.DB
	path   string
	logger zerolog.Logger

	mu     sync.RWMutex
	closed bool
}

// Open connects to the database at path and applies pending migrations.
func Open(ctx context.Context, path string, logger zerolog.Logger) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrInvalidDatabasePath
	}

	db, err := sql.Open("sqlite3", buildConnectionString(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Msg("database connected")
	return &DB{db: db, path: path, logger: logger}, nil
}

func buildConnectionString(path string) string {
	return path + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"
}

// Ping tests the database connection.
func (d *DB) Ping(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDatabaseNotConnected
	}
	return d.db.PingContext(ctx)
}

func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	if err := d.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (d *DB) SchemaVersion(ctx context.Context) (int, error) {
	return currentVersion(ctx, d.db)
}
