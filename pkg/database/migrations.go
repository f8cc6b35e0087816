package database

import (
	"context"
	"crypto/md5"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// migrationScript represents a single database migration
type migrationScript struct {
	Version     int
	Name        string
	Description string
	UpSQL       string
}

var migrations = []migrationScript{
	{
		Version:     1,
		Name:        "session_snapshots",
		Description: "Create the per-guild session snapshot table",
		UpSQL: `
			CREATE TABLE IF NOT EXISTS session_snapshots (
				guild_id TEXT PRIMARY KEY,
				record TEXT NOT NULL,
				saved_at DATETIME NOT NULL
			);
		`,
	},
	{
		Version:     2,
		Name:        "session_snapshot_pids",
		Description: "Index snapshots that still own a transcoder process",
		UpSQL: `
			ALTER TABLE session_snapshots ADD COLUMN transcoder_pid INTEGER NOT NULL DEFAULT 0;
			CREATE INDEX IF NOT EXISTS idx_session_snapshots_pid ON session_snapshots(transcoder_pid);
		`,
	},
}

// calculateChecksum calculates MD5 checksum of migration SQL
func calculateChecksum(sql string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(sql)))
}

func initializeMigrationTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		checksum TEXT NOT NULL,
		applied_at DATETIME NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	return nil
}

func currentVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get current version: %w", err)
	}
	return version, nil
}

// migrate applies every pending migration in its own transaction and checks
// that already-applied ones have not been edited since.
func migrate(ctx context.Context, db *sql.DB, logger zerolog.Logger) error {
	if err := initializeMigrationTable(ctx, db); err != nil {
		return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
	}

	for _, m := range migrations {
		var checksum string
		err := db.QueryRowContext(ctx, "SELECT checksum FROM schema_migrations WHERE version = ?", m.Version).Scan(&checksum)
		switch {
		case err == nil:
			if checksum != calculateChecksum(m.UpSQL) {
				return fmt.Errorf("%w: version %d", ErrChecksumMismatch, m.Version)
			}
			continue
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("%w: %w", ErrMigrationFailed, err)
		}

		if err := runMigration(ctx, db, m); err != nil {
			return fmt.Errorf("%w: version %d: %w", ErrMigrationFailed, m.Version, err)
		}
		logger.Info().Int("version", m.Version).Str("name", m.Name).Msg("applied migration")
	}
	return nil
}

func runMigration(ctx context.Context, db *sql.DB, m migrationScript) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name, description, checksum, applied_at)
		VALUES (?, ?, ?, ?, ?)
	`, m.Version, m.Name, m.Description, calculateChecksum(m.UpSQL), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update migration tracking: %w", err)
	}
	return tx.Commit()
}
