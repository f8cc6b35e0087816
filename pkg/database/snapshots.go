package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/latoulicious/bunradio/internal/session"
)

// SaveSnapshot replaces the stored snapshot with records.
func (d *DB) SaveSnapshot(ctx context.Context, records []session.Record, at time.Time) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDatabaseNotConnected
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM session_snapshots"); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO session_snapshots (guild_id, record, saved_at, transcoder_pid)
		VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to encode session %s: %w", r.GuildID, err)
		}
		if _, err := stmt.ExecContext(ctx, r.GuildID, string(data), at.UTC(), r.TranscoderPID); err != nil {
			return fmt.Errorf("failed to store session %s: %w", r.GuildID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	d.logger.Debug().Int("sessions", len(records)).Msg("saved session snapshot")
	return nil
}

// LoadSnapshot returns the stored records ordered by guild id.
func (d *DB) LoadSnapshot(ctx context.Context) ([]session.Record, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrDatabaseNotConnected
	}

	rows, err := d.db.QueryContext(ctx, "SELECT guild_id, record FROM session_snapshots ORDER BY guild_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}
	defer rows.Close()

	var records []session.Record
	for rows.Next() {
		var guildID, data string
		if err := rows.Scan(&guildID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		var r session.Record
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			d.logger.Warn().Err(err).Str("guild_id", guildID).Msg("skipping unreadable snapshot row")
			continue
		}
		r.GuildID = guildID
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot: %w", err)
	}
	return records, nil
}
