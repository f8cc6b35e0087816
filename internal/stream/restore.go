package stream

import (
	"context"

	"github.com/latoulicious/bunradio/internal/log"
	"github.com/latoulicious/bunradio/internal/session"
)

// RestoreSessions handles records saved by a previous run. Playback cannot
// survive a restart, so each session that was streaming is told to start
// again and is reset. Text channel and privacy are kept.
func (c *Controller) RestoreSessions(ctx context.Context, records []session.Record) int {
	fresh := make([]session.Record, 0, len(records))
	for _, rec := range records {
		// Flags, counters and pids from the previous run mean nothing now.
		rec.CleaningUp = false
		rec.HealthErrorCounts = nil
		rec.TranscoderPID = 0
		fresh = append(fresh, rec)
	}
	c.store.Restore(fresh)

	restored := 0
	for _, rec := range records {
		if rec.GuildID == "" || rec.StreamURL == "" {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		logger := c.log(rec.GuildID)

		if rec.TranscoderPID > 0 {
			// The pid belonged to the previous run and may have been reused
			// since, so it is never signalled.
			logger.Warn().Int(log.FieldPID, rec.TranscoderPID).Msg("transcoder from the previous run may still be running")
		}
		c.Notify(rec.GuildID, MsgRestored)
		c.store.Clear(rec.GuildID, session.FieldTextChannel, session.FieldIsPrivate)

		logger.Info().Str(log.FieldURL, rec.StreamURL).Msg("restored session from snapshot")
		restored++
	}
	return restored
}
