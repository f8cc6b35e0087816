// Package recovery reconnects failed streams with bounded, increasing delays.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/internal/log"
	"github.com/latoulicious/bunradio/internal/metrics"
	"github.com/latoulicious/bunradio/internal/stream"
)

const (
	MsgRecovered      = "✅ Stream reconnected successfully!"
	MsgRecoveryFailed = "❌ Unable to reconnect to stream. Please use `/play` to start a new stream."
)

// Restarter is the slice of the stream controller that recovery drives.
type Restarter interface {
	Restart(ctx context.Context, guildID string, attempt int) error
	Teardown(ctx context.Context, guildID, notice string)
	Notify(guildID, message string)
}

type Config struct {
	MaxAttempts int
	// Delays are waited before each attempt; the last one repeats.
	Delays []time.Duration
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Delays:      []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second},
	}
}

type Controller struct {
	cfg       Config
	restarter Restarter
	clock     clockwork.Clock
	logger    zerolog.Logger
}

func NewController(cfg Config, restarter Restarter, clock clockwork.Clock, logger zerolog.Logger) *Controller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if len(cfg.Delays) == 0 {
		cfg.Delays = DefaultConfig().Delays
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Controller{cfg: cfg, restarter: restarter, clock: clock, logger: logger}
}

// Recover handles one playback failure. attempt is how many reconnects the
// current episode has already used; a failure after a successful reconnect
// continues the same count.
func (r *Controller) Recover(ctx context.Context, guildID string, cause error, attempt int) {
	logger := r.logger.With().
		Str(log.FieldGuildID, guildID).
		Str(log.FieldEpisode, uuid.NewString()).
		Logger()

	if !IsRecoverable(cause) {
		logger.Error().Err(cause).Msg("playback failure is not recoverable")
		metrics.RecordRecoveryAttempt("fatal")
		r.restarter.Teardown(ctx, guildID, stream.MsgStreamBroken)
		return
	}

	for next := attempt + 1; next <= r.cfg.MaxAttempts; next++ {
		logger.Info().Err(cause).Int(log.FieldAttempt, next).Int("max_attempts", r.cfg.MaxAttempts).Msg("attempting stream recovery")
		r.restarter.Notify(guildID, AttemptMessage(next, r.cfg.MaxAttempts))

		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(r.Delay(next)):
		}

		err := r.restarter.Restart(ctx, guildID, next)
		if err == nil {
			metrics.RecordRecoveryAttempt("success")
			logger.Info().Int(log.FieldAttempt, next).Msg("stream recovered")
			r.restarter.Notify(guildID, MsgRecovered)
			return
		}

		switch {
		case errors.Is(err, stream.ErrCleaningUp), errors.Is(err, stream.ErrNotRecovering):
			metrics.RecordRecoveryAttempt("superseded")
			logger.Info().Err(err).Msg("session left recovery, giving up quietly")
			return
		case errors.Is(err, stream.ErrVoiceUnavailable):
			metrics.RecordRecoveryAttempt("failed")
			logger.Error().Err(err).Msg("voice connection could not be reacquired")
			r.restarter.Teardown(ctx, guildID, MsgRecoveryFailed)
			return
		}

		metrics.RecordRecoveryAttempt("failed")
		logger.Warn().Err(err).Int(log.FieldAttempt, next).Msg("recovery attempt failed")
		cause = err
	}

	metrics.RecordRecoveryAttempt("exhausted")
	logger.Error().Err(cause).Msg("recovery attempts exhausted")
	r.restarter.Teardown(ctx, guildID, MsgRecoveryFailed)
}

// Delay is the wait before the given 1-based attempt.
func (r *Controller) Delay(attempt int) time.Duration {
	if attempt > len(r.cfg.Delays) {
		return r.cfg.Delays[len(r.cfg.Delays)-1]
	}
	if attempt < 1 {
		attempt = 1
	}
	return r.cfg.Delays[attempt-1]
}

// AttemptMessage is the notice posted before a reconnect attempt.
func AttemptMessage(attempt, max int) string {
	if attempt == 1 {
		return fmt.Sprintf("🔄 Stream disconnected, attempting to reconnect... (attempt %d/%d)", attempt, max)
	}
	return fmt.Sprintf("🔄 Reconnection attempt %d/%d...", attempt, max)
}
