// Package health periodically reconciles session records with what the
// voice platform and the stations actually report.
package health

import (
	"context"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/internal/log"
	"github.com/latoulicious/bunradio/internal/metrics"
	"github.com/latoulicious/bunradio/internal/session"
	"github.com/latoulicious/bunradio/internal/stream"
)

type Config struct {
	Interval time.Duration
	// ErrorThreshold is how many consecutive sweeps a problem must persist
	// before the session is torn down.
	ErrorThreshold int
	IdleTimeout    time.Duration
	// CountBots makes other bots keep a channel from being idle.
	CountBots bool
}

func DefaultConfig() Config {
	return Config{
		Interval:       15 * time.Second,
		ErrorThreshold: 3,
		IdleTimeout:    45 * time.Minute,
	}
}

// Controller is the slice of the stream controller the monitor acts through.
type Controller interface {
	State(guildID string) stream.State
	Teardown(ctx context.Context, guildID, notice string)
}

type Monitor struct {
	cfg        Config
	store      *session.Store
	platform   stream.Platform
	gateway    stream.Gateway
	controller Controller
	clock      clockwork.Clock
	logger     zerolog.Logger
}

func NewMonitor(cfg Config, store *session.Store, platform stream.Platform, gateway stream.Gateway,
	controller Controller, clock clockwork.Clock, logger zerolog.Logger,
) *Monitor {
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.ErrorThreshold <= 0 {
		cfg.ErrorThreshold = def.ErrorThreshold
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = def.IdleTimeout
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Monitor{
		cfg:        cfg,
		store:      store,
		platform:   platform,
		gateway:    gateway,
		controller: controller,
		clock:      clock,
		logger:     logger,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Info().Dur("interval", m.cfg.Interval).Msg("health monitor started")
	for {
		select {
		case <-ticker.Chan():
			m.Sweep(ctx)
		case <-ctx.Done():
			m.logger.Info().Msg("health monitor stopped")
			return
		}
	}
}

// Sweep checks every guild that has a session record or a live voice
// connection. A failing guild never stops the others from being checked.
func (m *Monitor) Sweep(ctx context.Context) {
	for _, guildID := range m.guilds() {
		if ctx.Err() != nil {
			return
		}
		m.check(ctx, guildID)
	}
}

func (m *Monitor) guilds() []string {
	seen := map[string]struct{}{}
	for _, id := range m.store.Active() {
		seen[id] = struct{}{}
	}
	for _, id := range m.platform.ConnectedGuilds() {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Monitor) check(ctx context.Context, guildID string) {
	logger := m.logger.With().Str(log.FieldGuildID, guildID).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("health check panicked")
		}
	}()

	rec := m.store.Get(guildID)
	if rec.CleaningUp {
		return
	}
	if state := m.controller.State(guildID); state.Busy() {
		logger.Debug().Str("state", state.String()).Msg("skipping guild in transition")
		return
	}

	fired := map[session.ErrorKind]bool{}
	if kind, ok := m.desync(guildID, rec); ok {
		fired[kind] = true
	}
	if rec.StreamURL != "" {
		if m.stationDown(ctx, logger, rec.StreamURL) {
			fired[session.StreamOffline] = true
		}
		if m.idle(guildID, rec) {
			fired[session.InactiveChannel] = true
		}
	}

	counts := m.store.Update(guildID, func(r *session.Record) {
		for _, kind := range session.ErrorKinds {
			if fired[kind] {
				r.HealthErrorCounts[kind]++
			} else {
				delete(r.HealthErrorCounts, kind)
			}
		}
	})

	for _, kind := range session.ErrorKinds {
		if !fired[kind] {
			continue
		}
		metrics.RecordHealthError(string(kind))
		n := counts.ErrorCount(kind)
		logger.Debug().Str(log.FieldErrorKind, string(kind)).Int("count", n).Msg("health check failed")
		if n < m.cfg.ErrorThreshold {
			continue
		}
		logger.Warn().Str(log.FieldErrorKind, string(kind)).Int("count", n).Msg("persistent health error, tearing down session")
		metrics.RecordHealthTeardown(string(kind))
		m.controller.Teardown(ctx, guildID, Notice(kind))
		return
	}
}

// desync compares the record against the voice connection and reports at
// most one mismatch. A vanished guild is reported as INACTIVE_GUILD before the
// record is looked at, so it wins over STALE_STATE.
func (m *Monitor) desync(guildID string, rec session.Record) (session.ErrorKind, bool) {
	if !m.platform.GuildExists(guildID) {
		return session.InactiveGuild, true
	}
	t, ok := m.platform.Transport(guildID)
	if rec.StreamURL == "" {
		if ok {
			return session.NoActiveStream, true
		}
		if !rec.IsEmpty() {
			return session.StaleState, true
		}
		return "", false
	}
	if !ok || !t.IsConnected() {
		return session.ClientNotInChat, true
	}
	if !t.IsPlaying() {
		return session.NotPlaying, true
	}
	return "", false
}

func (m *Monitor) stationDown(ctx context.Context, logger zerolog.Logger, url string) bool {
	info, err := m.gateway.GetStationInfo(ctx, url)
	if err != nil || !info.Online {
		logger.Debug().Err(err).Str(log.FieldURL, url).Msg("station reported offline")
		return true
	}
	if info.Metadata == nil {
		logger.Debug().Str(log.FieldURL, url).Msg("station is up without metadata")
	}
	return false
}

// idle tracks channel occupancy and reports a channel that has been empty
// for longer than the idle timeout.
func (m *Monitor) idle(guildID string, rec session.Record) bool {
	t, ok := m.platform.Transport(guildID)
	if !ok || !t.IsConnected() {
		return false
	}
	now := m.clock.Now()
	if m.platform.Listeners(guildID, t.ChannelID(), m.cfg.CountBots) > 0 {
		m.store.Update(guildID, func(r *session.Record) { r.LastActiveUserTime = now })
		return false
	}
	if rec.LastActiveUserTime.IsZero() {
		m.store.Update(guildID, func(r *session.Record) { r.LastActiveUserTime = now })
		return false
	}
	return now.Sub(rec.LastActiveUserTime) > m.cfg.IdleTimeout
}

// Notice is the message posted when a session is torn down for kind.
func Notice(kind session.ErrorKind) string {
	switch kind {
	case session.StreamOffline:
		return stream.MsgStreamOffline
	case session.InactiveChannel:
		return stream.MsgInactiveChannel
	case session.InactiveGuild:
		return ""
	default:
		return stream.MsgDisconnected
	}
}
