// Package stream owns the start, stop and refresh lifecycle of guild playback.
package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/internal/log"
	"github.com/latoulicious/bunradio/internal/metrics"
	"github.com/latoulicious/bunradio/internal/session"
	"github.com/latoulicious/bunradio/pkg/transcoder"
)

// Config tunes the controller.
type Config struct {
	Transcoder       transcoder.Options
	TerminateTimeout time.Duration
	// Teardown waits for the transport to report stopped/disconnected by
	// polling PollAttempts times, PollInterval apart.
	PollInterval time.Duration
	PollAttempts int
}

func DefaultConfig() Config {
	return Config{
		Transcoder:       transcoder.DefaultOptions(),
		TerminateTimeout: transcoder.DefaultTerminateTimeout,
		PollInterval:     200 * time.Millisecond,
		PollAttempts:     25,
	}
}

// StartRequest carries everything a play command resolved.
type StartRequest struct {
	GuildID       string
	UserID        string
	TextChannelID string
	URL           string
	Private       bool
}

// Status is a debugging view of one guild's runtime state.
type Status struct {
	State            string `json:"state"`
	VoiceChannel     string `json:"voice_channel,omitempty"`
	RecoveryAttempts int    `json:"recovery_attempts"`
	Generation       uint64 `json:"generation"`
}

// guild is the controller's runtime bookkeeping for one guild.
type guild struct {
	mu         sync.Mutex
	state      State
	generation uint64
	channelID  string
	attempts   int
}

type Controller struct {
	ctx        context.Context
	cfg        Config
	store      *session.Store
	platform   Platform
	gateway    Gateway
	supervisor Supervisor
	notifier   Notifier
	clock      clockwork.Clock
	logger     zerolog.Logger

	recoverer Recoverer
	guilds    sync.Map // guild id -> *guild
}

// NewController wires the lifecycle controller. ctx bounds the lifetime of
// every transcoder it starts.
func NewController(ctx context.Context, cfg Config, store *session.Store, platform Platform, gateway Gateway,
	supervisor Supervisor, notifier Notifier, clock clockwork.Clock, logger zerolog.Logger,
) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.PollAttempts <= 0 {
		cfg.PollAttempts = DefaultConfig().PollAttempts
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	return &Controller{
		ctx:        ctx,
		cfg:        cfg,
		store:      store,
		platform:   platform,
		gateway:    gateway,
		supervisor: supervisor,
		notifier:   notifier,
		clock:      clock,
		logger:     logger,
	}
}

// SetRecoverer installs the handler for recoverable playback failures.
// Without one every failure tears the session down.
func (c *Controller) SetRecoverer(r Recoverer) {
	c.recoverer = r
}

func (c *Controller) guild(id string) *guild {
	g, _ := c.guilds.LoadOrStore(id, &guild{})
	return g.(*guild)
}

// State returns the lifecycle state of a guild.
func (c *Controller) State(guildID string) State {
	g := c.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

func (c *Controller) Status(guildID string) Status {
	g := c.guild(guildID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return Status{
		State:            g.state.String(),
		VoiceChannel:     g.channelID,
		RecoveryAttempts: g.attempts,
		Generation:       g.generation,
	}
}

func (c *Controller) log(guildID string) zerolog.Logger {
	return c.logger.With().Str(log.FieldGuildID, guildID).Logger()
}

func (c *Controller) setState(guildID string, g *guild, to State) {
	if g.state == to {
		return
	}
	logger := c.log(guildID)
	logger.Debug().
		Str(log.FieldOldState, g.state.String()).
		Str(log.FieldNewState, to.String()).
		Msg("stream state changed")
	g.state = to
}

// Start begins playback of req.URL in the invoking user's voice channel.
func (c *Controller) Start(ctx context.Context, req StartRequest) error {
	logger := c.log(req.GuildID).With().Str(log.FieldURL, req.URL).Logger()

	if strings.TrimSpace(req.URL) == "" {
		return ErrNoStreamSelected
	}
	if c.store.Get(req.GuildID).CleaningUp {
		return ErrCleaningUp
	}

	channelID, err := c.platform.UserVoiceChannel(req.GuildID, req.UserID)
	if err != nil || channelID == "" {
		return ErrAuthorNotInVoice
	}

	if t, ok := c.platform.Transport(req.GuildID); ok && t.IsPlaying() {
		return ErrAlreadyPlaying
	}

	g := c.guild(req.GuildID)
	g.mu.Lock()
	switch g.state {
	case StateStopping:
		g.mu.Unlock()
		return ErrCleaningUp
	case StateConnecting, StateRecovering:
		g.mu.Unlock()
		return ErrAlreadyPlaying
	}
	// Idle, or Playing with a transport that has gone quiet. The new
	// generation is this call's claim on the guild; a Stop or another
	// Start supersedes it.
	g.generation++
	epoch := g.generation
	c.setState(req.GuildID, g, StateConnecting)
	g.mu.Unlock()

	promoted := false
	defer func() {
		if promoted {
			return
		}
		g.mu.Lock()
		if g.generation == epoch && g.state == StateConnecting {
			c.setState(req.GuildID, g, StateIdle)
		}
		g.mu.Unlock()
	}()

	if _, err := c.gateway.GetStationInfo(ctx, req.URL); err != nil {
		logger.Warn().Err(err).Msg("station check failed, not starting")
		if !errors.Is(err, ErrStreamOffline) {
			err = fmt.Errorf("%w: %w", ErrStreamOffline, err)
		}
		return err
	}

	wrote := c.whileCurrent(g, epoch, StateConnecting, func() {
		c.store.Update(req.GuildID, func(r *session.Record) {
			now := c.clock.Now()
			r.StreamURL = req.URL
			r.IsPrivate = req.Private
			if req.TextChannelID != "" {
				r.TextChannel = req.TextChannelID
			}
			r.StartTime = now
			r.LastActiveUserTime = now
			r.CurrentSong = ""
			r.TranscoderPID = 0
			r.HealthErrorCounts = map[session.ErrorKind]int{}
		})
	})
	if !wrote {
		logger.Info().Msg("session changed during station check, not starting")
		return ErrCleaningUp
	}

	if err := c.launch(ctx, req.GuildID, channelID, req.URL, StateConnecting, epoch, 0); err != nil {
		// Nothing of ours is playing; drop the intent written above unless a
		// newer call owns the record by now.
		c.whileCurrent(g, epoch, StateConnecting, func() {
			c.store.Clear(req.GuildID, session.FieldTextChannel, session.FieldIsPrivate, session.FieldCleaningUp)
		})
		logger.Error().Err(err).Msg("failed to start stream")
		return err
	}
	promoted = true

	logger.Info().Str(log.FieldChannelID, channelID).Msg("stream started")
	c.refreshActiveGauge()
	return nil
}

// whileCurrent runs fn under the guild lock if the guild is still in state
// at generation epoch, and reports whether it ran.
func (c *Controller) whileCurrent(g *guild, epoch uint64, state State, fn func()) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.generation != epoch || g.state != state {
		return false
	}
	fn()
	return true
}

// launch connects or reuses the transport, starts the transcoder, begins
// playback and subscribes to its completion. The guild must still be in from
// at generation epoch when playback is promoted; otherwise only what this call
// started is undone.
func (c *Controller) launch(ctx context.Context, guildID, channelID, url string, from State, epoch uint64, attempt int) error {
	logger := c.log(guildID)
	g := c.guild(guildID)

	transport, created, err := c.acquireTransport(ctx, guildID, channelID)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrVoiceUnavailable, err)
	}
	abandon := func() {
		if !created {
			return
		}
		// A newer call may already be using the connection we opened.
		g.mu.Lock()
		inUse := g.generation != epoch && g.state != StateIdle && g.state != StateStopping
		g.mu.Unlock()
		if inUse {
			return
		}
		if err := transport.Disconnect(ctx); err != nil {
			logger.Warn().Err(err).Msg("failed to disconnect abandoned transport")
		}
	}

	handle, err := c.supervisor.Start(c.ctx, url, c.cfg.Transcoder)
	if err != nil {
		abandon()
		return fmt.Errorf("start transcoder: %w", err)
	}

	done, err := transport.Play(handle)
	if err != nil {
		c.supervisor.Terminate(handle.PID(), c.cfg.TerminateTimeout)
		abandon()
		return fmt.Errorf("start playback: %w", err)
	}

	pid := 0
	if h, ok := transport.UnderlyingProcess(); ok && h != nil {
		pid = h.PID()
	} else {
		logger.Warn().Msg("transport does not expose its transcoder, forced cleanup will be skipped")
	}

	g.mu.Lock()
	if g.generation != epoch || g.state != from {
		g.mu.Unlock()
		logger.Info().Str("state", g.state.String()).Msg("session changed while starting, abandoning playback")
		if h, ok := transport.UnderlyingProcess(); ok && h != nil && h.PID() == handle.PID() {
			transport.Stop()
		}
		c.supervisor.Terminate(handle.PID(), c.cfg.TerminateTimeout)
		abandon()
		return ErrCleaningUp
	}
	g.channelID = transport.ChannelID()
	if g.channelID == "" {
		g.channelID = channelID
	}
	g.attempts = attempt
	c.setState(guildID, g, StatePlaying)
	// Recorded before the lock is released so a Stop that follows sees it.
	c.store.Update(guildID, func(r *session.Record) { r.TranscoderPID = pid })
	g.mu.Unlock()

	if pid > 0 {
		logger.Debug().Int(log.FieldPID, pid).Msg("recorded transcoder pid")
	}

	go c.await(guildID, epoch, done)
	return nil
}

func (c *Controller) acquireTransport(ctx context.Context, guildID, channelID string) (Transport, bool, error) {
	if t, ok := c.platform.Transport(guildID); ok && t.IsConnected() {
		return t, false, nil
	}
	t, err := c.platform.Connect(ctx, guildID, channelID)
	if err != nil {
		return nil, false, err
	}
	return t, true, nil
}

// await receives the completion signal of one playback generation.
func (c *Controller) await(guildID string, gen uint64, done <-chan error) {
	err := <-done
	logger := c.log(guildID)

	g := c.guild(guildID)
	g.mu.Lock()
	if g.generation != gen || g.state != StatePlaying {
		g.mu.Unlock()
		logger.Debug().Err(err).Msg("ignoring completion of superseded playback")
		return
	}
	attempt := g.attempts
	handOff := err != nil && c.recoverer != nil
	if handOff {
		c.setState(guildID, g, StateRecovering)
	}
	g.mu.Unlock()

	if err == nil {
		logger.Info().Msg("playback ended")
		c.Teardown(c.ctx, guildID, MsgStreamOffline)
		return
	}

	logger.Warn().Err(err).Int(log.FieldAttempt, attempt).Msg("playback failed")
	if handOff {
		c.recoverer.Recover(c.ctx, guildID, err, attempt)
		return
	}
	c.Teardown(c.ctx, guildID, MsgStreamBroken)
}

// Restart re-launches playback for a recovering session. It is the primitive
// the recovery loop drives; attempt becomes the episode's spent attempt count.
func (c *Controller) Restart(ctx context.Context, guildID string, attempt int) error {
	rec := c.store.Get(guildID)
	if rec.CleaningUp {
		return ErrCleaningUp
	}
	if rec.StreamURL == "" {
		return ErrNoStreamSelected
	}

	g := c.guild(guildID)
	g.mu.Lock()
	if g.state != StateRecovering {
		g.mu.Unlock()
		return ErrNotRecovering
	}
	epoch := g.generation
	channelID := g.channelID
	g.mu.Unlock()

	if _, err := c.gateway.GetStationInfo(ctx, rec.StreamURL); err != nil {
		return err
	}

	if rec.TranscoderPID > 0 {
		c.supervisor.Terminate(rec.TranscoderPID, c.cfg.TerminateTimeout)
		c.whileCurrent(g, epoch, StateRecovering, func() {
			c.store.Update(guildID, func(r *session.Record) { r.TranscoderPID = 0 })
		})
	}

	if t, ok := c.platform.Transport(guildID); ok {
		// Stop is non-blocking; holding the guild lock keeps a newer
		// playback from being stopped instead.
		c.whileCurrent(g, epoch, StateRecovering, func() {
			if t.IsPlaying() {
				t.Stop()
			}
		})
	}
	return c.launch(ctx, guildID, channelID, rec.StreamURL, StateRecovering, epoch, attempt)
}

// Stop tears the session down. cleaning_up is raised before anything is
// touched and lowered only after the record has been reset.
func (c *Controller) Stop(ctx context.Context, guildID string) error {
	if !c.store.CompareAndSetCleaningUp(guildID, true) {
		return ErrCleaningUp
	}
	logger := c.log(guildID)

	g := c.guild(guildID)
	g.mu.Lock()
	g.generation++
	c.setState(guildID, g, StateStopping)
	g.mu.Unlock()

	rec := c.store.Get(guildID)
	pid := rec.TranscoderPID

	if t, ok := c.platform.Transport(guildID); ok {
		if pid == 0 {
			if h, ok := t.UnderlyingProcess(); ok && h != nil {
				pid = h.PID()
			}
		}
		if t.IsPlaying() {
			t.Stop()
			if !c.waitFor(ctx, func() bool { return !t.IsPlaying() }) {
				logger.Warn().Msg("transport still reports playing")
			}
		}
		if t.IsConnected() {
			if err := t.Disconnect(ctx); err != nil {
				logger.Warn().Err(err).Msg("failed to disconnect transport")
			}
			if !c.waitFor(ctx, func() bool { return !t.IsConnected() }) {
				logger.Warn().Msg("transport still reports connected")
			}
		}
	}

	if pid > 0 && !c.supervisor.Terminate(pid, c.cfg.TerminateTimeout) {
		logger.Error().Int(log.FieldPID, pid).Msg("transcoder could not be terminated")
	}

	c.store.Clear(guildID, session.FieldTextChannel, session.FieldIsPrivate, session.FieldCleaningUp)

	g.mu.Lock()
	g.channelID = ""
	g.attempts = 0
	c.setState(guildID, g, StateIdle)
	g.mu.Unlock()

	c.store.CompareAndSetCleaningUp(guildID, false)
	logger.Info().Msg("session stopped")
	c.refreshActiveGauge()
	return nil
}

// Teardown posts notice (best-effort) and stops the session.
func (c *Controller) Teardown(ctx context.Context, guildID, notice string) {
	rec := c.store.Get(guildID)
	if notice != "" && rec.TextChannel != "" && c.notifier != nil {
		if err := c.notifier.Notify(rec.TextChannel, notice); err != nil {
			logger := c.log(guildID)
			logger.Debug().Err(err).Msg("teardown notice not delivered")
		}
	}
	if err := c.Stop(ctx, guildID); err != nil {
		logger := c.log(guildID)
		logger.Debug().Err(err).Msg("teardown already in progress")
	}
}

// Refresh restarts the current station for the invoking user.
func (c *Controller) Refresh(ctx context.Context, req StartRequest) error {
	rec := c.store.Get(req.GuildID)
	if rec.StreamURL == "" {
		return ErrNoStreamSelected
	}
	req.URL = rec.StreamURL
	req.Private = rec.IsPrivate
	if req.TextChannelID == "" {
		req.TextChannelID = rec.TextChannel
	}

	if err := c.Stop(ctx, req.GuildID); err != nil {
		return err
	}
	return c.Start(ctx, req)
}

// Notify posts to the guild's text channel, if it has one.
func (c *Controller) Notify(guildID, message string) {
	channel := c.store.Get(guildID).TextChannel
	if channel == "" || c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(channel, message); err != nil {
		logger := c.log(guildID)
		logger.Debug().Err(err).Msg("notice not delivered")
	}
}

func (c *Controller) waitFor(ctx context.Context, cond func() bool) bool {
	for i := 0; i < c.cfg.PollAttempts; i++ {
		if cond() {
			return true
		}
		select {
		case <-ctx.Done():
			return cond()
		case <-c.clock.After(c.cfg.PollInterval):
		}
	}
	return cond()
}

func (c *Controller) refreshActiveGauge() {
	metrics.SetActiveSessions(c.ActiveCount())
}

// ActiveCount is the number of guilds currently playing or recovering.
func (c *Controller) ActiveCount() int {
	n := 0
	c.guilds.Range(func(_, v any) bool {
		g := v.(*guild)
		g.mu.Lock()
		if g.state == StatePlaying || g.state == StateRecovering {
			n++
		}
		g.mu.Unlock()
		return true
	})
	return n
}
