// Package voice binds the streaming core to Discord voice connections.
package voice

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/internal/log"
	"github.com/latoulicious/bunradio/internal/stream"
)

const (
	joinAttempts = 3
	readyTimeout = 10 * time.Second
	readyPoll    = 100 * time.Millisecond
)

var (
	ErrGuildNotCached = errors.New("guild is not in the state cache")
	ErrReadyTimeout   = errors.New("voice connection timed out")
)

// Platform implements stream.Platform on a discordgo session.
type Platform struct {
	session *discordgo.Session
	clock   clockwork.Clock
	logger  zerolog.Logger
	join    retrypolicy.RetryPolicy[*discordgo.VoiceConnection]

	mu    sync.Mutex
	conns map[string]*Conn // guild id -> wrapper for the session's voice connection
}

var _ stream.Platform = (*Platform)(nil)

func NewPlatform(session *discordgo.Session, clock clockwork.Clock, logger zerolog.Logger) *Platform {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	join := retrypolicy.NewBuilder[*discordgo.VoiceConnection]().
		WithMaxAttempts(joinAttempts).
		WithBackoff(time.Second, 2*time.Second).
		AbortOnErrors(context.Canceled, context.DeadlineExceeded).
		OnRetry(func(e failsafe.ExecutionEvent[*discordgo.VoiceConnection]) {
			logger.Warn().Err(e.LastError()).Int(log.FieldAttempt, e.Attempts()).Msg("voice join attempt failed")
		}).
		Build()
	return &Platform{
		session: session,
		clock:   clock,
		logger:  logger,
		join:    join,
		conns:   map[string]*Conn{},
	}
}

func (p *Platform) UserVoiceChannel(guildID, userID string) (string, error) {
	guild, err := p.session.State.Guild(guildID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrGuildNotCached, err)
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID, nil
		}
	}
	return "", nil
}

func (p *Platform) voiceConnection(guildID string) *discordgo.VoiceConnection {
	p.session.RLock()
	defer p.session.RUnlock()
	return p.session.VoiceConnections[guildID]
}

// Transport returns the guild's live voice connection, if the session has one.
func (p *Platform) Transport(guildID string) (stream.Transport, bool) {
	vc := p.voiceConnection(guildID)

	p.mu.Lock()
	defer p.mu.Unlock()
	if vc == nil {
		if c, ok := p.conns[guildID]; ok {
			c.Stop()
			delete(p.conns, guildID)
		}
		return nil, false
	}
	return p.wrap(guildID, vc), true
}

// wrap must be called with p.mu held.
func (p *Platform) wrap(guildID string, vc *discordgo.VoiceConnection) *Conn {
	if c, ok := p.conns[guildID]; ok && c.vc == vc {
		return c
	}
	c := newConn(vc, p.clock, p.logger.With().Str(log.FieldGuildID, guildID).Logger())
	p.conns[guildID] = c
	return c
}

// Connect joins channelID, retrying the handshake, and waits until the
// connection reports ready.
func (p *Platform) Connect(ctx context.Context, guildID, channelID string) (stream.Transport, error) {
	logger := p.logger.With().Str(log.FieldGuildID, guildID).Str(log.FieldChannelID, channelID).Logger()
	if ch, err := p.session.State.Channel(channelID); err == nil {
		logger = logger.With().Str("channel_name", ch.Name).Logger()
	}
	logger.Info().Msg("joining voice channel")

	vc, err := failsafe.Get(func() (*discordgo.VoiceConnection, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return p.session.ChannelVoiceJoin(guildID, channelID, false, true)
	}, p.join)
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel after %d attempts: %w", joinAttempts, err)
	}

	if err := p.waitReady(ctx, vc); err != nil {
		if derr := vc.Disconnect(); derr != nil {
			logger.Debug().Err(derr).Msg("disconnect after failed handshake")
		}
		return nil, err
	}
	logger.Info().Msg("voice connection ready")

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.wrap(guildID, vc), nil
}

func (p *Platform) waitReady(ctx context.Context, vc *discordgo.VoiceConnection) error {
	timeout := p.clock.After(readyTimeout)
	ticker := p.clock.NewTicker(readyPoll)
	defer ticker.Stop()

	for {
		vc.RLock()
		ready := vc.Ready
		vc.RUnlock()
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timeout:
			return ErrReadyTimeout
		case <-ticker.Chan():
		}
	}
}

func (p *Platform) GuildExists(guildID string) bool {
	_, err := p.session.State.Guild(guildID)
	return err == nil
}

// Listeners counts members in channelID other than the bot itself. Other
// bots only count when countBots is set.
func (p *Platform) Listeners(guildID, channelID string, countBots bool) int {
	guild, err := p.session.State.Guild(guildID)
	if err != nil {
		return 0
	}
	self := ""
	if p.session.State.User != nil {
		self = p.session.State.User.ID
	}

	n := 0
	for _, vs := range guild.VoiceStates {
		if vs.ChannelID != channelID || vs.UserID == self {
			continue
		}
		if !countBots && p.isBot(guildID, vs) {
			continue
		}
		n++
	}
	return n
}

func (p *Platform) isBot(guildID string, vs *discordgo.VoiceState) bool {
	if vs.Member != nil && vs.Member.User != nil {
		return vs.Member.User.Bot
	}
	if m, err := p.session.State.Member(guildID, vs.UserID); err == nil && m.User != nil {
		return m.User.Bot
	}
	return false
}

// ConnectedGuilds lists guilds the session holds a voice connection in.
func (p *Platform) ConnectedGuilds() []string {
	p.session.RLock()
	defer p.session.RUnlock()
	ids := make([]string, 0, len(p.session.VoiceConnections))
	for id := range p.session.VoiceConnections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
