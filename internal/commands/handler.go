// Package commands implements the bot's slash commands independently of the
// interaction plumbing in internal/handlers.
package commands

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/internal/session"
	"github.com/latoulicious/bunradio/internal/stream"
	"github.com/latoulicious/bunradio/pkg/network"
	"github.com/latoulicious/bunradio/pkg/station"
)

// Controller is the part of the stream controller commands drive.
type Controller interface {
	Start(ctx context.Context, req stream.StartRequest) error
	Stop(ctx context.Context, guildID string) error
	Refresh(ctx context.Context, req stream.StartRequest) error
	Status(guildID string) stream.Status
}

type VoiceLookup interface {
	Transport(guildID string) (stream.Transport, bool)
}

type SongSource interface {
	CurrentSong(ctx context.Context, url string) (station.NowPlaying, error)
}

type UpstreamHealth interface {
	AllHealth() []network.UpstreamHealth
}

// Invocation is one slash command call.
type Invocation struct {
	Name      string
	GuildID   string
	ChannelID string
	UserID    string
	Options   map[string]any
}

func (inv Invocation) String(name string) string {
	s, _ := inv.Options[name].(string)
	return s
}

func (inv Invocation) Bool(name string) bool {
	b, _ := inv.Options[name].(bool)
	return b
}

// Reply is what the command answers with.
type Reply struct {
	Content   string
	Embed     *discordgo.MessageEmbed
	Ephemeral bool
}

type Deps struct {
	Controller Controller
	Store      *session.Store
	Voice      VoiceLookup
	Songs      SongSource
	Playlists  station.Fetcher
	Upstreams  UpstreamHealth
	// GuildCount reports how many guilds the bot is in.
	GuildCount func() int
	OwnerID    string
}

type Handler struct {
	Deps
	logger zerolog.Logger
}

func NewHandler(deps Deps, logger zerolog.Logger) *Handler {
	return &Handler{Deps: deps, logger: logger}
}

// Handle dispatches inv to its command.
func (h *Handler) Handle(ctx context.Context, inv Invocation) Reply {
	switch inv.Name {
	case "play":
		return h.Play(ctx, inv)
	case "leave":
		return h.Leave(ctx, inv)
	case "refresh":
		return h.Refresh(ctx, inv)
	case "song":
		return h.Song(ctx, inv)
	case "debug":
		return h.Debug(ctx, inv)
	}
	return Reply{Content: "❌ Unknown command."}
}

func errorReply(err error) Reply {
	return Reply{Content: stream.UserMessage(err)}
}
