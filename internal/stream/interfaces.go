package stream

import (
	"context"
	"time"

	"github.com/latoulicious/bunradio/pkg/station"
	"github.com/latoulicious/bunradio/pkg/transcoder"
)

// Transport is a live voice connection for one guild.
type Transport interface {
	// Play starts feeding src into the connection. The returned channel
	// yields exactly one value when playback ends (nil for a clean end)
	// and is then closed.
	Play(src transcoder.Handle) (<-chan error, error)
	Stop()
	Disconnect(ctx context.Context) error
	IsPlaying() bool
	IsConnected() bool
	ChannelID() string
	// UnderlyingProcess exposes the transcoder being played, if any.
	UnderlyingProcess() (transcoder.Handle, bool)
}

// Platform is the chat platform as seen by the streaming core.
type Platform interface {
	// UserVoiceChannel returns "" when the user is not in voice.
	UserVoiceChannel(guildID, userID string) (string, error)
	Transport(guildID string) (Transport, bool)
	Connect(ctx context.Context, guildID, channelID string) (Transport, error)
	GuildExists(guildID string) bool
	// Listeners counts members in a voice channel other than ourselves.
	Listeners(guildID, channelID string, countBots bool) int
	ConnectedGuilds() []string
}

// Notifier posts best-effort status messages.
type Notifier interface {
	Notify(channelID, message string) error
}

type Gateway interface {
	GetStationInfo(ctx context.Context, url string) (station.Info, error)
}

type Supervisor interface {
	Start(ctx context.Context, url string, opts transcoder.Options) (transcoder.Handle, error)
	Terminate(pid int, timeout time.Duration) bool
}

// Recoverer takes over when playback fails. attempt is the number of
// reconnect attempts already spent on the current failure episode.
type Recoverer interface {
	Recover(ctx context.Context, guildID string, cause error, attempt int)
}
