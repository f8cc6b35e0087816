// Package announcer posts a now-playing card whenever a station changes track.
package announcer

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/internal/commands"
	"github.com/latoulicious/bunradio/internal/log"
	"github.com/latoulicious/bunradio/internal/session"
	"github.com/latoulicious/bunradio/pkg/station"
)

type SongSource interface {
	CurrentSong(ctx context.Context, url string) (station.NowPlaying, error)
}

// EmbedNotifier is satisfied by *voice.Notifier.
type EmbedNotifier interface {
	NotifyEmbed(channelID string, embed *discordgo.MessageEmbed) error
}

type Announcer struct {
	store    *session.Store
	songs    SongSource
	notifier EmbedNotifier
	clock    clockwork.Clock
	logger   zerolog.Logger
}

func New(store *session.Store, songs SongSource, notifier EmbedNotifier, clock clockwork.Clock, logger zerolog.Logger) *Announcer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Announcer{store: store, songs: songs, notifier: notifier, clock: clock, logger: logger}
}

// Run checks every active session once. It never fails; problems with one
// station are logged and the others are still checked.
func (a *Announcer) Run(ctx context.Context) error {
	for _, guildID := range a.store.Active() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.check(ctx, guildID)
	}
	return nil
}

func (a *Announcer) check(ctx context.Context, guildID string) {
	rec := a.store.Get(guildID)
	if rec.StreamURL == "" || rec.CleaningUp {
		return
	}
	logger := a.logger.With().Str(log.FieldGuildID, guildID).Logger()

	np, err := a.songs.CurrentSong(ctx, rec.StreamURL)
	if err != nil {
		logger.Debug().Err(err).Msg("now-playing lookup failed")
		return
	}
	if np.FromCache || np.Song == "" || np.Song == rec.CurrentSong {
		return
	}

	// Only record the song if the stream did not change underneath us.
	var changed bool
	a.store.Update(guildID, func(r *session.Record) {
		if r.StreamURL != rec.StreamURL || r.CurrentSong != rec.CurrentSong {
			return
		}
		r.CurrentSong = np.Song
		changed = true
	})
	if !changed || rec.CurrentSong == "" || rec.TextChannel == "" {
		return
	}

	embed := commands.NowPlayingEmbed(np, rec.IsPrivate, a.clock.Now())
	if err := a.notifier.NotifyEmbed(rec.TextChannel, embed); err != nil {
		logger.Debug().Err(err).Msg("now-playing card not delivered")
		return
	}
	logger.Info().Str("song", np.Song).Msg("announced song change")
}
