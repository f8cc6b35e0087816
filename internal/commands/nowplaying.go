package commands

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/latoulicious/bunradio/pkg/station"
)

const (
	embedColor  = 0x0099ff
	msgNoSong   = "🔎 None. There's no song playing. Turn the stream on maybe?"
	unknownSong = "Unknown"
)

// Song reports the current track of the guild's station.
func (h *Handler) Song(ctx context.Context, inv Invocation) Reply {
	url := h.Store.Get(inv.GuildID).StreamURL
	if url == "" {
		return Reply{Content: msgNoSong}
	}
	np, err := h.Songs.CurrentSong(ctx, url)
	if err != nil {
		return errorReply(err)
	}
	return Reply{Content: "Now Playing: 🎶 " + songTitle(np) + " 🎶"}
}

func songTitle(np station.NowPlaying) string {
	if np.Song == "" {
		return unknownSong
	}
	return np.Song
}

// NowPlayingEmbed renders a track announcement. The source url is left out
// for private sessions.
func NowPlayingEmbed(np station.NowPlaying, private bool, at time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       "Now Playing",
		Description: "🎶 " + songTitle(np) + " 🎶",
		Color:       embedColor,
		Timestamp:   at.Format(time.RFC3339),
	}
	if !private {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "Source: " + np.URL}
	}
	return embed
}
