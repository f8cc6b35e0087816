package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/latoulicious/bunradio/internal/log"
	"github.com/latoulicious/bunradio/internal/stream"
	"github.com/latoulicious/bunradio/pkg/station"
)

// Play starts a station in the caller's voice channel.
func (h *Handler) Play(ctx context.Context, inv Invocation) Reply {
	if h.Store.Get(inv.GuildID).CleaningUp {
		return errorReply(stream.ErrCleaningUp)
	}

	url := strings.TrimSpace(inv.String("url"))
	if err := station.ValidateStreamURL(url); err != nil {
		return errorReply(err)
	}

	if station.IsPlaylist(url) {
		resolved, err := station.ResolvePlaylist(ctx, h.Playlists, url)
		if err != nil {
			h.logger.Warn().Err(err).Str(log.FieldURL, url).Msg("could not resolve playlist")
			return errorReply(fmt.Errorf("%w: %w", stream.ErrStreamOffline, err))
		}
		h.logger.Debug().Str(log.FieldURL, resolved).Msg("resolved playlist")
		url = resolved
	}

	err := h.Controller.Start(ctx, stream.StartRequest{
		GuildID:       inv.GuildID,
		UserID:        inv.UserID,
		TextChannelID: inv.ChannelID,
		URL:           url,
		Private:       inv.Bool("private"),
	})
	if err != nil {
		return errorReply(err)
	}
	return Reply{Content: "Starting channel " + url}
}
