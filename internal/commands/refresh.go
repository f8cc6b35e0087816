package commands

import (
	"context"

	"github.com/latoulicious/bunradio/internal/stream"
)

// Refresh restarts the current station.
func (h *Handler) Refresh(ctx context.Context, inv Invocation) Reply {
	if h.Store.Get(inv.GuildID).StreamURL == "" {
		return errorReply(stream.ErrNoStreamSelected)
	}
	err := h.Controller.Refresh(ctx, stream.StartRequest{
		GuildID:       inv.GuildID,
		UserID:        inv.UserID,
		TextChannelID: inv.ChannelID,
	})
	if err != nil {
		return errorReply(err)
	}
	return Reply{Content: stream.MsgRefreshing}
}
