package commands

import (
	"context"

	"github.com/latoulicious/bunradio/internal/stream"
)

// Leave stops playback and disconnects.
func (h *Handler) Leave(ctx context.Context, inv Invocation) Reply {
	if _, ok := h.Voice.Transport(inv.GuildID); !ok {
		return errorReply(stream.ErrNoVoiceClient)
	}
	if err := h.Controller.Stop(ctx, inv.GuildID); err != nil {
		return errorReply(err)
	}
	return Reply{Content: stream.MsgLeaving}
}
