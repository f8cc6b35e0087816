package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/latoulicious/bunradio/internal/session"
	"github.com/latoulicious/bunradio/internal/stream"
	"github.com/latoulicious/bunradio/pkg/network"
)

type debugReport struct {
	Session   session.Record           `json:"session"`
	Stream    stream.Status            `json:"stream"`
	Upstreams []network.UpstreamHealth `json:"upstreams,omitempty"`
}

// Debug shows internal state. Anyone but the owner only gets the guild count.
func (h *Handler) Debug(_ context.Context, inv Invocation) Reply {
	var b strings.Builder
	b.WriteString("==\tGlobal Info\t==\n")

	guilds := 0
	if h.GuildCount != nil {
		guilds = h.GuildCount()
	}
	if h.OwnerID == "" || inv.UserID != h.OwnerID {
		fmt.Fprintf(&b, "Guild count: %d", guilds)
		return Reply{Content: b.String(), Ephemeral: true}
	}

	report := debugReport{
		Session: h.Store.Get(inv.GuildID),
		Stream:  h.Controller.Status(inv.GuildID),
	}
	if h.Upstreams != nil {
		report.Upstreams = h.Upstreams.AllHealth()
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return errorReply(err)
	}

	fmt.Fprintf(&b, "Guild count: %d\nActive sessions: %d\n```json\n%s\n```", guilds, len(h.Store.Active()), data)
	return Reply{Content: b.String(), Ephemeral: true}
}
