package stream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/latoulicious/bunradio/internal/session"
)

func TestRestoreSessions(t *testing.T) {
	h := newHarness(t)
	records := []session.Record{
		{GuildID: "guild-1", StreamURL: testURL, TextChannel: "text-1", IsPrivate: true, TranscoderPID: 4242, CurrentSong: "Old"},
		{GuildID: "guild-2", StreamURL: testURL, TextChannel: "text-2"},
		{GuildID: "guild-3", TextChannel: "text-3", CleaningUp: true},
		{StreamURL: testURL},
	}

	n := h.ctl.RestoreSessions(context.Background(), records)
	assert.Equal(t, 2, n)

	assert.Empty(t, h.supervisor.terminatedPIDs(), "pids from a previous run are never signalled")
	assert.Equal(t, []string{MsgRestored, MsgRestored}, h.notifier.messages())

	rec := h.store.Get("guild-1")
	assert.True(t, rec.IsEmpty())
	assert.Equal(t, "text-1", rec.TextChannel)
	assert.True(t, rec.IsPrivate)
	assert.Empty(t, h.store.Active())
	assert.False(t, h.store.Get("guild-3").CleaningUp)

	h.start(t)
	assert.Equal(t, StatePlaying, h.ctl.State(testGuild))
}
