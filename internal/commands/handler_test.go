package commands

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/bunradio/internal/log"
	"github.com/latoulicious/bunradio/internal/session"
	"github.com/latoulicious/bunradio/internal/stream"
	"github.com/latoulicious/bunradio/pkg/network"
	"github.com/latoulicious/bunradio/pkg/station"
)

type fakeController struct {
	startErr error
	stopErr  error
	started  []stream.StartRequest
	stopped  []string
	refresh  []stream.StartRequest
}

func (c *fakeController) Start(_ context.Context, req stream.StartRequest) error {
	c.started = append(c.started, req)
	return c.startErr
}

func (c *fakeController) Stop(_ context.Context, guildID string) error {
	c.stopped = append(c.stopped, guildID)
	return c.stopErr
}

func (c *fakeController) Refresh(_ context.Context, req stream.StartRequest) error {
	c.refresh = append(c.refresh, req)
	return nil
}

func (c *fakeController) Status(string) stream.Status {
	return stream.Status{State: "playing", VoiceChannel: "voice-1"}
}

type fakeVoice struct{ connected bool }

func (v fakeVoice) Transport(string) (stream.Transport, bool) {
	return nil, v.connected
}

type fakeSongs struct {
	np  station.NowPlaying
	err error
}

func (s fakeSongs) CurrentSong(context.Context, string) (station.NowPlaying, error) {
	return s.np, s.err
}

type fakeFetcher struct {
	body string
	err  error
}

func (f fakeFetcher) Fetch(context.Context, network.Request) (*network.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &network.Response{Status: 200, Body: []byte(f.body)}, nil
}

type fakeUpstreams struct{}

func (fakeUpstreams) AllHealth() []network.UpstreamHealth {
	return []network.UpstreamHealth{{Upstream: "radio.example.com:8000"}}
}

func newTestHandler() (*Handler, *fakeController, *session.Store) {
	ctl := &fakeController{}
	store := session.NewStore()
	h := NewHandler(Deps{
		Controller: ctl,
		Store:      store,
		Voice:      fakeVoice{connected: true},
		Songs:      fakeSongs{np: station.NowPlaying{Song: "Daft Punk - Veridis Quo"}},
		Playlists:  fakeFetcher{body: "[playlist]\nNumberOfEntries=1\nFile1=http://radio.example.com:8000/live\n"},
		Upstreams:  fakeUpstreams{},
		GuildCount: func() int { return 7 },
		OwnerID:    "owner",
	}, log.Nop())
	return h, ctl, store
}

func invocation(name string, opts map[string]any) Invocation {
	return Invocation{Name: name, GuildID: "guild-1", ChannelID: "text-1", UserID: "user-1", Options: opts}
}

func TestPlay(t *testing.T) {
	t.Run("Starts", func(t *testing.T) {
		h, ctl, _ := newTestHandler()
		reply := h.Handle(context.Background(), invocation("play", map[string]any{
			"url":     " http://radio.example.com:8000/stream ",
			"private": true,
		}))

		assert.Equal(t, "Starting channel http://radio.example.com:8000/stream", reply.Content)
		require.Len(t, ctl.started, 1)
		assert.Equal(t, stream.StartRequest{
			GuildID:       "guild-1",
			UserID:        "user-1",
			TextChannelID: "text-1",
			URL:           "http://radio.example.com:8000/stream",
			Private:       true,
		}, ctl.started[0])
	})

	t.Run("ResolvesPlaylist", func(t *testing.T) {
		h, ctl, _ := newTestHandler()
		reply := h.Play(context.Background(), invocation("play", map[string]any{"url": "http://radio.example.com/listen.pls"}))

		assert.Equal(t, "Starting channel http://radio.example.com:8000/live", reply.Content)
		require.Len(t, ctl.started, 1)
		assert.Equal(t, "http://radio.example.com:8000/live", ctl.started[0].URL)
	})

	t.Run("InvalidURL", func(t *testing.T) {
		h, ctl, _ := newTestHandler()
		reply := h.Play(context.Background(), invocation("play", map[string]any{"url": "not a url"}))

		assert.Equal(t, stream.UserMessage(stream.ErrInvalidURL), reply.Content)
		assert.Empty(t, ctl.started)
	})

	t.Run("CleaningUp", func(t *testing.T) {
		h, ctl, store := newTestHandler()
		_, err := store.Set("guild-1", session.FieldCleaningUp, true)
		require.NoError(t, err)

		reply := h.Play(context.Background(), invocation("play", map[string]any{"url": "http://radio.example.com/"}))
		assert.Equal(t, stream.MsgCleaningUp, reply.Content)
		assert.Empty(t, ctl.started)
	})

	t.Run("ControllerError", func(t *testing.T) {
		h, ctl, _ := newTestHandler()
		ctl.startErr = stream.ErrAuthorNotInVoice

		reply := h.Play(context.Background(), invocation("play", map[string]any{"url": "http://radio.example.com/"}))
		assert.Equal(t, stream.UserMessage(stream.ErrAuthorNotInVoice), reply.Content)
	})
}

func TestLeave(t *testing.T) {
	h, ctl, _ := newTestHandler()
	assert.Equal(t, stream.MsgLeaving, h.Handle(context.Background(), invocation("leave", nil)).Content)
	assert.Equal(t, []string{"guild-1"}, ctl.stopped)

	h.Voice = fakeVoice{}
	reply := h.Leave(context.Background(), invocation("leave", nil))
	assert.Equal(t, stream.UserMessage(stream.ErrNoVoiceClient), reply.Content)
	assert.Len(t, ctl.stopped, 1)
}

func TestRefresh(t *testing.T) {
	h, ctl, store := newTestHandler()

	reply := h.Refresh(context.Background(), invocation("refresh", nil))
	assert.Equal(t, stream.UserMessage(stream.ErrNoStreamSelected), reply.Content)

	store.Update("guild-1", func(r *session.Record) { r.StreamURL = "http://radio.example.com/" })
	reply = h.Refresh(context.Background(), invocation("refresh", nil))
	assert.Equal(t, stream.MsgRefreshing, reply.Content)
	require.Len(t, ctl.refresh, 1)
	assert.Equal(t, "user-1", ctl.refresh[0].UserID)
}

func TestSong(t *testing.T) {
	h, _, store := newTestHandler()

	assert.Equal(t, msgNoSong, h.Song(context.Background(), invocation("song", nil)).Content)

	store.Update("guild-1", func(r *session.Record) { r.StreamURL = "http://radio.example.com/" })
	assert.Equal(t, "Now Playing: 🎶 Daft Punk - Veridis Quo 🎶", h.Song(context.Background(), invocation("song", nil)).Content)

	h.Songs = fakeSongs{err: station.ErrStreamOffline}
	assert.Equal(t, stream.UserMessage(station.ErrStreamOffline), h.Song(context.Background(), invocation("song", nil)).Content)
}

func TestDebug(t *testing.T) {
	h, _, _ := newTestHandler()

	reply := h.Debug(context.Background(), invocation("debug", nil))
	assert.True(t, reply.Ephemeral)
	assert.Contains(t, reply.Content, "Guild count: 7")
	assert.NotContains(t, reply.Content, "upstreams")

	inv := invocation("debug", nil)
	inv.UserID = "owner"
	reply = h.Debug(context.Background(), inv)
	assert.True(t, reply.Ephemeral)
	assert.Contains(t, reply.Content, `"state": "playing"`)
	assert.Contains(t, reply.Content, "radio.example.com:8000")
}

func TestNowPlayingEmbed(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	np := station.NowPlaying{Song: "Track", URL: "http://radio.example.com/"}

	embed := NowPlayingEmbed(np, false, at)
	assert.Equal(t, "Now Playing", embed.Title)
	assert.Equal(t, "🎶 Track 🎶", embed.Description)
	assert.Equal(t, 0x0099ff, embed.Color)
	assert.Equal(t, "2024-05-01T12:00:00Z", embed.Timestamp)
	require.NotNil(t, embed.Footer)
	assert.Equal(t, "Source: http://radio.example.com/", embed.Footer.Text)

	assert.Nil(t, NowPlayingEmbed(np, true, at).Footer)
}

func TestUnknownCommand(t *testing.T) {
	h, _, _ := newTestHandler()
	assert.Equal(t, "❌ Unknown command.", h.Handle(context.Background(), invocation("skip", nil)).Content)
	assert.Len(t, Definitions(), 5)
}
