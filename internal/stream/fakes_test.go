package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/latoulicious/bunradio/pkg/station"
	"github.com/latoulicious/bunradio/pkg/transcoder"
)

type fakeHandle struct {
	pid  int
	done chan struct{}
}

func (h *fakeHandle) PID() int { return h.pid }
func (h *fakeHandle) Stdout() io.Reader { return strings.NewReader("") }
func (h *fakeHandle) Done() <-chan struct{} { return h.done }
func (h *fakeHandle) Err() error { return nil }

type fakeTransport struct {
	mu          sync.Mutex
	channelID   string
	playing     bool
	connected   bool
	hideProcess bool
	playErr     error
	handle      transcoder.Handle
	done        chan error
	plays       int
	stops       int
	disconnects int
}

func (t *fakeTransport) Play(src transcoder.Handle) (<-chan error, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playErr != nil {
		return nil, t.playErr
	}
	t.plays++
	t.playing = true
	t.handle = src
	t.done = make(chan error, 1)
	return t.done, nil
}

// finish ends the current playback with err.
func (t *fakeTransport) finish(err error) {
	t.mu.Lock()
	done := t.done
	t.playing = false
	t.done = nil
	t.mu.Unlock()
	if done != nil {
		done <- err
		close(done)
	}
}

func (t *fakeTransport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	t.playing = false
}

func (t *fakeTransport) Disconnect(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnects++
	t.connected = false
	t.playing = false
	return nil
}

func (t *fakeTransport) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

func (t *fakeTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) ChannelID() string { return t.channelID }

func (t *fakeTransport) UnderlyingProcess() (transcoder.Handle, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.hideProcess || t.handle == nil {
		return nil, false
	}
	return t.handle, true
}

type fakePlatform struct {
	mu          sync.Mutex
	voice       map[string]string // user id -> channel id
	transport   *fakeTransport
	connects    int
	connectErr  error
	hideProcess bool
	playErr     error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{voice: map[string]string{"user": "voice-1"}}
}

func (p *fakePlatform) UserVoiceChannel(_, userID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voice[userID], nil
}

func (p *fakePlatform) Transport(string) (Transport, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.transport == nil {
		return nil, false
	}
	return p.transport, true
}

func (p *fakePlatform) Connect(_ context.Context, _, channelID string) (Transport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connects++
	if p.connectErr != nil {
		return nil, p.connectErr
	}
	p.transport = &fakeTransport{
		channelID:   channelID,
		connected:   true,
		hideProcess: p.hideProcess,
		playErr:     p.playErr,
	}
	return p.transport, nil
}

func (p *fakePlatform) current() *fakeTransport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.transport
}

func (p *fakePlatform) connectCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connects
}

func (p *fakePlatform) GuildExists(string) bool { return true }
func (p *fakePlatform) Listeners(string, string, bool) int { return 1 }
func (p *fakePlatform) ConnectedGuilds() []string { return nil }

type fakeGateway struct {
	mu    sync.Mutex
	info  station.Info
	err   error
	calls int
	// during runs once, inside the next station check.
	during func()
}

func onlineGateway() *fakeGateway {
	return &fakeGateway{info: station.Info{Online: true, Status: station.StatusUp}}
}

func (g *fakeGateway) GetStationInfo(context.Context, string) (station.Info, error) {
	g.mu.Lock()
	during := g.during
	g.during = nil
	g.mu.Unlock()
	if during != nil {
		during()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return station.Info{}, g.err
	}
	if !g.info.Online {
		return g.info, station.ErrStreamOffline
	}
	return g.info, nil
}

func (g *fakeGateway) setErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

type fakeSupervisor struct {
	mu         sync.Mutex
	nextPID    int
	started    []int
	terminated []int
	startErr   error
	// during runs once, inside the next Start.
	during func()
}

func (s *fakeSupervisor) Start(context.Context, string, transcoder.Options) (transcoder.Handle, error) {
	s.mu.Lock()
	during := s.during
	s.during = nil
	s.mu.Unlock()
	if during != nil {
		during()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.nextPID++
	pid := 1000 + s.nextPID
	s.started = append(s.started, pid)
	return &fakeHandle{pid: pid, done: make(chan struct{})}, nil
}

func (s *fakeSupervisor) Terminate(pid int, _ time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = append(s.terminated, pid)
	return true
}

func (s *fakeSupervisor) startedPIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.started...)
}

func (s *fakeSupervisor) terminatedPIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.terminated...)
}

type notice struct {
	channel string
	message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notice
	err  error
}

func (n *fakeNotifier) Notify(channelID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notice{channelID, message})
	return nil
}

func (n *fakeNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.message)
	}
	return out
}

type recoverCall struct {
	guildID string
	cause   error
	attempt int
}

type fakeRecoverer struct {
	calls chan recoverCall
}

func (r *fakeRecoverer) Recover(_ context.Context, guildID string, cause error, attempt int) {
	r.calls <- recoverCall{guildID, cause, attempt}
}

var errBrokenPipe = errors.New("av_interleaved_write_frame(): Broken pipe")
