// Package station normalizes what radio servers report about themselves.
package station

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/pkg/network"
)

// Server status as reported by the probe.
const (
	StatusDown         = 0
	StatusUp           = 1
	StatusUpWithSong   = 2
	defaultProbeBudget = 16000 + 1 + 255*16 // common metaint plus the largest metadata block
)

// Fetcher is satisfied by *network.Client.
type Fetcher interface {
	Fetch(ctx context.Context, req network.Request) (*network.Response, error)
}

type Metadata struct {
	Song    string `json:"song"`
	Bitrate int    `json:"bitrate"`
}

// Info is the normalized station status. Metadata is nil for stations that
// are up but do not publish now-playing data.
type Info struct {
	Online     bool      `json:"online"`
	Status     int       `json:"status"`
	ServerName string    `json:"server_name,omitempty"`
	Metadata   *Metadata `json:"metadata,omitempty"`
}

// NowPlaying is what the song command and the announcer show.
type NowPlaying struct {
	Song      string    `json:"song"`
	Station   string    `json:"station"`
	Bitrate   int       `json:"bitrate"`
	URL       string    `json:"url"`
	FetchedAt time.Time `json:"fetched_at"`
	FromCache bool      `json:"from_cache"`
}

type Gateway struct {
	fetcher Fetcher
	timeout time.Duration
	clock   clockwork.Clock
	logger  zerolog.Logger

	mu    sync.RWMutex
	cache map[string]NowPlaying
}

func NewGateway(fetcher Fetcher, timeout time.Duration, clock clockwork.Clock, logger zerolog.Logger) *Gateway {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Gateway{
		fetcher: fetcher,
		timeout: timeout,
		clock:   clock,
		logger:  logger,
		cache:   make(map[string]NowPlaying),
	}
}

// GetStationInfo probes the station. Network failures and non-positive
// status both wrap ErrStreamOffline; network failures keep their own type too.
func (g *Gateway) GetStationInfo(ctx context.Context, url string) (Info, error) {
	if strings.TrimSpace(url) == "" {
		return Info{}, ErrNoStreamSelected
	}

	resp, err := g.fetcher.Fetch(ctx, network.Request{
		URL:     url,
		Timeout: g.timeout,
		Header:  http.Header{"Icy-MetaData": []string{"1"}},
		MaxBody: defaultProbeBudget,
	})
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", ErrStreamOffline, err)
	}

	info := parseInfo(resp)
	if !info.Online {
		return info, fmt.Errorf("%w: server answered %d", ErrStreamOffline, resp.Status)
	}
	if info.Metadata == nil {
		g.logger.Debug().Str("url", url).Msg("station is up but publishes no metadata")
	}
	return info, nil
}

// CurrentSong returns what is playing, falling back to the last good answer
// for this url when the station cannot be reached.
func (g *Gateway) CurrentSong(ctx context.Context, url string) (NowPlaying, error) {
	info, err := g.GetStationInfo(ctx, url)
	if err != nil {
		if errors.Is(err, ErrNoStreamSelected) {
			return NowPlaying{}, err
		}
		g.mu.RLock()
		cached, ok := g.cache[url]
		g.mu.RUnlock()
		if ok {
			g.logger.Info().Str("url", url).Err(err).Msg("using cached now-playing data")
			cached.FromCache = true
			return cached, nil
		}
		return NowPlaying{}, err
	}

	np := NowPlaying{
		Station:   info.ServerName,
		URL:       url,
		FetchedAt: g.clock.Now(),
	}
	if info.Metadata != nil {
		np.Song = info.Metadata.Song
		np.Bitrate = info.Metadata.Bitrate
	}

	g.mu.Lock()
	g.cache[url] = np
	g.mu.Unlock()
	return np, nil
}

// Forget drops the cached answer for url.
func (g *Gateway) Forget(url string) {
	g.mu.Lock()
	delete(g.cache, url)
	g.mu.Unlock()
}

func parseInfo(resp *network.Response) Info {
	if resp.Status < 200 || resp.Status >= 400 {
		return Info{Status: StatusDown}
	}

	info := Info{
		Online:     true,
		Status:     StatusUp,
		ServerName: resp.Header.Get("icy-name"),
	}
	if info.ServerName == "" {
		info.ServerName = resp.Header.Get("ice-name")
	}

	metaint, err := strconv.Atoi(strings.TrimSpace(resp.Header.Get("icy-metaint")))
	if err != nil || metaint <= 0 {
		return info
	}
	song, ok := readStreamTitle(resp.Body, metaint)
	if !ok {
		return info
	}

	info.Status = StatusUpWithSong
	info.Metadata = &Metadata{Song: song, Bitrate: parseBitrate(resp.Header.Get("icy-br"))}
	return info
}

// readStreamTitle extracts StreamTitle from the first in-band metadata block.
func readStreamTitle(body []byte, metaint int) (string, bool) {
	if len(body) <= metaint {
		return "", false
	}
	size := int(body[metaint]) * 16
	start := metaint + 1
	if size == 0 || start+size > len(body) {
		return "", false
	}
	block := strings.TrimRight(string(body[start:start+size]), "\x00")

	const key = "StreamTitle='"
	i := strings.Index(block, key)
	if i < 0 {
		return "", false
	}
	rest := block[i+len(key):]
	end := strings.Index(rest, "';")
	if end < 0 {
		end = strings.LastIndex(rest, "'")
	}
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(rest[:end]), true
}

func parseBitrate(raw string) int {
	first, _, _ := strings.Cut(raw, ",")
	n, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return 0
	}
	return n
}
