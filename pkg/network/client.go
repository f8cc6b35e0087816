package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/internal/metrics"
)

const defaultMaxBody = 64 << 10

// Config tunes timeouts, retries and breaker thresholds.
type Config struct {
	Timeout       time.Duration
	RetryAttempts int
	// RetryDelays are waited between attempts; the last delay repeats.
	RetryDelays []time.Duration
	Breaker     BreakerConfig
	UserAgent   string
}

func DefaultConfig() Config {
	return Config{
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
		RetryDelays:   []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		Breaker:       DefaultBreakerConfig(),
		UserAgent:     "iTunes/9.1.1",
	}
}

// Request describes a single fetch.
type Request struct {
	URL      string
	Timeout  time.Duration // zero uses Config.Timeout
	Upstream string        // zero derives host[:port] from URL
	Header   http.Header
	// MaxBody caps how much of the body is read. Radio streams never end,
	// so the read stops at the cap instead of EOF.
	MaxBody int64
}

// Response is a fully read (or capped) upstream reply.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
	Elapsed time.Duration
}

// UpstreamHealth combines breaker and rolling stats for one upstream.
type UpstreamHealth struct {
	Upstream string          `json:"upstream"`
	Breaker  BreakerSnapshot `json:"breaker"`
	Stats    Stats           `json:"stats"`
}

type upstream struct {
	breaker *Breaker
	stats   statsRecorder
}

// Client performs outbound fetches with per-attempt timeouts, retry with
// backoff, and a circuit breaker per upstream host.
type Client struct {
	cfg    Config
	http   *http.Client
	clock  clockwork.Clock
	logger zerolog.Logger

	mu        sync.RWMutex
	upstreams map[string]*upstream
}

// NewClient builds a client whose transport understands ICY status lines.
func NewClient(cfg Config, clock clockwork.Clock, logger zerolog.Logger) *Client {
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = DefaultConfig().RetryDelays
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         icyDialer(cfg.Timeout),
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,
		DisableCompression:  true,
	}

	return &Client{
		cfg:       cfg,
		http:      &http.Client{Transport: transport},
		clock:     clock,
		logger:    logger,
		upstreams: make(map[string]*upstream),
	}
}

// UpstreamID derives the breaker identity (host or host:port) for a URL.
func UpstreamID(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, raw)
	}
	return strings.ToLower(u.Host), nil
}

func (c *Client) upstream(id string) *upstream {
	c.mu.RLock()
	up, ok := c.upstreams[id]
	c.mu.RUnlock()
	if ok {
		return up
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if up, ok = c.upstreams[id]; ok {
		return up
	}
	up = &upstream{breaker: newBreaker(id, c.cfg.Breaker, c.clock, c.logger)}
	c.upstreams[id] = up
	return up
}

// Fetch runs the request through the upstream's breaker and retry loop.
func (c *Client) Fetch(ctx context.Context, req Request) (*Response, error) {
	id := req.Upstream
	if id == "" {
		var err error
		if id, err = UpstreamID(req.URL); err != nil {
			return nil, err
		}
	}
	up := c.upstream(id)

	permit, ok := up.breaker.Allow()
	if !ok {
		metrics.RecordFetch(id, "rejected")
		return nil, &FetchError{Upstream: id, Kind: ErrCircuitOpen}
	}
	// No-op once an outcome has been recorded.
	defer permit.Abandon()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.cfg.Timeout
	}

	var lastErr error
	var timedOut bool
	for attempt := 1; attempt <= c.cfg.RetryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clock.After(c.delay(attempt - 1)):
			}
		}

		resp, err := c.attempt(ctx, req, timeout)
		if err == nil {
			permit.Record(nil)
			up.stats.success(c.clock.Now(), resp.Elapsed)
			metrics.RecordFetch(id, "success")
			metrics.ObserveFetchLatency(id, resp.Elapsed)
			return resp, nil
		}
		if ctx.Err() != nil {
			// The caller gave up; that says nothing about the upstream.
			return nil, ctx.Err()
		}

		lastErr = err
		timedOut = isTimeout(err)
		up.stats.failure(c.clock.Now(), timedOut)
		outcome := "error"
		if timedOut {
			outcome = "timeout"
		}
		metrics.RecordFetch(id, outcome)

		c.logger.Debug().
			Str("upstream", id).
			Int("attempt", attempt).
			Int("max_attempts", c.cfg.RetryAttempts).
			Err(err).
			Msg("fetch attempt failed")
	}

	permit.Record(lastErr)

	kind := ErrNetwork
	if timedOut {
		kind = ErrNetworkTimeout
	}
	return nil, &FetchError{Upstream: id, Attempts: c.cfg.RetryAttempts, Kind: kind, Err: lastErr}
}

func (c *Client) attempt(ctx context.Context, req Request, timeout time.Duration) (*Response, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" && c.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	start := c.clock.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, &statusError{code: resp.StatusCode}
	}

	maxBody := req.MaxBody
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil && len(body) == 0 {
		return nil, err
	}

	return &Response{
		Status:  resp.StatusCode,
		Header:  resp.Header,
		Body:    body,
		Elapsed: c.clock.Since(start),
	}, nil
}

func (c *Client) delay(retry int) time.Duration {
	if retry > len(c.cfg.RetryDelays) {
		return c.cfg.RetryDelays[len(c.cfg.RetryDelays)-1]
	}
	return c.cfg.RetryDelays[retry-1]
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Health returns the breaker and stats for one upstream, if it has been contacted.
func (c *Client) Health(id string) (UpstreamHealth, bool) {
	c.mu.RLock()
	up, ok := c.upstreams[id]
	c.mu.RUnlock()
	if !ok {
		return UpstreamHealth{}, false
	}
	return UpstreamHealth{Upstream: id, Breaker: up.breaker.Snapshot(), Stats: up.stats.snapshot()}, true
}

// AllHealth lists every known upstream, sorted by id.
func (c *Client) AllHealth() []UpstreamHealth {
	c.mu.RLock()
	ids := make([]string, 0, len(c.upstreams))
	for id := range c.upstreams {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	sort.Strings(ids)
	out := make([]UpstreamHealth, 0, len(ids))
	for _, id := range ids {
		if h, ok := c.Health(id); ok {
			out = append(out, h)
		}
	}
	return out
}

// Close drops idle keep-alive connections.
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}
