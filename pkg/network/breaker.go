package network

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/internal/metrics"
)

var errAbandonedTrial = errors.New("half-open trial abandoned by caller")

// BreakerConfig holds the thresholds shared by every upstream breaker.
type BreakerConfig struct {
	FailureThreshold uint          // consecutive failures that open the circuit
	Timeout          time.Duration // time spent open before a trial call is let through
	SuccessThreshold uint          // consecutive half-open successes that close it again
	HalfOpenMaxCalls int32         // trial calls admitted while half-open
}

// DefaultBreakerConfig mirrors the bot's historical thresholds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		Timeout:          60 * time.Second,
		SuccessThreshold: 2,
		HalfOpenMaxCalls: 3,
	}
}

// BreakerSnapshot is a read-only view of one breaker record.
type BreakerSnapshot struct {
	State           string    `json:"state"`
	FailureCount    int       `json:"failure_count"`
	SuccessCount    int       `json:"success_count"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

// Breaker is the circuit breaker record for a single upstream.
type Breaker struct {
	upstream string
	cfg      BreakerConfig
	cb       circuitbreaker.CircuitBreaker[any]
	// clock only stamps LastFailureTime. The open delay is measured by
	// failsafe on the wall clock.
	clock  clockwork.Clock
	logger zerolog.Logger

	// halfOpenCalls counts trial calls in flight while half-open.
	halfOpenCalls atomic.Int32

	mu           sync.Mutex
	failureCount int
	successCount int
	lastFailure  time.Time
}

func newBreaker(upstream string, cfg BreakerConfig, clock clockwork.Clock, logger zerolog.Logger) *Breaker {
	b := &Breaker{
		upstream: upstream,
		cfg:      cfg,
		clock:    clock,
		logger:   logger,
	}

	b.cb = circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(cfg.FailureThreshold).
		WithDelay(cfg.Timeout).
		WithSuccessThreshold(cfg.SuccessThreshold).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			state := stateName(e.NewState)
			metrics.SetCircuitBreakerState(upstream, state)
			if e.NewState == circuitbreaker.OpenState {
				metrics.RecordCircuitBreakerTrip(upstream)
			}
			b.logger.Warn().
				Str("upstream", upstream).
				Str("old_state", stateName(e.OldState)).
				Str("new_state", state).
				Msg("circuit breaker state changed")
		}).
		Build()

	metrics.SetCircuitBreakerState(upstream, "closed")
	return b
}

// Permit is one admitted call. It must be ended by exactly one Record or
// Abandon.
type Permit struct {
	b     *Breaker
	trial bool
	ended atomic.Bool
}

// Allow admits a call or reports false. An open breaker whose timeout has
// elapsed moves to half-open here and admits the call as a trial; at most
// HalfOpenMaxCalls trials are in flight at once.
func (b *Breaker) Allow() (*Permit, bool) {
	if b.cb.IsHalfOpen() {
		if b.halfOpenCalls.Add(1) > b.cfg.HalfOpenMaxCalls {
			b.halfOpenCalls.Add(-1)
			return nil, false
		}
		if !b.cb.TryAcquirePermit() {
			b.halfOpenCalls.Add(-1)
			return nil, false
		}
		return &Permit{b: b, trial: true}, true
	}
	if !b.cb.TryAcquirePermit() {
		return nil, false
	}
	// A closed breaker grants permits freely; an open one that just timed
	// out has turned half-open and this call is its first trial.
	trial := b.cb.IsHalfOpen()
	if trial {
		b.halfOpenCalls.Add(1)
	}
	return &Permit{b: b, trial: trial}, true
}

// Record feeds the call outcome into the breaker.
func (p *Permit) Record(err error) {
	if !p.ended.CompareAndSwap(false, true) {
		return
	}
	p.release()
	p.b.record(err)
}

// Abandon ends a call the caller gave up on. That says nothing about the
// upstream, except for a half-open trial: its permit can only be returned by
// an outcome, so it counts as a failed trial.
func (p *Permit) Abandon() {
	if !p.ended.CompareAndSwap(false, true) {
		return
	}
	p.release()
	if p.trial {
		p.b.record(errAbandonedTrial)
	}
}

func (p *Permit) release() {
	if p.trial {
		p.b.halfOpenCalls.Add(-1)
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	if err == nil {
		b.successCount++
		b.failureCount = 0
	} else {
		b.failureCount++
		b.successCount = 0
		b.lastFailure = b.clock.Now()
	}
	b.mu.Unlock()

	if err == nil {
		b.cb.RecordSuccess()
		return
	}
	b.cb.RecordFailure()
}

// State returns "closed", "open" or "half-open".
func (b *Breaker) State() string {
	return stateName(b.cb.State())
}

func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		State:           b.State(),
		FailureCount:    b.failureCount,
		SuccessCount:    b.successCount,
		LastFailureTime: b.lastFailure,
	}
}

func stateName(s circuitbreaker.State) string {
	switch s {
	case circuitbreaker.OpenState:
		return "open"
	case circuitbreaker.HalfOpenState:
		return "half-open"
	default:
		return "closed"
	}
}
