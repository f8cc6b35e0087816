package network

import (
	"sync"
	"time"
)

// Stats are the rolling per-upstream fetch metrics exposed for health reporting.
type Stats struct {
	TotalRequests      int           `json:"total_requests"`
	SuccessfulRequests int           `json:"successful_requests"`
	FailedRequests     int           `json:"failed_requests"`
	TimeoutRequests    int           `json:"timeout_requests"`
	AverageResponse    time.Duration `json:"average_response"`
	LastSuccess        time.Time     `json:"last_success,omitempty"`
	LastFailure        time.Time     `json:"last_failure,omitempty"`
}

// SuccessRate is 1 for an upstream that has not been contacted yet.
func (s Stats) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 1
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests)
}

// ewmaWeight is the share of the newest sample in the average latency.
const ewmaWeight = 0.2

type statsRecorder struct {
	mu    sync.Mutex
	stats Stats
}

func (r *statsRecorder) success(now time.Time, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.TotalRequests++
	r.stats.SuccessfulRequests++
	r.stats.LastSuccess = now
	if r.stats.SuccessfulRequests == 1 {
		r.stats.AverageResponse = elapsed
		return
	}
	r.stats.AverageResponse = time.Duration((1-ewmaWeight)*float64(r.stats.AverageResponse) + ewmaWeight*float64(elapsed))
}

func (r *statsRecorder) failure(now time.Time, timeout bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.TotalRequests++
	r.stats.FailedRequests++
	if timeout {
		r.stats.TimeoutRequests++
	}
	r.stats.LastFailure = now
}

func (r *statsRecorder) snapshot() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
