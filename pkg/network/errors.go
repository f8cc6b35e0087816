package network

import (
	"errors"
	"fmt"
)

var (
	// ErrCircuitOpen is returned without touching the network while an upstream's breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker open")
	// ErrNetworkTimeout means the last attempt ran out of time.
	ErrNetworkTimeout = errors.New("network timeout")
	// ErrNetwork covers every other transport or server failure.
	ErrNetwork = errors.New("network error")
	// ErrInvalidURL is returned for URLs without a scheme or host.
	ErrInvalidURL = errors.New("invalid url")
)

// FetchError describes a failed fetch after all attempts.
type FetchError struct {
	Upstream string
	Attempts int
	Kind     error // one of ErrCircuitOpen, ErrNetworkTimeout, ErrNetwork
	Err      error // last underlying error, nil for ErrCircuitOpen
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Upstream, e.Kind)
	}
	return fmt.Sprintf("%s: %v after %d attempt(s): %v", e.Upstream, e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// statusError is produced for server-side failures so they count against the breaker.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.code)
}
