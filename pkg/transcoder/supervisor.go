// Package transcoder starts and stops the ffmpeg subprocess that feeds a voice transport.
package transcoder

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/latoulicious/bunradio/internal/metrics"
)

const (
	DefaultTerminateTimeout = 3 * time.Second
	killWait                = time.Second
	stderrTail              = 2048
)

var ErrEmptyURL = errors.New("transcoder needs a stream url")

// Supervisor starts transcoders and terminates them by pid.
type Supervisor struct {
	binary string
	logger zerolog.Logger

	mu    sync.Mutex
	procs map[int]*Process
}

func NewSupervisor(binary string, logger zerolog.Logger) *Supervisor {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Supervisor{
		binary: binary,
		logger: logger,
		procs:  make(map[int]*Process),
	}
}

// Start launches the transcoder for url. The process lives until it exits,
// ctx is cancelled, or Terminate is called.
func (s *Supervisor) Start(ctx context.Context, url string, opts Options) (Handle, error) {
	if url == "" {
		return nil, ErrEmptyURL
	}

	cmd := exec.CommandContext(ctx, s.binary, Args(url, opts)...)
	setProcessGroup(cmd)

	stderr := newTailBuffer(stderrTail)
	cmd.Stderr = stderr

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	cmd.Stdout = w

	err = cmd.Start()
	// The child holds its own copy of the write end.
	w.Close()
	if err != nil {
		r.Close()
		return nil, fmt.Errorf("failed to start %s: %w", s.binary, err)
	}

	p := &Process{cmd: cmd, stdout: newPipeReader(r), stderr: stderr, done: make(chan struct{})}
	pid := p.PID()

	s.mu.Lock()
	s.procs[pid] = p
	s.mu.Unlock()

	go func() {
		p.wait()
		s.mu.Lock()
		delete(s.procs, pid)
		s.mu.Unlock()
	}()

	metrics.RecordTranscoderStart()
	s.logger.Info().Int("pid", pid).Str("url", url).Str("filters", string(opts.Filters)).Msg("transcoder started")
	return p, nil
}

// Terminate asks pid to exit, escalates to a forced kill after timeout, and
// reports whether the process is gone. Only transcoders started by this
// supervisor and not yet reaped are signalled; any other pid may already
// belong to an unrelated process and is left alone. It never blocks longer
// than timeout plus a short kill wait and never returns an error.
func (s *Supervisor) Terminate(pid int, timeout time.Duration) bool {
	if pid <= 0 {
		return true
	}
	if timeout <= 0 {
		timeout = DefaultTerminateTimeout
	}
	log := s.logger.With().Int("pid", pid).Logger()

	s.mu.Lock()
	p := s.procs[pid]
	s.mu.Unlock()
	if p == nil {
		log.Debug().Msg("pid is not a running transcoder of ours, not signalling")
		metrics.RecordTranscoderTermination("gone")
		return true
	}

	exited := func(d time.Duration) bool {
		select {
		case <-p.Done():
			return true
		case <-time.After(d):
			return false
		}
	}

	select {
	case <-p.Done():
		metrics.RecordTranscoderTermination("gone")
		return true
	default:
	}
	if err := signalTerm(pid); err != nil {
		log.Warn().Err(err).Msg("graceful terminate failed")
	}
	if exited(timeout) {
		metrics.RecordTranscoderTermination("graceful")
		log.Debug().Msg("transcoder terminated")
		return true
	}

	log.Warn().Dur("timeout", timeout).Msg("transcoder ignored terminate, killing")
	if err := signalKill(pid); err != nil {
		log.Error().Err(err).Msg("forced kill failed")
	}
	if exited(killWait) {
		metrics.RecordTranscoderTermination("forced")
		return true
	}

	metrics.RecordTranscoderTermination("failed")
	log.Error().Msg("transcoder still alive after forced kill")
	return false
}

// Running lists pids of transcoders started by this supervisor that have not exited.
func (s *Supervisor) Running() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	pids := make([]int, 0, len(s.procs))
	for pid := range s.procs {
		pids = append(pids, pid)
	}
	return pids
}
