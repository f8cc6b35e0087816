// Package cron runs named background jobs on cron schedules. A job that is
// still running when its next tick fires is skipped rather than stacked.
package cron

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var ErrDuplicateJob = errors.New("job already scheduled")

// JobFunc is one run of a job.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	schedule string
	fn       JobFunc
	entry    cron.EntryID

	mu        sync.Mutex
	isRunning bool
	lastRun   time.Time
	lastErr   error
}

// JobStatus describes one scheduled job.
type JobStatus struct {
	Name      string    `json:"name"`
	Schedule  string    `json:"schedule"`
	Running   bool      `json:"running"`
	LastRun   time.Time `json:"last_run"`
	LastError string    `json:"last_error,omitempty"`
	NextRun   time.Time `json:"next_run"`
}

type Scheduler struct {
	ctx    context.Context
	cron   *cron.Cron
	logger zerolog.Logger

	mu   sync.Mutex
	jobs map[string]*job
}

// NewScheduler creates a scheduler with second-resolution specs. ctx is
// passed to every job run.
func NewScheduler(ctx context.Context, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		ctx:    ctx,
		cron:   cron.New(cron.WithSeconds()),
		logger: logger,
		jobs:   map[string]*job{},
	}
}

// Add schedules fn under name.
func (s *Scheduler) Add(name, schedule string, fn JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	j := &job{name: name, schedule: schedule, fn: fn}
	entry, err := s.cron.AddFunc(schedule, func() { s.run(j) })
	if err != nil {
		return fmt.Errorf("failed to schedule %s: %w", name, err)
	}
	j.entry = entry
	s.jobs[name] = j
	s.logger.Info().Str("job", name).Str("schedule", schedule).Msg("scheduled job")
	return nil
}

// RunNow triggers a job outside its schedule. It reports false when the job
// is unknown or already running.
func (s *Scheduler) RunNow(name string) bool {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false
	}
	return s.run(j)
}

func (s *Scheduler) run(j *job) bool {
	j.mu.Lock()
	if j.isRunning {
		j.mu.Unlock()
		s.logger.Debug().Str("job", j.name).Msg("job already in progress, skipping")
		return false
	}
	j.isRunning = true
	j.mu.Unlock()

	start := time.Now()
	err := s.invoke(j)

	j.mu.Lock()
	j.isRunning = false
	j.lastRun = start
	j.lastErr = err
	j.mu.Unlock()

	if err != nil {
		s.logger.Error().Err(err).Str("job", j.name).Msg("job failed")
	} else {
		s.logger.Debug().Str("job", j.name).Dur("elapsed", time.Since(start)).Msg("job completed")
	}
	return true
}

func (s *Scheduler) invoke(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
	}()
	return j.fn(s.ctx)
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule and waits for running jobs to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// Status lists every job.
func (s *Scheduler) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.jobs))
	for _, j := range s.jobs {
		j.mu.Lock()
		st := JobStatus{
			Name:     j.name,
			Schedule: j.schedule,
			Running:  j.isRunning,
			LastRun:  j.lastRun,
			NextRun:  s.cron.Entry(j.entry).Next,
		}
		if j.lastErr != nil {
			st.LastError = j.lastErr.Error()
		}
		j.mu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}
