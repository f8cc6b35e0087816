package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latoulicious/bunradio/internal/log"
)

func TestScheduler_Add(t *testing.T) {
	s := NewScheduler(context.Background(), log.Nop())

	require.NoError(t, s.Add("snapshot", "0 */1 * * * *", func(context.Context) error { return nil }))
	assert.ErrorIs(t, s.Add("snapshot", "0 */1 * * * *", func(context.Context) error { return nil }), ErrDuplicateJob)
	assert.Error(t, s.Add("broken", "not a schedule", func(context.Context) error { return nil }))

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "snapshot", status[0].Name)
	assert.Equal(t, "0 */1 * * * *", status[0].Schedule)
}

func TestScheduler_RunNow(t *testing.T) {
	s := NewScheduler(context.Background(), log.Nop())
	var runs atomic.Int32
	require.NoError(t, s.Add("count", "@every 1h", func(context.Context) error {
		runs.Add(1)
		return errors.New("upstream unavailable")
	}))

	assert.True(t, s.RunNow("count"))
	assert.False(t, s.RunNow("missing"))
	assert.EqualValues(t, 1, runs.Load())

	status := s.Status()
	require.Len(t, status, 1)
	assert.Equal(t, "upstream unavailable", status[0].LastError)
	assert.False(t, status[0].LastRun.IsZero())
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := NewScheduler(context.Background(), log.Nop())
	release := make(chan struct{})
	entered := make(chan struct{})
	require.NoError(t, s.Add("slow", "@every 1h", func(context.Context) error {
		close(entered)
		<-release
		return nil
	}))

	done := make(chan bool)
	go func() { done <- s.RunNow("slow") }()
	<-entered

	assert.False(t, s.RunNow("slow"))
	assert.True(t, s.Status()[0].Running)

	close(release)
	assert.True(t, <-done)
}

func TestScheduler_RecoversPanics(t *testing.T) {
	s := NewScheduler(context.Background(), log.Nop())
	require.NoError(t, s.Add("panicky", "@every 1h", func(context.Context) error { panic("boom") }))

	assert.NotPanics(t, func() { s.RunNow("panicky") })
	assert.Contains(t, s.Status()[0].LastError, "boom")
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(context.Background(), log.Nop())
	s.Start()
	s.Stop()
}
