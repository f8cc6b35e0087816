//go:build unix

package transcoder

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinary writes a shell script that stands in for ffmpeg.
func fakeBinary(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func waitDone(t *testing.T, h Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("transcoder did not exit")
	}
}

func TestSupervisor_StartStreamsStdout(t *testing.T) {
	s := NewSupervisor(fakeBinary(t, "printf 'pcm-bytes'"), zerolog.Nop())

	h, err := s.Start(context.Background(), "http://radio.example/live", DefaultOptions())
	require.NoError(t, err)
	assert.Positive(t, h.PID())

	out, err := io.ReadAll(h.Stdout())
	require.NoError(t, err)
	assert.Equal(t, "pcm-bytes", string(out))

	waitDone(t, h)
	assert.NoError(t, h.Err())
	assert.Eventually(t, func() bool { return len(s.Running()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestSupervisor_ErrCarriesStderr(t *testing.T) {
	s := NewSupervisor(fakeBinary(t, "echo 'Connection reset by peer' >&2; exit 1"), zerolog.Nop())

	h, err := s.Start(context.Background(), "http://radio.example/live", DefaultOptions())
	require.NoError(t, err)

	_, _ = io.Copy(io.Discard, h.Stdout())
	waitDone(t, h)

	require.Error(t, h.Err())
	assert.Contains(t, h.Err().Error(), "Connection reset by peer")
}

func TestSupervisor_StartRejectsEmptyURL(t *testing.T) {
	s := NewSupervisor("ffmpeg", zerolog.Nop())
	_, err := s.Start(context.Background(), "", DefaultOptions())
	assert.ErrorIs(t, err, ErrEmptyURL)
}

func TestSupervisor_StartMissingBinary(t *testing.T) {
	s := NewSupervisor(filepath.Join(t.TempDir(), "missing"), zerolog.Nop())
	_, err := s.Start(context.Background(), "http://radio.example/live", DefaultOptions())
	assert.Error(t, err)
}

func TestSupervisor_Terminate(t *testing.T) {
	t.Run("graceful", func(t *testing.T) {
		s := NewSupervisor(fakeBinary(t, "exec sleep 30"), zerolog.Nop())
		h, err := s.Start(context.Background(), "http://radio.example/live", DefaultOptions())
		require.NoError(t, err)

		assert.True(t, s.Terminate(h.PID(), time.Second))
		waitDone(t, h)
	})

	t.Run("escalates to kill", func(t *testing.T) {
		s := NewSupervisor(fakeBinary(t, "trap '' TERM; while true; do sleep 0.1; done"), zerolog.Nop())
		h, err := s.Start(context.Background(), "http://radio.example/live", DefaultOptions())
		require.NoError(t, err)
		time.Sleep(100 * time.Millisecond) // let the trap install

		start := time.Now()
		assert.True(t, s.Terminate(h.PID(), 200*time.Millisecond))
		assert.Less(t, time.Since(start), 3*time.Second)
		waitDone(t, h)
	})

	t.Run("leaves unknown pids alone", func(t *testing.T) {
		cmd := exec.Command("sleep", "30")
		require.NoError(t, cmd.Start())
		reaped := make(chan struct{})
		go func() {
			_ = cmd.Wait()
			close(reaped)
		}()
		t.Cleanup(func() {
			_ = cmd.Process.Kill()
			<-reaped
		})

		s := NewSupervisor("ffmpeg", zerolog.Nop())
		assert.True(t, s.Terminate(cmd.Process.Pid, 100*time.Millisecond))
		select {
		case <-reaped:
			t.Fatal("a process this supervisor did not start was signalled")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("reaped transcoder is not signalled again", func(t *testing.T) {
		s := NewSupervisor(fakeBinary(t, "exit 0"), zerolog.Nop())
		h, err := s.Start(context.Background(), "http://radio.example/live", DefaultOptions())
		require.NoError(t, err)
		waitDone(t, h)
		require.Eventually(t, func() bool { return len(s.Running()) == 0 }, time.Second, 10*time.Millisecond)

		assert.True(t, s.Terminate(h.PID(), 100*time.Millisecond))
	})

	t.Run("no pid", func(t *testing.T) {
		s := NewSupervisor("ffmpeg", zerolog.Nop())
		assert.True(t, s.Terminate(0, time.Second))
	})
}
