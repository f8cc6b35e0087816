package transcoder

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const drainGrace = 5 * time.Second

// Handle is the view of a running transcoder that transports and the
// stream controller work with.
type Handle interface {
	PID() int
	Stdout() io.Reader
	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}
	// Err is the exit error including the stderr tail; nil for a clean exit.
	Err() error
}

// Process is a started transcoder subprocess.
type Process struct {
	cmd    *exec.Cmd
	stdout *pipeReader
	stderr *tailBuffer
	done   chan struct{}

	mu      sync.Mutex
	waitErr error
}

func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

func (p *Process) Stdout() io.Reader {
	return p.stdout
}

func (p *Process) Done() <-chan struct{} {
	return p.done
}

func (p *Process) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.waitErr == nil {
		return nil
	}
	if tail := strings.TrimSpace(p.stderr.String()); tail != "" {
		return fmt.Errorf("transcoder exited: %w: %s", p.waitErr, tail)
	}
	return fmt.Errorf("transcoder exited: %w", p.waitErr)
}

func (p *Process) wait() {
	err := p.cmd.Wait()
	p.mu.Lock()
	p.waitErr = err
	p.mu.Unlock()
	close(p.done)

	// Give the reader a chance to drain what is still buffered in the pipe.
	select {
	case <-p.stdout.drained:
	case <-time.After(drainGrace):
	}
	p.stdout.Close()
}

// pipeReader is the parent's end of the stdout pipe. drained is closed on the
// first read error, usually io.EOF.
type pipeReader struct {
	*os.File
	once    sync.Once
	drained chan struct{}
}

func newPipeReader(f *os.File) *pipeReader {
	return &pipeReader{File: f, drained: make(chan struct{})}
}

func (r *pipeReader) Read(p []byte) (int, error) {
	n, err := r.File.Read(p)
	if err != nil {
		r.once.Do(func() { close(r.drained) })
	}
	return n, err
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.max; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
