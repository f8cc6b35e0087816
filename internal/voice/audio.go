package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"layeh.com/gopus"

	"github.com/latoulicious/bunradio/internal/log"
	"github.com/latoulicious/bunradio/pkg/transcoder"
)

const (
	readStallTimeout = 5 * time.Second
	sendTimeout      = 100 * time.Millisecond
	exitWait         = 2 * time.Second
)

var ErrAlreadyPlaying = errors.New("voice connection is already playing")

// Conn plays transcoder output into a Discord voice connection.
type Conn struct {
	vc     *discordgo.VoiceConnection
	clock  clockwork.Clock
	logger zerolog.Logger

	mu      sync.Mutex
	playing bool
	source  transcoder.Handle
	cancel  context.CancelFunc
}

func newConn(vc *discordgo.VoiceConnection, clock clockwork.Clock, logger zerolog.Logger) *Conn {
	return &Conn{vc: vc, clock: clock, logger: logger}
}

// Play starts encoding src to Opus. The returned channel receives one value
// when playback ends: nil after Stop or a clean end of stream, otherwise the
// reason playback broke.
func (c *Conn) Play(src transcoder.Handle) (<-chan error, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.playing {
		return nil, ErrAlreadyPlaying
	}

	encoder, err := gopus.NewEncoder(sampleRate, channels, gopus.Audio)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	encoder.SetBitrate(opusBitrate)

	ctx, cancel := context.WithCancel(context.Background())
	c.playing = true
	c.source = src
	c.cancel = cancel

	done := make(chan error, 1)
	go func() {
		err := c.stream(ctx, src, encoder)
		c.mu.Lock()
		if c.source == src {
			c.playing = false
			c.cancel = nil
		}
		c.mu.Unlock()
		cancel()
		done <- err
		close(done)
	}()
	return done, nil
}

func (c *Conn) stream(ctx context.Context, src transcoder.Handle, encoder *gopus.Encoder) error {
	logger := c.logger.With().Int(log.FieldPID, src.PID()).Logger()

	if err := c.vc.Speaking(true); err != nil {
		logger.Debug().Err(err).Msg("could not set speaking state")
	}
	defer func() {
		if err := c.vc.Speaking(false); err != nil {
			logger.Debug().Err(err).Msg("could not clear speaking state")
		}
	}()

	frames := make(chan []int16, 2)
	readErr := make(chan error, 1)
	go readFrames(ctx, src.Stdout(), frames, readErr)

	stall := c.clock.NewTimer(readStallTimeout)
	defer stall.Stop()

	sent := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-stall.Chan():
			return fmt.Errorf("timeout reading PCM data after %d frames", sent)
		case samples, ok := <-frames:
			if !ok {
				return c.endOfStream(src, <-readErr)
			}
			stall.Reset(readStallTimeout)

			packet, err := encoder.Encode(samples, frameSize, maxOpusBytes)
			if err != nil {
				logger.Warn().Err(err).Msg("opus encoding error")
				continue
			}

			select {
			case c.vc.OpusSend <- packet:
				sent++
			case <-c.clock.After(sendTimeout):
				logger.Debug().Msg("opus send blocked, skipping frame")
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// endOfStream turns the end of the PCM pipe into a playback result. The
// transcoder's exit status decides between a clean end and a failure.
func (c *Conn) endOfStream(src transcoder.Handle, err error) error {
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("error reading PCM data: %w", err)
	}
	select {
	case <-src.Done():
		return src.Err()
	case <-c.clock.After(exitWait):
		return errors.New("transcoder closed its output but did not exit")
	}
}

func readFrames(ctx context.Context, r io.Reader, frames chan<- []int16, readErr chan<- error) {
	defer close(frames)
	buf := make([]byte, frameBytes)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			readErr <- err
			return
		}
		select {
		case frames <- bytesToInt16(buf):
		case <-ctx.Done():
			readErr <- ctx.Err()
			return
		}
	}
}

// Stop ends playback. The transcoder itself is left to its supervisor.
func (c *Conn) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.playing = false
}

func (c *Conn) Disconnect(context.Context) error {
	c.Stop()
	return c.vc.Disconnect()
}

func (c *Conn) IsPlaying() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

func (c *Conn) IsConnected() bool {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.Ready
}

func (c *Conn) ChannelID() string {
	c.vc.RLock()
	defer c.vc.RUnlock()
	return c.vc.ChannelID
}

func (c *Conn) UnderlyingProcess() (transcoder.Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.source == nil {
		return nil, false
	}
	return c.source, true
}
