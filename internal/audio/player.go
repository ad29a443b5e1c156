//go:build !nocgo

package audio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// OtoDevice implements StreamingDevice on top of a single oto context.
// oto permits one context per process, so create one device and share it.
type OtoDevice struct {
	context *oto.Context
	config  Config

	mu     sync.RWMutex
	volume float64
}

var _ StreamingDevice = (*OtoDevice)(nil)

// NewOtoDevice creates the process-wide oto context and waits until the
// audio driver is ready.
func NewOtoDevice(config Config) (*OtoDevice, error) {
	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   config.BufferSize,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	// Wait for context to be ready
	<-readyChan

	return &OtoDevice{
		context: ctx,
		config:  config,
		volume:  config.Volume,
	}, nil
}

// Config returns the device configuration.
func (d *OtoDevice) Config() Config {
	return d.config
}

// SetVolume sets the volume applied to subsequent utterances.
func (d *OtoDevice) SetVolume(volume float64) error {
	if volume < 0.0 || volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", volume)
	}
	d.mu.Lock()
	d.volume = volume
	d.mu.Unlock()
	return nil
}

// Volume returns the current volume.
func (d *OtoDevice) Volume() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.volume
}

// PlayBuffer decodes and plays payload, returning when playback ends.
func (d *OtoDevice) PlayBuffer(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	player := d.context.NewPlayer(newDecoder(bytes.NewReader(payload), d.config.Encoding, d.config.SampleRate))
	defer player.Close()

	player.SetVolume(d.Volume())
	player.Play()

	return d.waitPlayer(ctx, player)
}

// OpenSink returns a sink whose player pulls from appended chunks.
func (d *OtoDevice) OpenSink() (Sink, error) {
	buf := newChunkBuffer()
	player := d.context.NewPlayer(newDecoder(buf, d.config.Encoding, d.config.SampleRate))
	player.SetVolume(d.Volume())

	return &otoSink{
		device:  d,
		buf:     buf,
		player:  player,
		started: make(chan struct{}),
	}, nil
}

// waitPlayer polls until the player drains, then lets the driver buffer
// empty so the tail of the utterance is not cut.
func (d *OtoDevice) waitPlayer(ctx context.Context, player *oto.Player) error {
	ticker := time.NewTicker(d.config.PollInterval)
	defer ticker.Stop()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}

	if err := player.Err(); err != nil {
		return fmt.Errorf("playback failed: %w", err)
	}

	tail := time.NewTimer(d.config.BufferSize)
	defer tail.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-tail.C:
	}
	return nil
}

// otoSink feeds one oto player through a chunkBuffer.
type otoSink struct {
	device *OtoDevice
	buf    *chunkBuffer
	player *oto.Player

	playOnce  sync.Once
	closeOnce sync.Once
	playing   atomic.Bool
	started   chan struct{}
}

func (s *otoSink) Append(chunk []byte) error {
	return s.buf.Append(chunk)
}

// Play starts the player. oto fills its buffer synchronously inside Play,
// which blocks on the chunk reader, so it runs on its own goroutine.
func (s *otoSink) Play() error {
	s.playOnce.Do(func() {
		s.playing.Store(true)
		go func() {
			s.player.Play()
			close(s.started)
		}()
	})
	return nil
}

func (s *otoSink) EndOfStream() {
	s.buf.EndOfStream()
}

func (s *otoSink) Wait(ctx context.Context) error {
	if !s.playing.Load() {
		return ErrNotStarted
	}
	select {
	case <-s.started:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.device.waitPlayer(ctx, s.player)
}

// Close unblocks the reader first; oto holds the player lock while reading.
func (s *otoSink) Close() error {
	s.closeOnce.Do(func() {
		s.buf.Close()
		s.player.Pause()
		s.player.Close()
	})
	return nil
}
