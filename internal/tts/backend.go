package tts

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kbchat/kbchat/internal/audio"
)

// DefaultChunkSize is the read size used when copying a synthesis stream
// into an incremental sink.
const DefaultChunkSize = 16 * 1024

// StreamingBackend plays a sentence while its audio is still arriving.
type StreamingBackend struct {
	device    audio.StreamingDevice
	synth     Synthesizer
	chunkSize int
	logger    *log.Logger
}

// NewStreamingBackend creates a backend that appends synthesized chunks to
// an incremental sink on device.
func NewStreamingBackend(device audio.StreamingDevice, synth Synthesizer, logger *log.Logger) *StreamingBackend {
	if logger == nil {
		logger = log.Default()
	}
	return &StreamingBackend{
		device:    device,
		synth:     synth,
		chunkSize: DefaultChunkSize,
		logger:    logger,
	}
}

// Name implements Backend.
func (b *StreamingBackend) Name() string { return "streaming" }

// Play implements Backend. Audible playback starts right after the first
// chunk has been appended; the sink is released on every exit path.
func (b *StreamingBackend) Play(ctx context.Context, sentence string) error {
	start := time.Now()

	sink, err := b.device.OpenSink()
	if err != nil {
		return PlaybackError("open sink", err)
	}
	defer sink.Close()

	body, err := b.synth.Synthesize(ctx, sentence)
	if err != nil {
		return err
	}
	defer body.Close()

	buf := make([]byte, b.chunkSize)
	started := false
	chunks := 0

	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			// One append in flight at a time; Append returns once taken.
			if err := sink.Append(buf[:n]); err != nil {
				return PlaybackError("append chunk", err).WithContext("chunk", chunks)
			}
			chunks++

			if !started {
				if err := sink.Play(); err != nil {
					return PlaybackError("start playback", err)
				}
				started = true
				b.logger.Debug("first audio chunk", "latency", time.Since(start), "bytes", n)
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return TransportError("read synthesis stream", rerr).WithContext("chunks", chunks)
		}
	}

	sink.EndOfStream()

	if !started {
		return PlaybackError("nothing to play", ErrEmptyAudio)
	}

	if err := sink.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return PlaybackError("playback", err)
	}

	b.logger.Debug("utterance played", "backend", b.Name(), "chunks", chunks, "took", time.Since(start))
	return nil
}

// BufferedBackend downloads a sentence's audio completely before playing it.
type BufferedBackend struct {
	device audio.Device
	synth  Synthesizer
	logger *log.Logger
}

// NewBufferedBackend creates a backend that plays whole payloads.
func NewBufferedBackend(device audio.Device, synth Synthesizer, logger *log.Logger) *BufferedBackend {
	if logger == nil {
		logger = log.Default()
	}
	return &BufferedBackend{device: device, synth: synth, logger: logger}
}

// Name implements Backend.
func (b *BufferedBackend) Name() string { return "buffered" }

// Play implements Backend.
func (b *BufferedBackend) Play(ctx context.Context, sentence string) error {
	start := time.Now()

	body, err := b.synth.Synthesize(ctx, sentence)
	if err != nil {
		return err
	}
	payload, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return TransportError("read synthesis stream", err)
	}

	if len(payload) == 0 {
		return PlaybackError("nothing to play", ErrEmptyAudio)
	}

	if err := b.device.PlayBuffer(ctx, payload); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return PlaybackError("playback", err).WithContext("bytes", len(payload))
	}

	b.logger.Debug("utterance played", "backend", b.Name(), "bytes", len(payload), "took", time.Since(start))
	return nil
}
