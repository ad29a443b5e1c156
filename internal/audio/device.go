package audio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Common device errors
var (
	// ErrEmptyPayload indicates there was nothing to play
	ErrEmptyPayload = errors.New("audio payload is empty")

	// ErrSinkClosed indicates a sink was used after Close
	ErrSinkClosed = errors.New("audio sink is closed")

	// ErrNotStarted indicates Wait was called on a sink that never played
	ErrNotStarted = errors.New("audio sink was never started")

	// ErrSampleRateMismatch indicates decoded audio does not match the device
	ErrSampleRateMismatch = errors.New("sample rate does not match device")

	// ErrAudioUnavailable indicates the binary was built without audio output
	ErrAudioUnavailable = errors.New("audio not available in nocgo build")
)

// Encoding is the wire format of synthesized audio.
type Encoding string

const (
	// EncodingPCM is raw signed 16-bit little-endian PCM.
	EncodingPCM Encoding = "pcm"

	// EncodingMP3 is an MPEG-1/2 Layer III stream (audio/mpeg).
	EncodingMP3 Encoding = "mp3"
)

// Device is the audio output channel. Only one utterance plays at a time;
// callers serialize access.
type Device interface {
	// PlayBuffer plays a complete payload start to finish and returns once
	// playback has ended.
	PlayBuffer(ctx context.Context, payload []byte) error
}

// StreamingDevice is a Device that can also accept audio incrementally.
type StreamingDevice interface {
	Device

	// OpenSink returns a fresh sink for one utterance.
	OpenSink() (Sink, error)
}

// Sink receives one utterance's encoded audio in order.
type Sink interface {
	// Append adds a chunk and returns once the sink has taken it.
	Append(chunk []byte) error

	// Play starts audible playback. Chunks appended afterwards keep playing
	// in order.
	Play() error

	// EndOfStream marks that no further chunks will be appended.
	EndOfStream()

	// Wait blocks until everything appended has been played.
	Wait(ctx context.Context) error

	// Close stops playback and releases the sink. It is safe to call more
	// than once and on every exit path.
	Close() error
}

// Config contains configuration for the audio device.
type Config struct {
	Encoding     Encoding      // pcm or mp3
	SampleRate   int           // device sample rate in Hz
	Channels     int           // 1 = mono, 2 = stereo
	BufferSize   time.Duration // oto output buffer
	PollInterval time.Duration // how often playback end is checked
	Volume       float64       // 0.0 to 1.0
}

// DefaultConfig returns the default device configuration.
func DefaultConfig() Config {
	return Config{
		Encoding:     EncodingMP3,
		SampleRate:   44100,
		Channels:     2, // mp3 decodes to stereo
		BufferSize:   100 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		Volume:       1.0,
	}
}

var supportedSampleRates = map[int]bool{
	16000: true,
	22050: true,
	24000: true,
	44100: true,
	48000: true,
}

// Validate validates the device configuration.
func (c Config) Validate() error {
	switch c.Encoding {
	case EncodingPCM:
	case EncodingMP3:
		if c.Channels != 2 {
			return fmt.Errorf("mp3 decodes to stereo, channels must be 2, got %d", c.Channels)
		}
	default:
		return fmt.Errorf("unknown encoding %q", c.Encoding)
	}

	if !supportedSampleRates[c.SampleRate] {
		return fmt.Errorf("unsupported sample rate %d Hz", c.SampleRate)
	}

	if c.Channels != 1 && c.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", c.Channels)
	}

	if c.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}

	if c.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}

	if c.Volume < 0.0 || c.Volume > 1.0 {
		return fmt.Errorf("volume must be between 0.0 and 1.0, got %f", c.Volume)
	}

	return nil
}

// ParseEncoding converts a configuration string into an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch Encoding(s) {
	case EncodingPCM, EncodingMP3:
		return Encoding(s), nil
	}
	return "", fmt.Errorf("unknown encoding %q", s)
}
