package tts

import (
	"context"
	"io"
)

// Synthesizer is the consumed speech-synthesis endpoint.
// One call maps to exactly one sentence's audio.
type Synthesizer interface {
	// Synthesize requests audio for text and returns it as a byte stream of
	// encoded audio chunks, terminated by stream close. The caller must
	// close the returned stream.
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

// Backend plays one sentence aloud.
// Implementations are selected once at startup; see SelectBackend.
type Backend interface {
	// Play obtains synthesized audio for sentence and plays it.
	// It returns only after audible playback has fully finished, or with an
	// error. Every audio resource acquired is released before returning.
	Play(ctx context.Context, sentence string) error

	// Name identifies the backend for logging.
	Name() string
}

// SynthesizerFunc adapts a function to the Synthesizer interface.
type SynthesizerFunc func(ctx context.Context, text string) (io.ReadCloser, error)

// Synthesize calls f(ctx, text).
func (f SynthesizerFunc) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	return f(ctx, text)
}
