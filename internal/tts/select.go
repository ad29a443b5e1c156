package tts

import (
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/kbchat/kbchat/internal/audio"
)

// BackendMode controls how the playback backend is chosen.
type BackendMode string

const (
	// ModeAuto picks streaming when the device supports it.
	ModeAuto BackendMode = "auto"

	// ModeStreaming forces incremental playback.
	ModeStreaming BackendMode = "streaming"

	// ModeBuffered forces whole-payload playback.
	ModeBuffered BackendMode = "buffered"
)

// ParseBackendMode converts a configuration string into a BackendMode.
func ParseBackendMode(s string) (BackendMode, error) {
	switch BackendMode(s) {
	case ModeAuto, ModeStreaming, ModeBuffered:
		return BackendMode(s), nil
	case "":
		return ModeAuto, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidBackend, s)
}

// SelectBackend resolves the playback backend once at startup.
func SelectBackend(mode BackendMode, device audio.Device, synth Synthesizer, logger *log.Logger) (Backend, error) {
	if logger == nil {
		logger = log.Default()
	}

	streaming, canStream := device.(audio.StreamingDevice)

	var backend Backend
	switch mode {
	case ModeAuto, "":
		if canStream {
			backend = NewStreamingBackend(streaming, synth, logger)
		} else {
			backend = NewBufferedBackend(device, synth, logger)
		}
	case ModeStreaming:
		if !canStream {
			return nil, ErrStreamingUnsupported
		}
		backend = NewStreamingBackend(streaming, synth, logger)
	case ModeBuffered:
		backend = NewBufferedBackend(device, synth, logger)
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidBackend, mode)
	}

	logger.Debug("playback backend selected", "mode", mode, "backend", backend.Name())
	return backend, nil
}
