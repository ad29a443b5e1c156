package tts

import (
	"errors"
	"fmt"
)

// Common speech pipeline errors
var (
	// ErrEmptyAudio indicates the synthesis stream closed without any audio
	ErrEmptyAudio = errors.New("synthesis returned no audio")

	// ErrNoBody indicates a response carried no readable byte stream
	ErrNoBody = errors.New("response has no readable body")

	// ErrStreamingUnsupported indicates the audio device cannot append incrementally
	ErrStreamingUnsupported = errors.New("audio device does not support incremental playback")

	// ErrInvalidBackend indicates an unknown backend mode was configured
	ErrInvalidBackend = errors.New("invalid playback backend")
)

// ErrorCode identifies which part of the pipeline failed.
type ErrorCode string

const (
	// ErrorCodeTransport covers failed requests, non-2xx responses and
	// streams that break mid-read.
	ErrorCodeTransport ErrorCode = "TRANSPORT"

	// ErrorCodePlayback covers audio device and decode failures.
	ErrorCodePlayback ErrorCode = "PLAYBACK"

	// ErrorCodeProtocol covers responses without a readable byte stream.
	ErrorCodeProtocol ErrorCode = "PROTOCOL"
)

// TTSError represents a pipeline error with additional context
type TTSError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *TTSError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *TTSError) Unwrap() error {
	return e.Cause
}

// NewTTSError creates a new error with context
func NewTTSError(code ErrorCode, message string, cause error) *TTSError {
	return &TTSError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context to the error
func (e *TTSError) WithContext(key string, value interface{}) *TTSError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// TransportError wraps cause as a TRANSPORT error.
func TransportError(message string, cause error) *TTSError {
	return NewTTSError(ErrorCodeTransport, message, cause)
}

// PlaybackError wraps cause as a PLAYBACK error.
func PlaybackError(message string, cause error) *TTSError {
	return NewTTSError(ErrorCodePlayback, message, cause)
}

// ProtocolError wraps cause as a PROTOCOL error.
func ProtocolError(message string, cause error) *TTSError {
	return NewTTSError(ErrorCodeProtocol, message, cause)
}

// CodeOf returns the code of the first TTSError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var te *TTSError
	if errors.As(err, &te) {
		return te.Code
	}
	return ""
}

// IsTransport reports whether err is a TRANSPORT error.
func IsTransport(err error) bool { return CodeOf(err) == ErrorCodeTransport }

// IsPlayback reports whether err is a PLAYBACK error.
func IsPlayback(err error) bool { return CodeOf(err) == ErrorCodePlayback }

// IsProtocol reports whether err is a PROTOCOL error.
func IsProtocol(err error) bool { return CodeOf(err) == ErrorCodeProtocol }
