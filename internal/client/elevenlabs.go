package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/kbchat/kbchat/internal/tts"
)

// ElevenLabsConfig configures the direct stream-input synthesizer.
type ElevenLabsConfig struct {
	BaseURL             string // wss://api.elevenlabs.io
	APIKey              string
	VoiceID             string
	ModelID             string
	OutputFormat        string // e.g. mp3_44100_128 or pcm_24000
	Stability           float64
	SimilarityBoost     float64
	Style               float64
	UseSpeakerBoost     bool
	ChunkLengthSchedule []int
	HandshakeTimeout    time.Duration
	RequestsPerMinute   int
}

// DefaultElevenLabsConfig returns the voice tuning the chat server uses.
func DefaultElevenLabsConfig() ElevenLabsConfig {
	return ElevenLabsConfig{
		BaseURL:             "wss://api.elevenlabs.io",
		ModelID:             "eleven_multilingual_v2",
		OutputFormat:        "mp3_44100_128",
		Stability:           0.28,
		SimilarityBoost:     0.95,
		Style:               0.65,
		UseSpeakerBoost:     true,
		ChunkLengthSchedule: []int{120, 160, 250, 290},
		HandshakeTimeout:    10 * time.Second,
	}
}

// Validate validates the ElevenLabs configuration.
func (c ElevenLabsConfig) Validate() error {
	if c.APIKey == "" {
		return errors.New("elevenlabs api key is required")
	}
	if c.VoiceID == "" {
		return errors.New("elevenlabs voice id is required")
	}
	if c.ModelID == "" {
		return errors.New("elevenlabs model id is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid elevenlabs url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("elevenlabs url must be ws or wss, got %q", c.BaseURL)
	}
	for _, v := range []float64{c.Stability, c.SimilarityBoost, c.Style} {
		if v < 0 || v > 1 {
			return fmt.Errorf("voice settings must be between 0 and 1, got %v", v)
		}
	}
	if c.HandshakeTimeout <= 0 {
		return errors.New("handshake timeout must be positive")
	}
	return nil
}

// ElevenLabsSynthesizer implements tts.Synthesizer over the ElevenLabs
// stream-input websocket, one connection per sentence.
type ElevenLabsSynthesizer struct {
	config  ElevenLabsConfig
	dialer  *websocket.Dialer
	limiter *rate.Limiter
	logger  *log.Logger
}

var _ tts.Synthesizer = (*ElevenLabsSynthesizer)(nil)

// NewElevenLabsSynthesizer creates a synthesizer that bypasses the chat
// server's synthesis endpoint.
func NewElevenLabsSynthesizer(config ElevenLabsConfig, logger *log.Logger) (*ElevenLabsSynthesizer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid elevenlabs config: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	return &ElevenLabsSynthesizer{
		config:  config,
		dialer:  &websocket.Dialer{HandshakeTimeout: config.HandshakeTimeout},
		limiter: limiter,
		logger:  logger,
	}, nil
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type generationConfig struct {
	ChunkLengthSchedule []int `json:"chunk_length_schedule,omitempty"`
}

// streamInit opens the stream; its text must be a single space.
type streamInit struct {
	Text             string            `json:"text"`
	APIKey           string            `json:"xi_api_key"`
	VoiceSettings    voiceSettings     `json:"voice_settings"`
	GenerationConfig *generationConfig `json:"generation_config,omitempty"`
}

type streamText struct {
	Text  string `json:"text"`
	Flush bool   `json:"flush,omitempty"`
}

type streamMessage struct {
	Audio   string `json:"audio"`
	IsFinal bool   `json:"isFinal"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

func (s *ElevenLabsSynthesizer) endpoint() string {
	q := url.Values{}
	q.Set("model_id", s.config.ModelID)
	if s.config.OutputFormat != "" {
		q.Set("output_format", s.config.OutputFormat)
	}
	return fmt.Sprintf("%s/v1/text-to-speech/%s/stream-input?%s",
		strings.TrimRight(s.config.BaseURL, "/"), url.PathEscape(s.config.VoiceID), q.Encode())
}

// Synthesize sends text, then reads base64 audio frames until isFinal.
func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, tts.TransportError("rate limit wait cancelled", err)
	}

	conn, resp, err := s.dialer.DialContext(ctx, s.endpoint(), nil)
	if err != nil {
		te := tts.TransportError("dial elevenlabs", err)
		if resp != nil {
			te.WithContext("status", resp.StatusCode)
		}
		return nil, te
	}

	open := streamInit{
		Text:   " ",
		APIKey: s.config.APIKey,
		VoiceSettings: voiceSettings{
			Stability:       s.config.Stability,
			SimilarityBoost: s.config.SimilarityBoost,
			Style:           s.config.Style,
			UseSpeakerBoost: s.config.UseSpeakerBoost,
		},
	}
	if len(s.config.ChunkLengthSchedule) > 0 {
		open.GenerationConfig = &generationConfig{ChunkLengthSchedule: s.config.ChunkLengthSchedule}
	}

	// Open, send the sentence flushed, then the empty text that ends input.
	for _, msg := range []interface{}{open, streamText{Text: text, Flush: true}, streamText{Text: ""}} {
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			return nil, tts.TransportError("send to elevenlabs", err)
		}
	}

	pr, pw := io.Pipe()
	go s.receive(ctx, conn, pw)

	return &wsStream{PipeReader: pr, conn: conn}, nil
}

func (s *ElevenLabsSynthesizer) receive(ctx context.Context, conn *websocket.Conn, pw *io.PipeWriter) {
	defer conn.Close()

	// Unblock ReadJSON when the caller gives up.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	frames := 0
	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				pw.CloseWithError(ctx.Err())
				return
			}
			pw.CloseWithError(tts.TransportError("read elevenlabs stream", err).WithContext("frames", frames))
			return
		}

		if msg.Error != "" {
			pw.CloseWithError(tts.TransportError("elevenlabs", fmt.Errorf("%s: %s", msg.Error, msg.Message)))
			return
		}

		if msg.Audio != "" {
			data, err := base64.StdEncoding.DecodeString(msg.Audio)
			if err != nil {
				pw.CloseWithError(tts.ProtocolError("decode elevenlabs audio", err))
				return
			}
			if _, err := pw.Write(data); err != nil {
				// Reader closed
				return
			}
			frames++
		}

		if msg.IsFinal {
			s.logger.Debug("elevenlabs stream complete", "frames", frames)
			pw.Close()
			return
		}
	}
}

// wsStream closes the websocket along with the pipe.
type wsStream struct {
	*io.PipeReader
	conn *websocket.Conn
}

func (w *wsStream) Close() error {
	w.PipeReader.Close()
	return w.conn.Close()
}
