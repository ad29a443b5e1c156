package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/kbchat/kbchat/internal/tts"
)

// Default endpoint settings.
const (
	DefaultBaseURL  = "http://127.0.0.1:8002"
	DefaultChatPath = "/chat"
	DefaultTTSPath  = "/tts_stream"
	DefaultTimeout  = 30 * time.Second
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 512

// Config configures the server client.
type Config struct {
	BaseURL           string
	ChatPath          string
	TTSPath           string
	Timeout           time.Duration // connect and response-header timeout; streams may run longer
	RequestsPerMinute int           // synthesis rate limit, 0 disables it
}

// DefaultConfig returns the defaults for a local server.
func DefaultConfig() Config {
	return Config{
		BaseURL:  DefaultBaseURL,
		ChatPath: DefaultChatPath,
		TTSPath:  DefaultTTSPath,
		Timeout:  DefaultTimeout,
	}
}

// Validate validates the client configuration.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server url must be http or https, got %q", c.BaseURL)
	}
	if !strings.HasPrefix(c.ChatPath, "/") || !strings.HasPrefix(c.TTSPath, "/") {
		return errors.New("endpoint paths must start with /")
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.RequestsPerMinute < 0 {
		return errors.New("requests per minute cannot be negative")
	}
	return nil
}

// Client posts JSON to the chat server and hands back response streams.
type Client struct {
	http    *http.Client
	config  Config
	limiter *rate.Limiter
	logger  *log.Logger
}

// New creates a client. The underlying transport bounds connection setup
// and waiting for headers, never the body, so long streams are not cut.
func New(config Config, logger *log.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: config.Timeout}).DialContext
	transport.ResponseHeaderTimeout = config.Timeout

	limiter := rate.NewLimiter(rate.Inf, 1)
	if config.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1)
	}

	return &Client{
		http:    &http.Client{Transport: transport},
		config:  config,
		limiter: limiter,
		logger:  logger,
	}, nil
}

// generateRequest is the generation endpoint's request body.
type generateRequest struct {
	Text      string `json:"text"`
	SessionID string `json:"session_id,omitempty"`
}

// synthesizeRequest is the synthesis endpoint's request body.
type synthesizeRequest struct {
	Text string `json:"text"`
}

// Generate posts the user's message and returns the reply as a stream of
// UTF-8 text. The caller must close the stream.
func (c *Client) Generate(ctx context.Context, text, sessionID string) (io.ReadCloser, error) {
	return c.post(ctx, c.config.ChatPath, generateRequest{Text: text, SessionID: sessionID})
}

// Synthesize implements tts.Synthesizer against the synthesis endpoint.
func (c *Client) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, tts.TransportError("rate limit wait cancelled", err)
	}
	return c.post(ctx, c.config.TTSPath, synthesizeRequest{Text: text})
}

var _ tts.Synthesizer = (*Client)(nil)

func (c *Client) post(ctx context.Context, path string, payload interface{}) (io.ReadCloser, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.config.BaseURL, "/") + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, tts.TransportError("build request", err).WithContext("url", endpoint)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, tts.TransportError("post "+path, err).WithContext("url", endpoint)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, tts.TransportError(
			"post "+path,
			fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg))),
		).WithContext("status", resp.StatusCode)
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, tts.ProtocolError("post "+path, tts.ErrNoBody)
	}

	c.logger.Debug("response headers", "path", path, "status", resp.StatusCode, "latency", time.Since(start))
	return &streamBody{ReadCloser: resp.Body, path: path}, nil
}

// streamBody reports mid-stream read failures as transport errors.
type streamBody struct {
	io.ReadCloser
	path string
}

func (b *streamBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, tts.TransportError("read "+b.path, err)
	}
	return n, err
}
