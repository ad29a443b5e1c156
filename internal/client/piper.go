package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kbchat/kbchat/internal/tts"
)

// PiperConfig configures the offline piper synthesizer. Piper writes raw
// 16-bit mono PCM at the voice model's sample rate.
type PiperConfig struct {
	Binary      string // looked up in PATH
	ModelPath   string
	ConfigPath  string // defaults to the model path with a .json extension
	Speaker     string
	LengthScale float64       // 1.0 is normal speed, larger is slower
	Timeout     time.Duration // per sentence
}

// DefaultPiperConfig returns the piper defaults.
func DefaultPiperConfig() PiperConfig {
	return PiperConfig{
		Binary:      "piper",
		LengthScale: 1.0,
		Timeout:     30 * time.Second,
	}
}

// Validate validates the piper configuration.
func (c PiperConfig) Validate() error {
	if c.Binary == "" {
		return errors.New("piper binary cannot be empty")
	}
	if c.ModelPath == "" {
		return errors.New("piper model path is required")
	}
	if c.LengthScale < 0.1 || c.LengthScale > 3.0 {
		return fmt.Errorf("length_scale must be between 0.1 and 3.0, got %f", c.LengthScale)
	}
	if c.Timeout < time.Second {
		return fmt.Errorf("timeout must be at least 1 second, got %v", c.Timeout)
	}
	return nil
}

// PiperSynthesizer implements tts.Synthesizer with a fresh piper process per
// sentence. Audio is streamed from the process as it is produced.
type PiperSynthesizer struct {
	config PiperConfig
	binary string
	logger *log.Logger
}

var _ tts.Synthesizer = (*PiperSynthesizer)(nil)

// NewPiperSynthesizer checks that piper and its model are available.
func NewPiperSynthesizer(config PiperConfig, logger *log.Logger) (*PiperSynthesizer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid piper config: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}

	binary, err := exec.LookPath(config.Binary)
	if err != nil {
		return nil, fmt.Errorf("piper not found: %w", err)
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("model file not found: %w", err)
	}
	if config.ConfigPath == "" {
		config.ConfigPath = strings.TrimSuffix(config.ModelPath, filepath.Ext(config.ModelPath)) + ".json"
	}

	return &PiperSynthesizer{
		config: config,
		binary: binary,
		logger: logger,
	}, nil
}

func (s *PiperSynthesizer) args() []string {
	args := []string{
		"--model", s.config.ModelPath,
		"--output-raw",
		"--length-scale", fmt.Sprintf("%.2f", s.config.LengthScale),
	}
	if _, err := os.Stat(s.config.ConfigPath); err == nil {
		args = append(args, "--config", s.config.ConfigPath)
	}
	if s.config.Speaker != "" {
		args = append(args, "--speaker", s.config.Speaker)
	}
	return args
}

// Synthesize starts piper with text on stdin and returns its stdout.
func (s *PiperSynthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ProtocolError("nothing to synthesize", tts.ErrEmptyAudio)
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)

	cmd := exec.CommandContext(ctx, s.binary, s.args()...)
	// Text must be in place before piper starts reading stdin
	cmd.Stdin = strings.NewReader(text)

	// Children of a killed piper may keep stderr open
	cmd.WaitDelay = time.Second

	stream := &piperStream{cmd: cmd, cancel: cancel}
	cmd.Stderr = &stream.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, tts.TransportError("piper stdout", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, tts.TransportError("start piper", err)
	}
	stream.stdout = stdout

	s.logger.Debug("piper started", "pid", cmd.Process.Pid, "chars", len(text))
	return stream, nil
}

// piperStream reads a piper process's output. A non-zero exit surfaces as a
// TRANSPORT error in place of EOF.
type piperStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	cancel context.CancelFunc

	once    sync.Once
	waitErr error
}

func (p *piperStream) wait() error {
	p.once.Do(func() {
		p.waitErr = p.cmd.Wait()
		p.cancel()
	})
	return p.waitErr
}

func (p *piperStream) Read(b []byte) (int, error) {
	n, err := p.stdout.Read(b)
	if !errors.Is(err, io.EOF) {
		return n, err
	}
	if werr := p.wait(); werr != nil {
		msg := strings.TrimSpace(p.stderr.String())
		return n, tts.TransportError("piper failed", fmt.Errorf("%w: %s", werr, msg))
	}
	return n, io.EOF
}

// Close stops piper if it is still running.
func (p *piperStream) Close() error {
	p.cancel()
	_ = p.wait()
	return nil
}
