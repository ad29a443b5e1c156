package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# chat server
server:
  url: "http://127.0.0.1:8002"
  chat_path: "/chat"
  tts_path: "/tts_stream"
  # connect and response-header timeout; replies may stream longer
  timeout: "30s"

# audio output
audio:
  # auto, streaming or buffered
  backend: "auto"
  # encoding of synthesized audio: mp3 or pcm
  encoding: "mp3"
  sample_rate: 44100
  channels: 2
  volume: 1.0
  buffer: "100ms"

# speech synthesis
synth:
  # http (the chat server), elevenlabs (direct) or piper (offline)
  transport: "http"
  # 0 disables rate limiting
  requests_per_minute: 0

elevenlabs:
  # api_key: "your-api-key-here"
  # voice_id: "your-voice-id"
  model_id: "eleven_multilingual_v2"
  output_format: "mp3_44100_128"
  stability: 0.28
  similarity_boost: 0.95
  style: 0.65
  speaker_boost: true

# offline synthesis; needs audio.encoding pcm, audio.channels 1 and the
# voice's sample rate (22050 for most voices)
piper:
  binary: "piper"
  # model: "~/voices/en_US-amy-medium.onnx"
  # speaker: "0"
  length_scale: 1.0
  timeout: "30s"

# synthesized clip cache
cache:
  enabled: true
  # dir: "~/.cache/kbchat/clips"
  memory_mb: 32
  disk_mb: 256
  compression_level: 3
  ttl: "168h"

speech:
  # speak replies without markdown markup
  strip_markdown: false

# start with speech muted
mute: false
# auto, dark or light
theme: "auto"
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the kbchat config file",
	Long:    paragraph(fmt.Sprintf("\n%s the kbchat config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("kbchat config\nkbchat config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("kbchat", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if err := os.MkdirAll(filepath.Dir(configFile), 0o755); err != nil { //nolint:gosec
			return fmt.Errorf("could not write configuration file: %w", err)
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
