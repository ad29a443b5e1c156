// Package config loads kbchat settings from viper into the typed
// configuration of each component.
package config

import (
	"errors"
	"fmt"

	"github.com/kbchat/kbchat/internal/audio"
	"github.com/kbchat/kbchat/internal/cache"
	"github.com/kbchat/kbchat/internal/client"
	"github.com/kbchat/kbchat/internal/tts"
)

// Synthesis transports.
const (
	TransportHTTP       = "http"
	TransportElevenLabs = "elevenlabs"
	TransportPiper      = "piper"
)

// Themes.
const (
	ThemeAuto  = "auto"
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Config is the complete kbchat configuration.
type Config struct {
	Server     client.Config
	Audio      audio.Config
	Backend    tts.BackendMode
	Transport  string
	ElevenLabs client.ElevenLabsConfig
	Piper      client.PiperConfig
	Cache      CacheConfig
	Speech     SpeechConfig

	Mute  bool
	Theme string
}

// CacheConfig controls the synthesized clip cache.
type CacheConfig struct {
	Enabled bool
	cache.Config
}

// SpeechConfig controls how reply text is turned into utterances.
type SpeechConfig struct {
	StripMarkdown bool
}

// DefaultConfig returns the default configuration. The cache directory is
// left empty and resolved by the caller.
func DefaultConfig() Config {
	return Config{
		Server:     client.DefaultConfig(),
		Audio:      audio.DefaultConfig(),
		Backend:    tts.ModeAuto,
		Transport:  TransportHTTP,
		ElevenLabs: client.DefaultElevenLabsConfig(),
		Piper:      client.DefaultPiperConfig(),
		Cache: CacheConfig{
			Enabled: true,
			Config:  cache.DefaultConfig(),
		},
		Theme: ThemeAuto,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}
	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}
	if _, err := tts.ParseBackendMode(string(c.Backend)); err != nil {
		return err
	}

	switch c.Transport {
	case TransportHTTP:
	case TransportElevenLabs:
		if err := c.ElevenLabs.Validate(); err != nil {
			return fmt.Errorf("elevenlabs config: %w", err)
		}
	case TransportPiper:
		if err := c.Piper.Validate(); err != nil {
			return fmt.Errorf("piper config: %w", err)
		}
		// piper only writes raw mono samples
		if c.Audio.Encoding != audio.EncodingPCM || c.Audio.Channels != 1 {
			return errors.New("piper transport needs audio.encoding pcm and audio.channels 1")
		}
	default:
		return fmt.Errorf("invalid synth transport '%s': must be one of %v",
			c.Transport, []string{TransportHTTP, TransportElevenLabs, TransportPiper})
	}

	if c.Cache.Enabled {
		if c.Cache.MemoryCapacity <= 0 {
			return errors.New("cache memory size must be positive")
		}
		if c.Cache.DiskCapacity < 0 {
			return errors.New("cache disk size cannot be negative")
		}
		if c.Cache.CompressionLevel < 0 || c.Cache.CompressionLevel > 22 {
			return fmt.Errorf("cache compression level must be between 0 and 22, got %d", c.Cache.CompressionLevel)
		}
	}

	switch c.Theme {
	case ThemeAuto, ThemeDark, ThemeLight:
	default:
		return fmt.Errorf("invalid theme '%s': must be one of %v",
			c.Theme, []string{ThemeAuto, ThemeDark, ThemeLight})
	}

	return nil
}

// Voice identifies the voice clips are synthesized with, for cache keys.
func (c *Config) Voice() string {
	switch c.Transport {
	case TransportElevenLabs:
		return fmt.Sprintf("elevenlabs/%s/%s/%s", c.ElevenLabs.VoiceID, c.ElevenLabs.ModelID, c.ElevenLabs.OutputFormat)
	case TransportPiper:
		return fmt.Sprintf("piper/%s/%s/%.2f", c.Piper.ModelPath, c.Piper.Speaker, c.Piper.LengthScale)
	}
	return c.Server.BaseURL + c.Server.TTSPath
}
