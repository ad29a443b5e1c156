package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/kbchat/kbchat/internal/audio"
	"github.com/kbchat/kbchat/internal/client"
	"github.com/kbchat/kbchat/internal/tts"
)

const megabyte = 1024 * 1024

// LoadFromViper loads the configuration from viper's global instance.
func LoadFromViper() (Config, error) {
	cfg := DefaultConfig()

	// Server
	if viper.IsSet("server.url") {
		cfg.Server.BaseURL = viper.GetString("server.url")
	}
	if viper.IsSet("server.chat_path") {
		cfg.Server.ChatPath = viper.GetString("server.chat_path")
	}
	if viper.IsSet("server.tts_path") {
		cfg.Server.TTSPath = viper.GetString("server.tts_path")
	}
	setDuration("server.timeout", &cfg.Server.Timeout)

	// Audio
	if viper.IsSet("audio.backend") {
		cfg.Backend = tts.BackendMode(viper.GetString("audio.backend"))
	}
	if viper.IsSet("audio.encoding") {
		cfg.Audio.Encoding = audio.Encoding(viper.GetString("audio.encoding"))
	}
	if viper.IsSet("audio.sample_rate") {
		cfg.Audio.SampleRate = viper.GetInt("audio.sample_rate")
	}
	if viper.IsSet("audio.channels") {
		cfg.Audio.Channels = viper.GetInt("audio.channels")
	}
	if viper.IsSet("audio.volume") {
		cfg.Audio.Volume = viper.GetFloat64("audio.volume")
	}
	setDuration("audio.buffer", &cfg.Audio.BufferSize)

	// Synthesis
	if viper.IsSet("synth.transport") {
		cfg.Transport = viper.GetString("synth.transport")
	}
	if viper.IsSet("synth.requests_per_minute") {
		rpm := viper.GetInt("synth.requests_per_minute")
		cfg.Server.RequestsPerMinute = rpm
		cfg.ElevenLabs.RequestsPerMinute = rpm
	}

	cfg.ElevenLabs = loadElevenLabs(cfg)

	piper, err := loadPiper(cfg)
	if err != nil {
		return cfg, err
	}
	cfg.Piper = piper

	// Cache
	if viper.IsSet("cache.enabled") {
		cfg.Cache.Enabled = viper.GetBool("cache.enabled")
	}
	if viper.IsSet("cache.dir") {
		dir, err := homedir.Expand(viper.GetString("cache.dir"))
		if err != nil {
			return cfg, fmt.Errorf("cache dir: %w", err)
		}
		cfg.Cache.Dir = dir
	}
	if viper.IsSet("cache.memory_mb") {
		cfg.Cache.MemoryCapacity = viper.GetInt64("cache.memory_mb") * megabyte
	}
	if viper.IsSet("cache.disk_mb") {
		cfg.Cache.DiskCapacity = viper.GetInt64("cache.disk_mb") * megabyte
	}
	if viper.IsSet("cache.compression_level") {
		cfg.Cache.CompressionLevel = viper.GetInt("cache.compression_level")
	}
	setDuration("cache.ttl", &cfg.Cache.TTL)

	// Speech and display
	if viper.IsSet("speech.strip_markdown") {
		cfg.Speech.StripMarkdown = viper.GetBool("speech.strip_markdown")
	}
	if viper.IsSet("mute") {
		cfg.Mute = viper.GetBool("mute")
	}
	if viper.IsSet("theme") {
		cfg.Theme = viper.GetString("theme")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadElevenLabs(cfg Config) client.ElevenLabsConfig {
	el := cfg.ElevenLabs

	if viper.IsSet("elevenlabs.url") {
		el.BaseURL = viper.GetString("elevenlabs.url")
	}
	if viper.IsSet("elevenlabs.api_key") {
		el.APIKey = viper.GetString("elevenlabs.api_key")
	}
	if viper.IsSet("elevenlabs.voice_id") {
		el.VoiceID = viper.GetString("elevenlabs.voice_id")
	}
	if viper.IsSet("elevenlabs.model_id") {
		el.ModelID = viper.GetString("elevenlabs.model_id")
	}
	if viper.IsSet("elevenlabs.output_format") {
		el.OutputFormat = viper.GetString("elevenlabs.output_format")
	}
	if viper.IsSet("elevenlabs.stability") {
		el.Stability = viper.GetFloat64("elevenlabs.stability")
	}
	if viper.IsSet("elevenlabs.similarity_boost") {
		el.SimilarityBoost = viper.GetFloat64("elevenlabs.similarity_boost")
	}
	if viper.IsSet("elevenlabs.style") {
		el.Style = viper.GetFloat64("elevenlabs.style")
	}
	if viper.IsSet("elevenlabs.speaker_boost") {
		el.UseSpeakerBoost = viper.GetBool("elevenlabs.speaker_boost")
	}
	if viper.IsSet("elevenlabs.chunk_schedule") {
		el.ChunkLengthSchedule = viper.GetIntSlice("elevenlabs.chunk_schedule")
	}
	setDuration("elevenlabs.handshake_timeout", &el.HandshakeTimeout)

	return el
}

func loadPiper(cfg Config) (client.PiperConfig, error) {
	p := cfg.Piper

	if viper.IsSet("piper.binary") {
		p.Binary = viper.GetString("piper.binary")
	}
	for key, dst := range map[string]*string{
		"piper.model":  &p.ModelPath,
		"piper.config": &p.ConfigPath,
	} {
		if !viper.IsSet(key) || viper.GetString(key) == "" {
			continue
		}
		path, err := homedir.Expand(viper.GetString(key))
		if err != nil {
			return p, fmt.Errorf("%s: %w", key, err)
		}
		*dst = path
	}
	if viper.IsSet("piper.speaker") {
		p.Speaker = viper.GetString("piper.speaker")
	}
	if viper.IsSet("piper.length_scale") {
		p.LengthScale = viper.GetFloat64("piper.length_scale")
	}
	setDuration("piper.timeout", &p.Timeout)

	return p, nil
}

// setDuration parses key into dst when set. Unparseable values keep the default.
func setDuration(key string, dst *time.Duration) {
	if !viper.IsSet(key) {
		return
	}
	if d, err := time.ParseDuration(viper.GetString(key)); err == nil {
		*dst = d
	}
}

// SetDefaults registers the default values with viper.
func SetDefaults() {
	defaults := DefaultConfig()

	viper.SetDefault("server.url", defaults.Server.BaseURL)
	viper.SetDefault("server.chat_path", defaults.Server.ChatPath)
	viper.SetDefault("server.tts_path", defaults.Server.TTSPath)
	viper.SetDefault("server.timeout", defaults.Server.Timeout.String())

	viper.SetDefault("audio.backend", string(defaults.Backend))
	viper.SetDefault("audio.encoding", string(defaults.Audio.Encoding))
	viper.SetDefault("audio.sample_rate", defaults.Audio.SampleRate)
	viper.SetDefault("audio.channels", defaults.Audio.Channels)
	viper.SetDefault("audio.volume", defaults.Audio.Volume)
	viper.SetDefault("audio.buffer", defaults.Audio.BufferSize.String())

	viper.SetDefault("synth.transport", defaults.Transport)
	viper.SetDefault("synth.requests_per_minute", defaults.Server.RequestsPerMinute)

	viper.SetDefault("elevenlabs.url", defaults.ElevenLabs.BaseURL)
	viper.SetDefault("elevenlabs.model_id", defaults.ElevenLabs.ModelID)
	viper.SetDefault("elevenlabs.output_format", defaults.ElevenLabs.OutputFormat)
	viper.SetDefault("elevenlabs.stability", defaults.ElevenLabs.Stability)
	viper.SetDefault("elevenlabs.similarity_boost", defaults.ElevenLabs.SimilarityBoost)
	viper.SetDefault("elevenlabs.style", defaults.ElevenLabs.Style)
	viper.SetDefault("elevenlabs.speaker_boost", defaults.ElevenLabs.UseSpeakerBoost)
	viper.SetDefault("elevenlabs.chunk_schedule", defaults.ElevenLabs.ChunkLengthSchedule)
	viper.SetDefault("elevenlabs.handshake_timeout", defaults.ElevenLabs.HandshakeTimeout.String())

	viper.SetDefault("piper.binary", defaults.Piper.Binary)
	viper.SetDefault("piper.length_scale", defaults.Piper.LengthScale)
	viper.SetDefault("piper.timeout", defaults.Piper.Timeout.String())

	viper.SetDefault("cache.enabled", defaults.Cache.Enabled)
	viper.SetDefault("cache.memory_mb", defaults.Cache.MemoryCapacity/megabyte)
	viper.SetDefault("cache.disk_mb", defaults.Cache.DiskCapacity/megabyte)
	viper.SetDefault("cache.compression_level", defaults.Cache.CompressionLevel)
	viper.SetDefault("cache.ttl", defaults.Cache.TTL.String())

	viper.SetDefault("speech.strip_markdown", defaults.Speech.StripMarkdown)
	viper.SetDefault("mute", defaults.Mute)
	viper.SetDefault("theme", defaults.Theme)
}
