package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"

	"github.com/kbchat/kbchat/internal/audio"
	"github.com/kbchat/kbchat/internal/cache"
	"github.com/kbchat/kbchat/internal/chat"
	"github.com/kbchat/kbchat/internal/client"
	"github.com/kbchat/kbchat/internal/config"
	"github.com/kbchat/kbchat/internal/queue"
	"github.com/kbchat/kbchat/internal/tts"
)

// app holds the components shared by every command.
type app struct {
	cfg    config.Config
	logger *log.Logger

	client *client.Client
	store  *cache.Store
	queue  *queue.PlaybackQueue
	mute   *queue.Mute
}

// loadConfig reads the configuration and fills in the cache directory.
func loadConfig() (config.Config, error) {
	cfg, err := config.LoadFromViper()
	if err != nil {
		return cfg, err
	}
	if cfg.Cache.Dir == "" {
		dir, err := gap.NewScope(gap.User, "kbchat").CacheDir()
		if err != nil {
			return cfg, fmt.Errorf("unable to find cache directory: %w", err)
		}
		cfg.Cache.Dir = filepath.Join(dir, "clips")
	}
	return cfg, nil
}

// newApp wires the generation client and, when speech is wanted and an
// audio device is available, the playback pipeline.
func newApp(speech bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:    cfg,
		logger: log.Default(),
		mute:   queue.NewMute(cfg.Mute),
	}

	a.client, err = client.New(cfg.Server, a.logger)
	if err != nil {
		return nil, err
	}

	if !speech {
		return a, nil
	}

	synth, err := a.synthesizer()
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	device, err := audio.NewOtoDevice(cfg.Audio)
	if err != nil {
		// Chat still works without sound
		a.logger.Warn("audio unavailable, speech disabled", "err", err)
		return a, nil
	}

	backend, err := tts.SelectBackend(cfg.Backend, device, synth, a.logger)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("unable to select playback backend: %w", err)
	}
	a.logger.Info("speech ready",
		"backend", backend.Name(),
		"transport", cfg.Transport,
		"encoding", cfg.Audio.Encoding,
		"cache", cfg.Cache.Enabled,
	)

	a.queue = queue.NewPlaybackQueue(backend, a.mute, a.logger)
	return a, nil
}

func (a *app) synthesizer() (tts.Synthesizer, error) {
	var synth tts.Synthesizer = a.client

	switch a.cfg.Transport {
	case config.TransportElevenLabs:
		el, err := client.NewElevenLabsSynthesizer(a.cfg.ElevenLabs, a.logger)
		if err != nil {
			return nil, err
		}
		synth = el
	case config.TransportPiper:
		piper, err := client.NewPiperSynthesizer(a.cfg.Piper, a.logger)
		if err != nil {
			return nil, err
		}
		synth = piper
	}

	if !a.cfg.Cache.Enabled {
		return synth, nil
	}

	store, err := cache.Open(a.cfg.Cache.Config, a.logger)
	if err != nil {
		// A broken cache only costs latency
		a.logger.Warn("clip cache unavailable", "dir", a.cfg.Cache.Dir, "err", err)
		return synth, nil
	}
	a.store = store
	return cache.NewSynthesizer(synth, store, a.cfg.Voice(), a.logger), nil
}

// controller returns a chat controller rendering to display.
func (a *app) controller(display chat.Display) *chat.Controller {
	var speaker chat.Speaker
	if a.queue != nil {
		speaker = a.queue
	}
	return chat.NewController(a.client, speaker, display, chat.Options{
		StripMarkdown: a.cfg.Speech.StripMarkdown,
		Logger:        a.logger,
	})
}

// Close stops playback and flushes the cache.
func (a *app) Close() error {
	var errs []error
	if a.queue != nil {
		errs = append(errs, a.queue.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	return errors.Join(errs...)
}
