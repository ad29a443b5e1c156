//go:build nocgo

package audio

import (
	"context"
	"fmt"
)

// OtoDevice is a stand-in for builds without cgo. It never opens a device.
type OtoDevice struct {
	config Config
}

var _ StreamingDevice = (*OtoDevice)(nil)

// NewOtoDevice always fails with ErrAudioUnavailable, so callers fall back
// to text-only chat.
func NewOtoDevice(config Config) (*OtoDevice, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return nil, ErrAudioUnavailable
}

func (d *OtoDevice) Config() Config { return d.config }

func (d *OtoDevice) SetVolume(float64) error { return ErrAudioUnavailable }

func (d *OtoDevice) Volume() float64 { return 0 }

func (d *OtoDevice) PlayBuffer(context.Context, []byte) error {
	return ErrAudioUnavailable
}

func (d *OtoDevice) OpenSink() (Sink, error) {
	return nil, ErrAudioUnavailable
}
