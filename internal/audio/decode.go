package audio

import (
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// decoder turns an encoded stream into the device's native PCM. The mp3
// decoder is built on first Read because constructing it reads the first
// frame header, which may not have arrived yet when the player is created.
type decoder struct {
	src        io.Reader
	encoding   Encoding
	sampleRate int

	pcm io.Reader
	err error
}

func newDecoder(src io.Reader, encoding Encoding, sampleRate int) *decoder {
	return &decoder{src: src, encoding: encoding, sampleRate: sampleRate}
}

func (d *decoder) Read(p []byte) (int, error) {
	if d.pcm == nil && d.err == nil {
		d.pcm, d.err = d.open()
	}
	if d.err != nil {
		return 0, d.err
	}
	return d.pcm.Read(p)
}

func (d *decoder) open() (io.Reader, error) {
	switch d.encoding {
	case EncodingPCM:
		return d.src, nil
	case EncodingMP3:
		dec, err := mp3.NewDecoder(d.src)
		if err != nil {
			return nil, fmt.Errorf("decode mp3: %w", err)
		}
		if dec.SampleRate() != d.sampleRate {
			return nil, fmt.Errorf("%w: stream is %d Hz, device is %d Hz",
				ErrSampleRateMismatch, dec.SampleRate(), d.sampleRate)
		}
		return dec, nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", d.encoding)
	}
}
