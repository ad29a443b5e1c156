package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/kbchat/kbchat/internal/tts"
)

// Synthesizer serves repeated sentences from a Store and records fresh
// synthesis streams as they are read. A stream is stored only when it was
// read to a clean end.
type Synthesizer struct {
	next   tts.Synthesizer
	store  *Store
	voice  string
	logger *log.Logger
}

var _ tts.Synthesizer = (*Synthesizer)(nil)

// NewSynthesizer wraps next. voice scopes keys so different voices never
// share clips.
func NewSynthesizer(next tts.Synthesizer, store *Store, voice string, logger *log.Logger) *Synthesizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Synthesizer{next: next, store: store, voice: voice, logger: logger}
}

// Synthesize implements tts.Synthesizer.
func (s *Synthesizer) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	key := Key(s.voice, text)

	if clip, level, ok := s.store.Get(key); ok {
		s.logger.Debug("clip cache hit", "level", level, "bytes", len(clip))
		return io.NopCloser(bytes.NewReader(clip)), nil
	}

	body, err := s.next.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}

	return &recordingBody{
		ReadCloser: body,
		limit:      s.store.config.MemoryCapacity,
		save: func(clip []byte) {
			if err := s.store.Put(key, clip); err != nil {
				s.logger.Warn("failed to cache clip", "err", err)
			}
		},
	}, nil
}

// recordingBody tees a stream into memory and saves it on io.EOF.
type recordingBody struct {
	io.ReadCloser
	buf   bytes.Buffer
	limit int64
	save  func(clip []byte)

	once   sync.Once
	broken bool
}

func (r *recordingBody) Read(p []byte) (int, error) {
	n, err := r.ReadCloser.Read(p)
	if n > 0 && !r.broken {
		if int64(r.buf.Len()+n) > r.limit {
			r.broken = true
			r.buf = bytes.Buffer{}
		} else {
			r.buf.Write(p[:n])
		}
	}

	switch {
	case errors.Is(err, io.EOF):
		if !r.broken && r.buf.Len() > 0 {
			r.once.Do(func() { r.save(r.buf.Bytes()) })
		}
	case err != nil:
		r.broken = true
	}
	return n, err
}
