package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/kbchat/kbchat/internal/tts"
)

// PlaybackQueue plays sentences in FIFO order, never more than one at a
// time. Enqueue never blocks on playback: the first sentence that arrives
// while the queue is idle starts a drain goroutine, later arrivals are
// appended behind it.
type PlaybackQueue struct {
	backend tts.Backend
	mute    *Mute
	logger  *log.Logger

	// Synchronization
	mu       sync.Mutex
	pending  []string
	draining bool
	current  string
	idle     chan struct{} // closed while no drain is running

	// State
	closed bool
	stats  Stats

	// Cancels the in-flight utterance on Close
	ctx    context.Context
	cancel context.CancelFunc
}

// Stats tracks queue activity
type Stats struct {
	TotalEnqueued int64
	TotalMuted    int64 // ignored because speech was muted
	TotalPlayed   int64
	TotalFailed   int64 // dropped after a synthesis or playback error
	TotalDropped  int64 // discarded by Close before playing
	CurrentSize   int
	PeakSize      int
	LastEnqueue   time.Time
	LastError     error
}

// NewPlaybackQueue creates an idle queue that plays through backend.
// mute may be shared with other components; nil means never muted.
func NewPlaybackQueue(backend tts.Backend, mute *Mute, logger *log.Logger) *PlaybackQueue {
	if mute == nil {
		mute = &Mute{}
	}
	if logger == nil {
		logger = log.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)

	return &PlaybackQueue{
		backend: backend,
		mute:    mute,
		logger:  logger,
		idle:    idle,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue schedules sentence for playback. It reports false, doing nothing,
// when speech is muted at call time or the queue is closed.
func (q *PlaybackQueue) Enqueue(sentence string) bool {
	if q.mute.Muted() {
		q.mu.Lock()
		q.stats.TotalMuted++
		q.mu.Unlock()
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.pending = append(q.pending, sentence)
	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = time.Now()
	if len(q.pending) > q.stats.PeakSize {
		q.stats.PeakSize = len(q.pending)
	}

	// Start draining if idle
	if !q.draining {
		q.draining = true
		q.idle = make(chan struct{})
		go q.drain()
	}

	return true
}

// drain plays pending sentences until none are left.
func (q *PlaybackQueue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 || q.closed {
			q.draining = false
			q.current = ""
			close(q.idle)
			q.mu.Unlock()
			return
		}
		sentence := q.pending[0]
		q.pending[0] = ""
		q.pending = q.pending[1:]
		q.current = sentence
		q.mu.Unlock()

		err := q.play(sentence)

		q.mu.Lock()
		if err != nil {
			q.stats.TotalFailed++
			q.stats.LastError = err
		} else {
			q.stats.TotalPlayed++
		}
		q.mu.Unlock()

		if err != nil && q.ctx.Err() == nil {
			q.logger.Warn("dropping utterance", "sentence", sentence, "code", tts.CodeOf(err), "err", err)
		}
	}
}

// play runs one utterance. A panicking backend counts as a failure so the
// queue cannot get stuck draining.
func (q *PlaybackQueue) play(sentence string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = tts.PlaybackError("backend panic", fmt.Errorf("%v", r))
		}
	}()
	return q.backend.Play(q.ctx, sentence)
}

// Len returns the number of sentences waiting behind the current one.
func (q *PlaybackQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Playing returns the sentence being played, if any.
func (q *PlaybackQueue) Playing() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current, q.draining && q.current != ""
}

// Draining reports whether a drain is in progress.
func (q *PlaybackQueue) Draining() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.draining
}

// Mute returns the shared mute switch.
func (q *PlaybackQueue) Mute() *Mute {
	return q.mute
}

// Stats returns a snapshot of queue statistics.
func (q *PlaybackQueue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := q.stats
	stats.CurrentSize = len(q.pending)
	return stats
}

// Wait blocks until the queue is idle or ctx is done.
func (q *PlaybackQueue) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting sentences, discards pending ones, cancels the
// utterance in flight and waits for the drain goroutine to exit.
func (q *PlaybackQueue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.stats.TotalDropped += int64(len(q.pending))
	q.pending = nil
	idle := q.idle
	q.mu.Unlock()

	q.cancel()
	<-idle
	return nil
}
