package audio

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MockDevice implements StreamingDevice for testing purposes.
// It simulates playback without producing sound and records every utterance.
type MockDevice struct {
	mu sync.Mutex

	sessions  []*MockSession
	active    int
	maxActive int

	// Test configuration
	playDuration time.Duration
	failWith     func(payload []byte) error
	callbacks    MockCallbacks
}

// MockSession describes one utterance played on a MockDevice.
type MockSession struct {
	Payload           []byte
	Streamed          bool
	Appends           int
	AppendsBeforePlay int // -1 until Play is called
	Ended             bool
	Released          bool
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnStart func(payload []byte)
	OnEnd   func(payload []byte)
}

var _ StreamingDevice = (*MockDevice)(nil)

// NewMockDevice creates a mock device with instant playback.
func NewMockDevice() *MockDevice {
	return &MockDevice{}
}

// NewMockDeviceWithCallbacks creates a mock device with custom callbacks.
func NewMockDeviceWithCallbacks(callbacks MockCallbacks) *MockDevice {
	md := NewMockDevice()
	md.callbacks = callbacks
	return md
}

// SetPlayDuration sets how long each simulated utterance plays.
func (md *MockDevice) SetPlayDuration(d time.Duration) {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.playDuration = d
}

// SetFailure makes playback of matching payloads fail with the returned
// error. A nil func or nil result means success.
func (md *MockDevice) SetFailure(fn func(payload []byte) error) {
	md.mu.Lock()
	defer md.mu.Unlock()
	md.failWith = fn
}

// BufferedOnly returns a view of the device without the incremental-append
// capability.
func (md *MockDevice) BufferedOnly() Device {
	return bufferedOnly{md}
}

type bufferedOnly struct{ md *MockDevice }

func (b bufferedOnly) PlayBuffer(ctx context.Context, payload []byte) error {
	return b.md.PlayBuffer(ctx, payload)
}

// PlayBuffer simulates playing a complete payload.
func (md *MockDevice) PlayBuffer(ctx context.Context, payload []byte) error {
	if len(payload) == 0 {
		return ErrEmptyPayload
	}

	session := &MockSession{
		Payload:           append([]byte(nil), payload...),
		Appends:           1,
		AppendsBeforePlay: 1,
	}
	md.begin(session)
	defer md.release(session)

	return md.play(ctx, session)
}

// OpenSink opens a simulated incremental sink.
func (md *MockDevice) OpenSink() (Sink, error) {
	session := &MockSession{Streamed: true, AppendsBeforePlay: -1}
	md.begin(session)
	return &mockSink{md: md, session: session}, nil
}

func (md *MockDevice) begin(session *MockSession) {
	md.mu.Lock()
	defer md.mu.Unlock()

	md.sessions = append(md.sessions, session)
	md.active++
	if md.active > md.maxActive {
		md.maxActive = md.active
	}
}

func (md *MockDevice) release(session *MockSession) {
	md.mu.Lock()
	defer md.mu.Unlock()

	if session.Released {
		return
	}
	session.Released = true
	md.active--
}

func (md *MockDevice) play(ctx context.Context, session *MockSession) error {
	md.mu.Lock()
	payload := append([]byte(nil), session.Payload...)
	duration := md.playDuration
	failWith := md.failWith
	callbacks := md.callbacks
	md.mu.Unlock()

	if callbacks.OnStart != nil {
		callbacks.OnStart(payload)
	}

	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	if failWith != nil {
		if err := failWith(payload); err != nil {
			return err
		}
	}

	md.mu.Lock()
	session.Ended = true
	md.mu.Unlock()

	if callbacks.OnEnd != nil {
		callbacks.OnEnd(payload)
	}
	return nil
}

// Test helper methods

// Sessions returns a snapshot of all recorded utterances in open order.
func (md *MockDevice) Sessions() []MockSession {
	md.mu.Lock()
	defer md.mu.Unlock()

	out := make([]MockSession, len(md.sessions))
	for i, s := range md.sessions {
		out[i] = *s
		out[i].Payload = append([]byte(nil), s.Payload...)
	}
	return out
}

// Played returns the payloads of utterances that ended naturally, in order.
func (md *MockDevice) Played() []string {
	md.mu.Lock()
	defer md.mu.Unlock()

	var out []string
	for _, s := range md.sessions {
		if s.Ended {
			out = append(out, string(s.Payload))
		}
	}
	return out
}

// Active returns how many utterances hold the device right now.
func (md *MockDevice) Active() int {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.active
}

// MaxActive returns the highest number of utterances that ever held the
// device at once.
func (md *MockDevice) MaxActive() int {
	md.mu.Lock()
	defer md.mu.Unlock()
	return md.maxActive
}

// mockSink records appends into its session.
type mockSink struct {
	md      *MockDevice
	session *MockSession
	eos     bool
	closed  bool
}

func (s *mockSink) Append(chunk []byte) error {
	s.md.mu.Lock()
	defer s.md.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if s.eos {
		return errors.New("append after end of stream")
	}
	s.session.Payload = append(s.session.Payload, chunk...)
	s.session.Appends++
	return nil
}

func (s *mockSink) Play() error {
	s.md.mu.Lock()
	defer s.md.mu.Unlock()

	if s.closed {
		return ErrSinkClosed
	}
	if s.session.AppendsBeforePlay < 0 {
		s.session.AppendsBeforePlay = s.session.Appends
	}
	return nil
}

func (s *mockSink) EndOfStream() {
	s.md.mu.Lock()
	s.eos = true
	s.md.mu.Unlock()
}

func (s *mockSink) Wait(ctx context.Context) error {
	s.md.mu.Lock()
	started := s.session.AppendsBeforePlay >= 0
	s.md.mu.Unlock()

	if !started {
		return ErrNotStarted
	}
	return s.md.play(ctx, s.session)
}

func (s *mockSink) Close() error {
	s.md.mu.Lock()
	s.closed = true
	s.md.mu.Unlock()

	s.md.release(s.session)
	return nil
}
