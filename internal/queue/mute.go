package queue

import "sync/atomic"

// Mute is the user-controlled speech switch shared between the UI and the
// playback queue. The zero value is unmuted.
type Mute struct {
	muted atomic.Bool
}

// NewMute returns a Mute with the given initial state.
func NewMute(muted bool) *Mute {
	m := &Mute{}
	m.muted.Store(muted)
	return m
}

// Muted reports whether speech is currently muted.
func (m *Mute) Muted() bool {
	return m.muted.Load()
}

// Set sets the mute state.
func (m *Mute) Set(muted bool) {
	m.muted.Store(muted)
}

// Toggle flips the mute state and returns the new value.
func (m *Mute) Toggle() bool {
	for {
		old := m.muted.Load()
		if m.muted.CompareAndSwap(old, !old) {
			return !old
		}
	}
}
