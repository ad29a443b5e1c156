// Package chat drives one conversation turn: it posts the user's message,
// shows the reply as it streams in, and hands each completed sentence to
// the playback queue while the rest of the reply is still arriving.
package chat
