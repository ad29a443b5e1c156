// Package client talks to the chat server: the generation endpoint that
// streams reply text and the synthesis endpoint that streams audio. It also
// provides a direct ElevenLabs stream-input synthesizer and an offline one
// that runs piper.
package client
