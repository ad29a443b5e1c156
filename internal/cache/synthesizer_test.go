package cache

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kbchat/kbchat/internal/tts"
)

type countingSynth struct {
	calls int
	audio string
	err   error
}

func (c *countingSynth) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return io.NopCloser(strings.NewReader(c.audio + ":" + text)), nil
}

// brokenStream fails after its data.
type brokenStream struct{ data string }

func (b *brokenStream) Read(p []byte) (int, error) {
	if b.data == "" {
		return 0, errors.New("connection reset")
	}
	n := copy(p, b.data)
	b.data = b.data[n:]
	return n, nil
}

func (b *brokenStream) Close() error { return nil }

func readAll(t *testing.T, s tts.Synthesizer, text string) string {
	t.Helper()
	body, err := s.Synthesize(context.Background(), text)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	defer body.Close()
	data, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	return string(data)
}

func TestSynthesizer_CachesCompleteStreams(t *testing.T) {
	store, _ := Open(testConfig(t), nil)
	defer store.Close()

	next := &countingSynth{audio: "mp3"}
	s := NewSynthesizer(next, store, "voice-1", nil)

	first := readAll(t, s, "Hello there.")
	second := readAll(t, s, "Hello there.")

	if first != second || first != "mp3:Hello there." {
		t.Errorf("first=%q second=%q", first, second)
	}
	if next.calls != 1 {
		t.Errorf("synthesis calls = %d, want 1", next.calls)
	}

	readAll(t, s, "How are you?")
	if next.calls != 2 {
		t.Errorf("different sentence should miss, calls = %d", next.calls)
	}
}

func TestSynthesizer_DoesNotCacheBrokenStreams(t *testing.T) {
	store, _ := Open(testConfig(t), nil)
	defer store.Close()

	calls := 0
	next := tts.SynthesizerFunc(func(ctx context.Context, text string) (io.ReadCloser, error) {
		calls++
		return &brokenStream{data: "partial"}, nil
	})
	s := NewSynthesizer(next, store, "v", nil)

	for i := 0; i < 2; i++ {
		body, _ := s.Synthesize(context.Background(), "Hi.")
		if _, err := io.ReadAll(body); err == nil {
			t.Fatal("expected stream error")
		}
		body.Close()
	}
	if calls != 2 {
		t.Errorf("broken stream was cached, calls = %d", calls)
	}
}

func TestSynthesizer_PassesErrorsThrough(t *testing.T) {
	store, _ := Open(testConfig(t), nil)
	defer store.Close()

	want := tts.TransportError("post /tts_stream", errors.New("refused"))
	s := NewSynthesizer(&countingSynth{err: want}, store, "v", nil)

	if _, err := s.Synthesize(context.Background(), "Hi."); !errors.Is(err, want) {
		t.Errorf("expected passthrough error, got %v", err)
	}
}

func TestSynthesizer_VoiceScopesKeys(t *testing.T) {
	store, _ := Open(testConfig(t), nil)
	defer store.Close()

	next := &countingSynth{audio: "a"}
	readAll(t, NewSynthesizer(next, store, "alice", nil), "Hi.")
	readAll(t, NewSynthesizer(next, store, "bob", nil), "Hi.")

	if next.calls != 2 {
		t.Errorf("voices shared a clip, calls = %d", next.calls)
	}
}

func TestKey(t *testing.T) {
	composed := "Caf\u00e9."
	decomposed := "Cafe\u0301."
	if !utf8.ValidString(decomposed) {
		t.Fatal("bad fixture")
	}

	if Key("v", composed) != Key("v", decomposed) {
		t.Error("normalization forms should share a key")
	}
	if Key("v", "Hello  there.") != Key("v", " Hello there. ") {
		t.Error("whitespace differences should share a key")
	}
	if Key("v", "Hello.") == Key("w", "Hello.") {
		t.Error("voices should not share keys")
	}
	if Key("v", "Hello.") == Key("v", "Hello!") {
		t.Error("different text should not share keys")
	}
	if len(Key("v", "x")) != 32 {
		t.Errorf("key length = %d", len(Key("v", "x")))
	}
}
