package chat

import (
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/kbchat/kbchat/internal/tts"
)

type fakeDisplay struct {
	mu      sync.Mutex
	entries []Entry
	updates []string
	loading []bool
}

func (d *fakeDisplay) AddEntry(e Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, e)
}

func (d *fakeDisplay) UpdateAssistant(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.updates = append(d.updates, text)
}

func (d *fakeDisplay) SetLoading(loading bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loading = append(d.loading, loading)
}

// reply returns the assistant text as the display currently shows it.
func (d *fakeDisplay) reply() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.updates) > 0 {
		return d.updates[len(d.updates)-1]
	}
	for i := len(d.entries) - 1; i >= 0; i-- {
		if d.entries[i].Role == RoleAssistant {
			return d.entries[i].Text
		}
	}
	return ""
}

type fakeSpeaker struct {
	mu        sync.Mutex
	muted     bool
	sentences []string
}

func (s *fakeSpeaker) Enqueue(sentence string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.muted {
		return false
	}
	s.sentences = append(s.sentences, sentence)
	return true
}

func (s *fakeSpeaker) spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sentences...)
}

// chunkedBody returns one chunk per Read, then err (io.EOF by default).
type chunkedBody struct {
	chunks [][]byte
	err    error
	closed bool
}

func (b *chunkedBody) Read(p []byte) (int, error) {
	if len(b.chunks) == 0 {
		if b.err != nil {
			return 0, b.err
		}
		return 0, io.EOF
	}
	n := copy(p, b.chunks[0])
	if n < len(b.chunks[0]) {
		b.chunks[0] = b.chunks[0][n:]
	} else {
		b.chunks = b.chunks[1:]
	}
	return n, nil
}

func (b *chunkedBody) Close() error {
	b.closed = true
	return nil
}

type fakeGenerator struct {
	body      *chunkedBody
	err       error
	calls     int
	text      string
	sessionID string
}

func (g *fakeGenerator) Generate(_ context.Context, text, sessionID string) (io.ReadCloser, error) {
	g.calls++
	g.text = text
	g.sessionID = sessionID
	if g.err != nil {
		return nil, g.err
	}
	return g.body, nil
}

func textChunks(fragments ...string) [][]byte {
	chunks := make([][]byte, len(fragments))
	for i, f := range fragments {
		chunks[i] = []byte(f)
	}
	return chunks
}

func newTestController(gen Generator, speaker Speaker, display Display) *Controller {
	return NewController(gen, speaker, display, Options{SessionID: "session-1"})
}

func TestSendSpeaksSentencesAsTheyComplete(t *testing.T) {
	gen := &fakeGenerator{body: &chunkedBody{chunks: textChunks("Hel", "lo there. How ", "are you?")}}
	speaker := &fakeSpeaker{}
	display := &fakeDisplay{}

	c := newTestController(gen, speaker, display)
	if err := c.Send(context.Background(), "  hi  "); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if gen.text != "hi" {
		t.Errorf("generator got %q, want trimmed input", gen.text)
	}
	if gen.sessionID != "session-1" {
		t.Errorf("session id = %q", gen.sessionID)
	}
	if !gen.body.closed {
		t.Error("reply stream not closed")
	}

	want := []string{"Hello there.", "How are you?"}
	if got := speaker.spoken(); !reflect.DeepEqual(got, want) {
		t.Errorf("spoken = %q, want %q", got, want)
	}
	if got := display.reply(); got != "Hello there. How are you?" {
		t.Errorf("display shows %q", got)
	}
	if !reflect.DeepEqual(display.loading, []bool{true, false}) {
		t.Errorf("loading transitions = %v", display.loading)
	}
	if display.entries[0].Role != RoleUser || display.entries[0].Text != "hi" {
		t.Errorf("first entry = %+v", display.entries[0])
	}
}

func TestSendFlushesResidue(t *testing.T) {
	gen := &fakeGenerator{body: &chunkedBody{chunks: textChunks("Just thinking")}}
	speaker := &fakeSpeaker{}

	c := newTestController(gen, speaker, &fakeDisplay{})
	if err := c.Send(context.Background(), "ponder"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := speaker.spoken(); !reflect.DeepEqual(got, []string{"Just thinking"}) {
		t.Errorf("spoken = %q", got)
	}
}

func TestSendDisplayUpdatesAreMonotonic(t *testing.T) {
	gen := &fakeGenerator{body: &chunkedBody{chunks: textChunks("One", " two", ". Three", "!")}}
	display := &fakeDisplay{}

	c := newTestController(gen, &fakeSpeaker{}, display)
	if err := c.Send(context.Background(), "count"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	prev := "One"
	for _, u := range display.updates {
		if !strings.HasPrefix(u, prev) {
			t.Fatalf("update %q does not extend %q", u, prev)
		}
		prev = u
	}
	if prev != "One two. Three!" {
		t.Errorf("final reply %q", prev)
	}

	assistants := 0
	for _, e := range display.entries {
		if e.Role == RoleAssistant {
			assistants++
		}
	}
	if assistants != 1 {
		t.Errorf("assistant entries = %d, want 1", assistants)
	}
}

func TestSendCarriesSplitRunes(t *testing.T) {
	reply := []byte("Caffè? Sì.")
	// Split inside both two-byte characters.
	e := strings.Index(string(reply), "è")
	i := strings.Index(string(reply), "ì")
	chunks := [][]byte{reply[:e+1], reply[e+1 : i+1], reply[i+1:]}

	gen := &fakeGenerator{body: &chunkedBody{chunks: chunks}}
	speaker := &fakeSpeaker{}
	display := &fakeDisplay{}

	c := newTestController(gen, speaker, display)
	if err := c.Send(context.Background(), "ciao"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := display.reply(); got != "Caffè? Sì." {
		t.Errorf("display shows %q", got)
	}
	for _, u := range display.updates {
		if strings.ContainsRune(u, '�') {
			t.Errorf("replacement character in update %q", u)
		}
	}
	want := []string{"Caffè?", "Sì."}
	if got := speaker.spoken(); !reflect.DeepEqual(got, want) {
		t.Errorf("spoken = %q, want %q", got, want)
	}
}

func TestSendStreamError(t *testing.T) {
	broken := errors.New("connection reset")
	gen := &fakeGenerator{body: &chunkedBody{
		chunks: textChunks("Done. And then"),
		err:    broken,
	}}
	speaker := &fakeSpeaker{}
	display := &fakeDisplay{}

	c := newTestController(gen, speaker, display)
	err := c.Send(context.Background(), "go")
	if !tts.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !errors.Is(err, broken) {
		t.Errorf("cause lost: %v", err)
	}

	want := []string{"Done.", "And then"}
	if got := speaker.spoken(); !reflect.DeepEqual(got, want) {
		t.Errorf("spoken = %q, want %q", got, want)
	}
	if !reflect.DeepEqual(display.loading, []bool{true, false}) {
		t.Errorf("loading transitions = %v", display.loading)
	}
	if last, ok := c.Transcript().Last(RoleAssistant); !ok || last.Text != "Done. And then" {
		t.Errorf("partial reply not kept: %+v", last)
	}
}

func TestSendGenerationFailure(t *testing.T) {
	failure := tts.TransportError("request generation", errors.New("refused"))
	gen := &fakeGenerator{err: failure}
	speaker := &fakeSpeaker{}
	display := &fakeDisplay{}

	c := newTestController(gen, speaker, display)
	if err := c.Send(context.Background(), "hello"); !errors.Is(err, failure) {
		t.Fatalf("expected generation error, got %v", err)
	}
	if len(speaker.spoken()) != 0 {
		t.Errorf("nothing should be spoken, got %q", speaker.spoken())
	}
	if !reflect.DeepEqual(display.loading, []bool{true, false}) {
		t.Errorf("loading transitions = %v", display.loading)
	}
	if c.Transcript().Len() != 1 {
		t.Errorf("transcript = %+v", c.Transcript().Entries())
	}
}

func TestSendEmptyInput(t *testing.T) {
	gen := &fakeGenerator{body: &chunkedBody{}}
	display := &fakeDisplay{}

	c := newTestController(gen, &fakeSpeaker{}, display)
	for _, input := range []string{"", "   ", "\n\t"} {
		if err := c.Send(context.Background(), input); err != nil {
			t.Errorf("Send(%q): %v", input, err)
		}
	}

	if gen.calls != 0 {
		t.Errorf("generator called %d times", gen.calls)
	}
	if len(display.entries) != 0 || len(display.loading) != 0 {
		t.Errorf("display touched: %+v %v", display.entries, display.loading)
	}
}

func TestSendMutedSpeakerStillDisplays(t *testing.T) {
	gen := &fakeGenerator{body: &chunkedBody{chunks: textChunks("Quiet please.")}}
	speaker := &fakeSpeaker{muted: true}
	display := &fakeDisplay{}

	c := newTestController(gen, speaker, display)
	if err := c.Send(context.Background(), "shh"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(speaker.spoken()) != 0 {
		t.Errorf("muted speaker accepted %q", speaker.spoken())
	}
	if display.reply() != "Quiet please." {
		t.Errorf("display shows %q", display.reply())
	}
}

func TestSendStripsMarkdown(t *testing.T) {
	gen := &fakeGenerator{body: &chunkedBody{chunks: textChunks("This is **very** important.")}}
	speaker := &fakeSpeaker{}
	display := &fakeDisplay{}

	c := NewController(gen, speaker, display, Options{StripMarkdown: true})
	if err := c.Send(context.Background(), "stress it"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	if got := speaker.spoken(); !reflect.DeepEqual(got, []string{"This is very important."}) {
		t.Errorf("spoken = %q", got)
	}
	if display.reply() != "This is **very** important." {
		t.Errorf("display should keep markup, shows %q", display.reply())
	}
}

func TestSendShowsButSkipsWordlessSentences(t *testing.T) {
	chunks := []string{"Wait... what?! ", `He said "hi." `, "Sure thing. 🙂"}
	gen := &fakeGenerator{body: &chunkedBody{chunks: textChunks(chunks...)}}
	speaker := &fakeSpeaker{}
	display := &fakeDisplay{}

	c := newTestController(gen, speaker, display)
	if err := c.Send(context.Background(), "go on"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	want := []string{"Wait...", "what?!", `He said "hi.`, `" Sure thing.`}
	if got := speaker.spoken(); !reflect.DeepEqual(got, want) {
		t.Errorf("spoken = %q, want %q", got, want)
	}
	if display.reply() != strings.Join(chunks, "") {
		t.Errorf("display = %q, want the full reply", display.reply())
	}
}

func TestSpeakSkipsMarkupOnly(t *testing.T) {
	speaker := &fakeSpeaker{}
	c := NewController(&fakeGenerator{}, speaker, &fakeDisplay{}, Options{StripMarkdown: true})

	if n := c.Speak("Done. ***"); n != 1 {
		t.Errorf("accepted = %d, want 1", n)
	}
	if got := speaker.spoken(); !reflect.DeepEqual(got, []string{"Done."}) {
		t.Errorf("spoken = %q", got)
	}
}

func TestNewControllerGeneratesSessionID(t *testing.T) {
	a := NewController(&fakeGenerator{}, nil, &fakeDisplay{}, Options{})
	b := NewController(&fakeGenerator{}, nil, &fakeDisplay{}, Options{})

	if a.SessionID() == "" || a.SessionID() == b.SessionID() {
		t.Errorf("session ids %q and %q", a.SessionID(), b.SessionID())
	}
}

func TestSpeak(t *testing.T) {
	speaker := &fakeSpeaker{}
	c := newTestController(&fakeGenerator{}, speaker, &fakeDisplay{})

	n := c.Speak("Testing one two. Can you hear me? Good")
	want := []string{"Testing one two.", "Can you hear me?", "Good"}
	if got := speaker.spoken(); !reflect.DeepEqual(got, want) {
		t.Errorf("spoken = %q, want %q", got, want)
	}
	if n != len(want) {
		t.Errorf("accepted = %d, want %d", n, len(want))
	}

	silent := newTestController(&fakeGenerator{}, nil, &fakeDisplay{})
	if n := silent.Speak("Hello."); n != 0 {
		t.Errorf("nil speaker accepted %d", n)
	}
}

func TestTranscript(t *testing.T) {
	gen := &fakeGenerator{body: &chunkedBody{chunks: textChunks("Fine, thanks.")}}
	display := &fakeDisplay{}

	c := newTestController(gen, &fakeSpeaker{}, display)
	c.Notice("connected")
	if err := c.Send(context.Background(), "How are you?"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	entries := c.Transcript().Entries()
	roles := make([]Role, len(entries))
	for i, e := range entries {
		roles[i] = e.Role
	}
	if !reflect.DeepEqual(roles, []Role{RoleSystem, RoleUser, RoleAssistant}) {
		t.Fatalf("roles = %v", roles)
	}

	if last, ok := c.Transcript().Last(RoleUser); !ok || last.Text != "How are you?" {
		t.Errorf("last user entry = %+v", last)
	}
	if _, ok := (&Transcript{}).Last(RoleAssistant); ok {
		t.Error("empty transcript reported an entry")
	}

	want := "_connected_\n\n**You:** How are you?\n\nFine, thanks."
	if got := c.Transcript().Markdown(); got != want {
		t.Errorf("Markdown() = %q, want %q", got, want)
	}
}
