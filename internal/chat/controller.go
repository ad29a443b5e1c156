package chat

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/kbchat/kbchat/internal/speech"
	"github.com/kbchat/kbchat/internal/tts"
)

// DefaultReadSize is the buffer used to read the reply stream.
const DefaultReadSize = 4096

// Generator produces a streamed reply to the user's message.
type Generator interface {
	Generate(ctx context.Context, text, sessionID string) (io.ReadCloser, error)
}

// Speaker accepts sentences for playback. It reports false when a sentence
// was ignored, e.g. because speech is muted.
type Speaker interface {
	Enqueue(sentence string) bool
}

// Options configures a Controller.
type Options struct {
	SessionID     string // generated when empty
	StripMarkdown bool   // speak sentences without markdown markup
	ReadSize      int
	Logger        *log.Logger
}

// Controller runs conversation turns against a Generator.
type Controller struct {
	generator Generator
	speaker   Speaker
	display   Display

	sessionID     string
	stripMarkdown bool
	readSize      int
	logger        *log.Logger

	transcript Transcript

	// One turn at a time
	mu sync.Mutex
}

// NewController wires a controller. speaker may be nil to disable speech.
func NewController(generator Generator, speaker Speaker, display Display, opts Options) *Controller {
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	if opts.ReadSize <= 0 {
		opts.ReadSize = DefaultReadSize
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	return &Controller{
		generator:     generator,
		speaker:       speaker,
		display:       display,
		sessionID:     opts.SessionID,
		stripMarkdown: opts.StripMarkdown,
		readSize:      opts.ReadSize,
		logger:        opts.Logger,
	}
}

// SessionID returns the id the server uses to keep conversation memory.
func (c *Controller) SessionID() string {
	return c.sessionID
}

// Transcript returns the session log.
func (c *Controller) Transcript() *Transcript {
	return &c.transcript
}

// Send runs one turn. Empty input is ignored. The reply is shown as it
// streams; each completed sentence is spoken immediately and any trailing
// text without a terminator is spoken when the stream ends. A failure to
// reach the generation endpoint or a stream that breaks midway is returned
// after the partial reply has been shown and spoken.
func (c *Controller) Send(ctx context.Context, userText string) error {
	text := strings.TrimSpace(userText)
	if text == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.add(Entry{Role: RoleUser, Text: text, Time: time.Now()})

	c.display.SetLoading(true)
	defer c.display.SetLoading(false)

	start := time.Now()
	body, err := c.generator.Generate(ctx, text, c.sessionID)
	if err != nil {
		c.logger.Warn("generation request failed", "err", err)
		return err
	}
	defer body.Close()

	turn := &turn{controller: c, segmenter: speech.NewSegmenter()}
	var decoder utf8Carry
	buf := make([]byte, c.readSize)

	var streamErr error
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			turn.fragment(decoder.Decode(buf[:n]))
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			streamErr = rerr
			break
		}
	}

	turn.fragment(decoder.Flush())
	turn.finish()

	c.logger.Debug("reply complete",
		"session", c.sessionID,
		"chars", turn.reply.Len(),
		"sentences", turn.sentences,
		"took", time.Since(start),
	)

	if streamErr != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("reply interrupted", "err", streamErr)
		if tts.CodeOf(streamErr) == "" {
			streamErr = tts.TransportError("read reply stream", streamErr)
		}
		return streamErr
	}
	return nil
}

// Speak segments text and enqueues each sentence without a generation
// request. It returns how many sentences were accepted.
func (c *Controller) Speak(text string) int {
	segmenter := speech.NewSegmenter()
	accepted := 0

	for _, sentence := range segmenter.Accumulate(text) {
		if c.speak(sentence) {
			accepted++
		}
	}
	if residue, ok := segmenter.Flush(); ok && c.speak(residue) {
		accepted++
	}
	return accepted
}

// Notice shows a system line without sending anything.
func (c *Controller) Notice(text string) {
	c.add(Entry{Role: RoleSystem, Text: text, Time: time.Now()})
}

func (c *Controller) add(e Entry) {
	c.transcript.Append(e)
	c.display.AddEntry(e)
}

// speak enqueues sentence unless it has nothing to read aloud, like a
// stray closing quote or an emoji. The text is still shown.
func (c *Controller) speak(sentence string) bool {
	if c.speaker == nil {
		return false
	}
	if c.stripMarkdown {
		sentence = speech.Speakable(sentence)
	}
	if !speech.HasWords(sentence) {
		c.logger.Debug("nothing to speak", "sentence", sentence)
		return false
	}
	return c.speaker.Enqueue(sentence)
}

// turn accumulates one assistant reply.
type turn struct {
	controller *Controller
	segmenter  *speech.Segmenter
	reply      strings.Builder
	shown      bool
	sentences  int
}

func (t *turn) fragment(text string) {
	if text == "" {
		return
	}

	t.reply.WriteString(text)
	if !t.shown {
		t.controller.display.AddEntry(Entry{Role: RoleAssistant, Text: t.reply.String(), Time: time.Now()})
		t.shown = true
	} else {
		t.controller.display.UpdateAssistant(t.reply.String())
	}

	for _, sentence := range t.segmenter.Accumulate(text) {
		t.sentences++
		t.controller.speak(sentence)
	}
}

func (t *turn) finish() {
	if residue, ok := t.segmenter.Flush(); ok {
		t.sentences++
		t.controller.speak(residue)
	}
	if t.shown {
		t.controller.transcript.Append(Entry{Role: RoleAssistant, Text: t.reply.String(), Time: time.Now()})
	}
}
