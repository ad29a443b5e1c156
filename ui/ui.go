// Package ui provides the interactive chat interface for kbchat.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	runewidth "github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/ansi"
	"github.com/muesli/reflow/truncate"
	"github.com/muesli/termenv"

	"github.com/kbchat/kbchat/internal/chat"
)

const (
	statusMessageTimeout = time.Second * 3 // how long to show status messages like "copied!"
	statusBarHeight      = 1
	inputHeight          = 1
	ellipsis             = "…"
)

// Sender runs one conversation turn.
type Sender interface {
	Send(ctx context.Context, text string) error
}

// Speech is the mute switch shown and toggled by the interface.
type Speech interface {
	Muted() bool
	Toggle() bool
}

// NewProgram returns a new Tea program and attaches display to it.
func NewProgram(ctx context.Context, cfg Config, sender Sender, speech Speech, display *Display) *tea.Program {
	log.Debug(
		"Starting kbchat",
		"glamour", cfg.GlamourEnabled,
		"theme", cfg.Theme,
	)

	opts := []tea.ProgramOption{tea.WithAltScreen(), tea.WithContext(ctx)}
	if cfg.EnableMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}

	p := tea.NewProgram(newModel(ctx, cfg, sender, speech), opts...)
	display.attach(p)
	return p
}

type (
	sendDoneMsg             struct{ err error }
	statusMessageTimeoutMsg int
)

type model struct {
	ctx    context.Context
	cfg    Config
	sender Sender
	speech Speech

	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	renderer *renderer

	entries  []chat.Entry
	rendered []string
	loading  bool
	dark     bool

	width  int
	height int

	statusMessage string
	statusSeq     int
}

func newModel(ctx context.Context, cfg Config, sender Sender, speech Speech) model {
	dark := true
	switch cfg.Theme {
	case "light":
		dark = false
	case "dark":
	default:
		dark = termenv.HasDarkBackground()
	}

	ti := textinput.New()
	ti.Placeholder = "Ask something…"
	ti.Prompt = "> "
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	return model{
		ctx:      ctx,
		cfg:      cfg,
		sender:   sender,
		speech:   speech,
		input:    ti,
		viewport: viewport.New(0, 0),
		spinner:  sp,
		dark:     dark,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "ctrl+z":
			return m, tea.Suspend

		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.loading {
				return m, nil
			}
			m.input.Reset()
			return m, sendCmd(m.ctx, m.sender, text)

		case "ctrl+s":
			if m.speech.Toggle() {
				return m, m.showStatusMessage("Speech muted")
			}
			return m, m.showStatusMessage("Speech on")

		case "ctrl+t":
			m.dark = !m.dark
			m.renderer = nil
			m.renderAll()
			if m.dark {
				return m, m.showStatusMessage("Dark theme")
			}
			return m, m.showStatusMessage("Light theme")

		case "ctrl+y":
			reply, ok := m.lastReply()
			if !ok {
				return m, m.showStatusMessage("Nothing to copy")
			}
			// Copy using OSC 52
			termenv.Copy(reply)
			// Copy using native system clipboard
			_ = clipboard.WriteAll(reply)
			return m, m.showStatusMessage("Copied reply")

		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

	// Window size is received when starting up and on every resize
	case tea.WindowSizeMsg:
		m.setSize(msg.Width, msg.Height)

	case entryMsg:
		m.addEntry(chat.Entry(msg))

	case assistantMsg:
		m.updateAssistant(string(msg))

	case loadingMsg:
		m.loading = bool(msg)
		if m.loading {
			cmds = append(cmds, m.spinner.Tick)
		}

	case sendDoneMsg:
		if msg.err != nil && m.ctx.Err() == nil {
			log.Debug("turn failed", "error", msg.err)
			m.addEntry(chat.Entry{
				Role: chat.RoleSystem,
				Text: fmt.Sprintf("reply interrupted: %v", msg.err),
				Time: time.Now(),
			})
		}

	case spinner.TickMsg:
		if !m.loading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case statusMessageTimeoutMsg:
		if int(msg) == m.statusSeq {
			m.statusMessage = ""
		}
		return m, nil

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	var b strings.Builder

	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	if m.loading {
		b.WriteString(m.spinner.View())
		b.WriteString(systemStyle(" thinking" + ellipsis))
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")

	m.statusBarView(&b)
	return b.String()
}

func (m *model) setSize(w, h int) {
	m.width = w
	m.height = h
	m.viewport.Width = w
	m.viewport.Height = max(0, h-statusBarHeight-inputHeight)
	m.input.Width = max(0, w-runewidth.StringWidth(m.input.Prompt)-1)

	m.renderer = nil
	m.renderAll()
}

func (m *model) currentRenderer() *renderer {
	if m.renderer == nil {
		m.renderer = newRenderer(m.cfg, m.width, m.dark)
	}
	return m.renderer
}

func (m *model) addEntry(e chat.Entry) {
	m.entries = append(m.entries, e)
	m.rendered = append(m.rendered, m.currentRenderer().render(e))
	m.refresh()
}

// updateAssistant replaces the newest assistant entry's text.
func (m *model) updateAssistant(text string) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Role != chat.RoleAssistant {
			continue
		}
		m.entries[i].Text = text
		m.rendered[i] = m.currentRenderer().render(m.entries[i])
		m.refresh()
		return
	}
}

func (m *model) renderAll() {
	r := m.currentRenderer()
	m.rendered = m.rendered[:0]
	for _, e := range m.entries {
		m.rendered = append(m.rendered, r.render(e))
	}
	m.refresh()
}

func (m *model) refresh() {
	atBottom := m.viewport.AtBottom() || m.viewport.TotalLineCount() == 0
	m.viewport.SetContent(strings.Join(m.rendered, "\n\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m model) lastReply() (string, bool) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].Role == chat.RoleAssistant {
			return m.entries[i].Text, true
		}
	}
	return "", false
}

func (m *model) showStatusMessage(msg string) tea.Cmd {
	m.statusSeq++
	m.statusMessage = msg
	seq := m.statusSeq
	return tea.Tick(statusMessageTimeout, func(time.Time) tea.Msg {
		return statusMessageTimeoutMsg(seq)
	})
}

func (m model) statusBarView(b *strings.Builder) {
	logo := logoStyle(" kbchat ")

	speech := statusBarSpeechStyle(" speech on ")
	if m.speech.Muted() {
		speech = statusBarMutedStyle(" muted ")
	}

	showStatusMessage := m.statusMessage != ""
	note := "ctrl+s mute • ctrl+t theme • ctrl+y copy • esc quit"
	if showStatusMessage {
		note = m.statusMessage
	}
	note = truncate.StringWithTail(" "+note+" ", uint(max(0, //nolint:gosec
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(speech),
	)), ellipsis)
	if showStatusMessage {
		note = statusBarMessageStyle(note)
	} else {
		note = statusBarNoteStyle(note)
	}

	// Empty space
	padding := max(0,
		m.width-
			ansi.PrintableRuneWidth(logo)-
			ansi.PrintableRuneWidth(note)-
			ansi.PrintableRuneWidth(speech),
	)
	emptySpace := strings.Repeat(" ", padding)
	if showStatusMessage {
		emptySpace = statusBarMessageStyle(emptySpace)
	} else {
		emptySpace = statusBarNoteStyle(emptySpace)
	}

	fmt.Fprintf(b, "%s%s%s%s",
		logo,
		note,
		emptySpace,
		speech,
	)
}

// COMMANDS

func sendCmd(ctx context.Context, sender Sender, text string) tea.Cmd {
	return func() tea.Msg {
		return sendDoneMsg{err: sender.Send(ctx, text)}
	}
}
