package ui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kbchat/kbchat/internal/chat"
	"github.com/kbchat/kbchat/internal/queue"
)

type recordingSender struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (s *recordingSender) Send(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return s.err
}

func testConfig() Config {
	return Config{Theme: "dark"}
}

func newTestModel(sender Sender) model {
	m := newModel(context.Background(), testConfig(), sender, queue.NewMute(false))
	m.setSize(80, 24)
	return m
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	um, ok := next.(model)
	if !ok {
		t.Fatalf("Update returned %T", next)
	}
	return um, cmd
}

func TestEnterSendsTrimmedInput(t *testing.T) {
	sender := &recordingSender{}
	m := newTestModel(sender)
	m.input.SetValue("  hello there  ")

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatal("Expected a send command")
	}
	if m.input.Value() != "" {
		t.Errorf("Input should be cleared, got %q", m.input.Value())
	}

	msg := cmd()
	done, ok := msg.(sendDoneMsg)
	if !ok {
		t.Fatalf("Expected sendDoneMsg, got %T", msg)
	}
	if done.err != nil {
		t.Errorf("Unexpected error: %v", done.err)
	}
	if len(sender.texts) != 1 || sender.texts[0] != "hello there" {
		t.Errorf("Sender got %q", sender.texts)
	}
}

func TestEnterIgnoredWhenEmptyOrLoading(t *testing.T) {
	m := newTestModel(&recordingSender{})

	m.input.SetValue("   ")
	if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Error("Whitespace input should not send")
	}

	m.input.SetValue("wait")
	m, _ = update(t, m, loadingMsg(true))
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("Should not send while a reply is loading")
	}
	if m.input.Value() != "wait" {
		t.Errorf("Input should be kept while loading, got %q", m.input.Value())
	}
}

func TestConversationRendering(t *testing.T) {
	m := newTestModel(&recordingSender{})

	m, _ = update(t, m, entryMsg(chat.Entry{Role: chat.RoleUser, Text: "How are you?"}))
	m, _ = update(t, m, entryMsg(chat.Entry{Role: chat.RoleAssistant, Text: "Fine"}))
	m, _ = update(t, m, assistantMsg("Fine, thanks."))

	if len(m.entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(m.entries))
	}
	if m.entries[1].Text != "Fine, thanks." {
		t.Errorf("Assistant entry not updated: %q", m.entries[1].Text)
	}

	view := m.View()
	for _, want := range []string{"You", "How are you?", "Fine, thanks."} {
		if !strings.Contains(view, want) {
			t.Errorf("View should contain %q", want)
		}
	}
}

func TestUpdateAssistantWithoutEntry(t *testing.T) {
	m := newTestModel(&recordingSender{})
	m, _ = update(t, m, entryMsg(chat.Entry{Role: chat.RoleUser, Text: "hi"}))
	m, _ = update(t, m, assistantMsg("orphan"))

	if len(m.entries) != 1 || m.entries[0].Text != "hi" {
		t.Errorf("User entry must not be replaced: %+v", m.entries)
	}
}

func TestSendFailureAddsSystemLine(t *testing.T) {
	m := newTestModel(&recordingSender{})

	m, _ = update(t, m, sendDoneMsg{err: errors.New("connection refused")})

	if len(m.entries) != 1 || m.entries[0].Role != chat.RoleSystem {
		t.Fatalf("Expected a system entry, got %+v", m.entries)
	}
	if !strings.Contains(m.entries[0].Text, "connection refused") {
		t.Errorf("System line should carry the error: %q", m.entries[0].Text)
	}

	m, _ = update(t, m, sendDoneMsg{})
	if len(m.entries) != 1 {
		t.Error("A successful turn should not add entries")
	}
}

func TestMuteToggle(t *testing.T) {
	mute := queue.NewMute(false)
	m := newModel(context.Background(), testConfig(), &recordingSender{}, mute)
	m.setSize(80, 24)

	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	if !mute.Muted() {
		t.Error("ctrl+s should mute speech")
	}
	if cmd == nil || m.statusMessage != "Speech muted" {
		t.Errorf("Expected a status message, got %q", m.statusMessage)
	}
	if !strings.Contains(m.View(), "muted") {
		t.Error("Status bar should show muted state")
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlS})
	if mute.Muted() {
		t.Error("Second ctrl+s should unmute")
	}
}

func TestThemeToggle(t *testing.T) {
	m := newTestModel(&recordingSender{})
	m, _ = update(t, m, entryMsg(chat.Entry{Role: chat.RoleAssistant, Text: "**bold** reply"}))

	before := m.dark
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyCtrlT})
	if m.dark == before {
		t.Error("ctrl+t should toggle the theme")
	}
	if len(m.rendered) != len(m.entries) {
		t.Errorf("Entries should be re-rendered: %d rendered, %d entries", len(m.rendered), len(m.entries))
	}
}

func TestStatusMessageTimeout(t *testing.T) {
	m := newTestModel(&recordingSender{})

	m.showStatusMessage("first")
	stale := statusMessageTimeoutMsg(m.statusSeq)
	m.showStatusMessage("second")

	m, _ = update(t, m, stale)
	if m.statusMessage != "second" {
		t.Errorf("Stale timeout cleared a newer message: %q", m.statusMessage)
	}

	m, _ = update(t, m, statusMessageTimeoutMsg(m.statusSeq))
	if m.statusMessage != "" {
		t.Errorf("Status message should be cleared, got %q", m.statusMessage)
	}
}

func TestLastReply(t *testing.T) {
	m := newTestModel(&recordingSender{})
	if _, ok := m.lastReply(); ok {
		t.Error("Empty conversation has no reply")
	}

	m.addEntry(chat.Entry{Role: chat.RoleAssistant, Text: "first"})
	m.addEntry(chat.Entry{Role: chat.RoleUser, Text: "again"})
	m.addEntry(chat.Entry{Role: chat.RoleAssistant, Text: "second"})
	m.addEntry(chat.Entry{Role: chat.RoleSystem, Text: "note"})

	if reply, ok := m.lastReply(); !ok || reply != "second" {
		t.Errorf("lastReply() = %q, %v", reply, ok)
	}
}

func TestRendererTimestamps(t *testing.T) {
	cfg := testConfig()
	cfg.ShowTimestamps = true
	r := newRenderer(cfg, 60, true)

	out := r.render(chat.Entry{
		Role: chat.RoleSystem,
		Text: "connected",
		Time: time.Date(2024, 1, 1, 9, 30, 15, 0, time.UTC),
	})
	if !strings.Contains(out, "09:30:15") || !strings.Contains(out, "connected") {
		t.Errorf("Unexpected render: %q", out)
	}
}

func TestDisplayDetached(t *testing.T) {
	d := NewDisplay()

	// Without a program, updates are dropped.
	d.AddEntry(chat.Entry{Role: chat.RoleUser, Text: "hi"})
	d.UpdateAssistant("reply")
	d.SetLoading(true)
}

func TestIndent(t *testing.T) {
	if got := indent("a\nb", 2); got != "  a\n  b" {
		t.Errorf("indent() = %q", got)
	}
	if got := indent("", 2); got != "" {
		t.Errorf("indent of empty string = %q", got)
	}
}
