package chat

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Role identifies who authored an entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Entry is one line of the conversation.
type Entry struct {
	Role Role
	Text string
	Time time.Time
}

// Display is the surface a conversation is rendered to.
type Display interface {
	// AddEntry appends a new entry.
	AddEntry(e Entry)

	// UpdateAssistant replaces the text of the newest assistant entry.
	// Successive calls within one reply only ever extend the text.
	UpdateAssistant(text string)

	// SetLoading toggles the busy indicator.
	SetLoading(loading bool)
}

// Transcript is the ordered log of a session.
type Transcript struct {
	mu      sync.RWMutex
	entries []Entry
}

// Append adds an entry.
func (t *Transcript) Append(e Entry) {
	t.mu.Lock()
	t.entries = append(t.entries, e)
	t.mu.Unlock()
}

// Entries returns a copy of the log.
func (t *Transcript) Entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of entries.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Last returns the newest entry with the given role.
func (t *Transcript) Last(role Role) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for i := len(t.entries) - 1; i >= 0; i-- {
		if t.entries[i].Role == role {
			return t.entries[i], true
		}
	}
	return Entry{}, false
}

// Markdown renders the log as a markdown document.
func (t *Transcript) Markdown() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var b strings.Builder
	for i, e := range t.entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch e.Role {
		case RoleUser:
			fmt.Fprintf(&b, "**You:** %s", e.Text)
		case RoleAssistant:
			b.WriteString(e.Text)
		default:
			fmt.Fprintf(&b, "_%s_", e.Text)
		}
	}
	return b.String()
}
