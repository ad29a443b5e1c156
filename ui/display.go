package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kbchat/kbchat/internal/chat"
)

type (
	entryMsg     chat.Entry
	assistantMsg string
	loadingMsg   bool
)

// Display forwards conversation updates from a chat controller to a running
// program. Updates sent before a program is attached are dropped.
type Display struct {
	mu      sync.RWMutex
	program *tea.Program
}

// NewDisplay returns a detached display.
func NewDisplay() *Display {
	return &Display{}
}

func (d *Display) attach(p *tea.Program) {
	d.mu.Lock()
	d.program = p
	d.mu.Unlock()
}

func (d *Display) send(msg tea.Msg) {
	d.mu.RLock()
	p := d.program
	d.mu.RUnlock()

	if p != nil {
		p.Send(msg)
	}
}

// AddEntry implements chat.Display.
func (d *Display) AddEntry(e chat.Entry) {
	d.send(entryMsg(e))
}

// UpdateAssistant implements chat.Display.
func (d *Display) UpdateAssistant(text string) {
	d.send(assistantMsg(text))
}

// SetLoading implements chat.Display.
func (d *Display) SetLoading(loading bool) {
	d.send(loadingMsg(loading))
}
