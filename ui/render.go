package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/muesli/reflow/wordwrap"

	"github.com/kbchat/kbchat/internal/chat"
)

const entryIndent = 2

// renderer turns conversation entries into terminal output for one width and
// theme.
type renderer struct {
	cfg   Config
	width int
	dark  bool
	term  *glamour.TermRenderer
}

func newRenderer(cfg Config, width int, dark bool) *renderer {
	r := &renderer{cfg: cfg, width: width, dark: dark}
	if !cfg.GlamourEnabled {
		return r
	}

	wrap := max(0, width-entryIndent)
	if cfg.GlamourMaxWidth > 0 {
		wrap = min(wrap, int(cfg.GlamourMaxWidth)) //nolint:gosec
	}

	style := glamour.WithStandardStyle(styles.LightStyle)
	if dark {
		style = glamour.WithStandardStyle(styles.DarkStyle)
	}
	if cfg.GlamourStyle != "" && cfg.GlamourStyle != styles.AutoStyle {
		style = glamour.WithStylePath(cfg.GlamourStyle)
	}

	term, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(wrap))
	if err != nil {
		// Fall back to plain wrapping
		return r
	}
	r.term = term
	return r
}

func (r *renderer) render(e chat.Entry) string {
	var s string
	switch e.Role {
	case chat.RoleUser:
		s = userLabelStyle("You") + "\n" + indent(r.wrap(e.Text), entryIndent)
	case chat.RoleAssistant:
		s = r.markdown(e.Text)
	default:
		s = systemStyle(r.wrap("• " + e.Text))
	}

	if r.cfg.ShowTimestamps && !e.Time.IsZero() {
		s = timestampStyle(e.Time.Format("15:04:05")) + "\n" + s
	}
	return s
}

func (r *renderer) markdown(text string) string {
	if r.term == nil {
		return indent(r.wrap(text), entryIndent)
	}
	out, err := r.term.Render(text)
	if err != nil {
		return indent(r.wrap(text), entryIndent)
	}
	return strings.Trim(out, "\n")
}

func (r *renderer) wrap(text string) string {
	if r.width <= entryIndent {
		return text
	}
	return wordwrap.String(text, r.width-entryIndent)
}

// Lightweight version of reflow's indent function.
func indent(s string, n int) string {
	if n <= 0 || s == "" {
		return s
	}
	l := strings.Split(s, "\n")
	b := strings.Builder{}
	i := strings.Repeat(" ", n)
	for j, v := range l {
		if j > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s%s", i, v)
	}
	return b.String()
}
