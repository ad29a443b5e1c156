package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/kbchat/kbchat/internal/chat"
)

// plainDisplay prints replies as they stream, for pipes and one-shot use.
type plainDisplay struct {
	mu      sync.Mutex
	out     io.Writer
	errOut  io.Writer
	printed int
}

func newPlainDisplay(out, errOut io.Writer) *plainDisplay {
	return &plainDisplay{out: out, errOut: errOut}
}

func (d *plainDisplay) AddEntry(e chat.Entry) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch e.Role {
	case chat.RoleAssistant:
		d.printed = 0
		d.write(e.Text)
	case chat.RoleSystem:
		fmt.Fprintln(d.errOut, e.Text)
	}
}

func (d *plainDisplay) UpdateAssistant(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.write(text)
}

func (d *plainDisplay) SetLoading(loading bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	// End the reply line once the turn is over
	if !loading && d.printed > 0 {
		fmt.Fprintln(d.out)
		d.printed = 0
	}
}

// write prints the part of text not printed yet. Updates only ever extend
// the reply.
func (d *plainDisplay) write(text string) {
	if len(text) <= d.printed {
		return
	}
	fmt.Fprint(d.out, text[d.printed:])
	d.printed = len(text)
}

// runPlain sends each input line as one message until in is exhausted or
// ctx is canceled.
func runPlain(ctx context.Context, sender interface {
	Send(ctx context.Context, text string) error
}, in io.Reader, errOut io.Writer,
) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := sender.Send(ctx, line); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(errOut, "reply interrupted:", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("unable to read input: %w", err)
	}
	return nil
}
