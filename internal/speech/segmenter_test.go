package speech

import (
	"reflect"
	"strings"
	"testing"
)

// collect runs fragments through a fresh segmenter and returns the emitted
// sentences plus the flush residue, if any.
func collect(fragments []string) ([]string, string, bool) {
	s := NewSegmenter()
	var sentences []string
	for _, f := range fragments {
		sentences = append(sentences, s.Accumulate(f)...)
	}
	rest, ok := s.Flush()
	return sentences, rest, ok
}

func TestSegmenterScenarios(t *testing.T) {
	tests := []struct {
		name      string
		fragments []string
		expected  []string
		residue   string
	}{
		{
			name:      "split across fragments",
			fragments: []string{"Hel", "lo there. How ", "are you?"},
			expected:  []string{"Hello there.", "How are you?"},
		},
		{
			name:      "no terminator",
			fragments: []string{"Just thinking"},
			expected:  nil,
			residue:   "Just thinking",
		},
		{
			name:      "terminator followed by whitespace",
			fragments: []string{"Yes!  \n", "No"},
			expected:  []string{"Yes!"},
			residue:   "No",
		},
		{
			name:      "several sentences in one fragment",
			fragments: []string{"One. Two", " three. Four!"},
			expected:  []string{"One.", "Two three.", "Four!"},
		},
		{
			name:      "each terminator character",
			fragments: []string{"A.", "B?", "C!"},
			expected:  []string{"A.", "B?", "C!"},
		},
		{
			name:      "decimals are not special",
			fragments: []string{"It costs 3.50 euros."},
			expected:  []string{"It costs 3.", "50 euros."},
		},
		{
			name:      "ellipsis",
			fragments: []string{"Well... ", "maybe."},
			expected:  []string{"Well...", "maybe."},
		},
		{
			name:      "terminator run",
			fragments: []string{"Really?!"},
			expected:  []string{"Really?!"},
		},
		{
			name:      "closing quote after terminator",
			fragments: []string{`He said "hi."`},
			expected:  []string{`He said "hi.`},
			residue:   `"`,
		},
		{
			name:      "symbols after the last sentence",
			fragments: []string{"Sure thing. 🙂"},
			expected:  []string{"Sure thing."},
			residue:   "🙂",
		},
		{
			name:      "empty fragments",
			fragments: []string{"", "Hi.", ""},
			expected:  []string{"Hi."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sentences, rest, ok := collect(tt.fragments)
			if !reflect.DeepEqual(sentences, tt.expected) {
				t.Errorf("sentences = %q, want %q", sentences, tt.expected)
			}
			if tt.residue == "" && ok {
				t.Errorf("unexpected flush residue %q", rest)
			}
			if tt.residue != "" && rest != tt.residue {
				t.Errorf("flush = %q, want %q", rest, tt.residue)
			}
		})
	}
}

func TestSegmenterEmitsOnTerminator(t *testing.T) {
	for _, term := range []string{".", "?", "!"} {
		s := NewSegmenter()
		if got := s.Accumulate("so far"); got != nil {
			t.Fatalf("premature emit: %q", got)
		}
		got := s.Accumulate(" done" + term)
		if len(got) != 1 || got[0] != "so far done"+term {
			t.Errorf("terminator %q: got %q", term, got)
		}
		if s.Pending() != "" {
			t.Errorf("buffer not reset after emit: %q", s.Pending())
		}
	}
}

func TestSegmenterWhitespaceOnlyResidue(t *testing.T) {
	s := NewSegmenter()
	s.Accumulate("Done. ")
	s.Accumulate("  \n")
	if rest, ok := s.Flush(); ok {
		t.Errorf("whitespace residue should not be spoken, got %q", rest)
	}
}

func TestSegmenterNoTextLoss(t *testing.T) {
	inputs := []string{
		"Well. I think so?   Maybe not!\nTrailing words without end",
		"Wait... what?!",
		"Sure thing. 🙂",
		`He said "hi."`,
		"!?. ...",
	}
	squash := func(s string) string { return strings.Join(strings.Fields(s), "") }

	for _, input := range inputs {
		runes := []rune(input)

		// Split the same input at every possible chunk size.
		for size := 1; size <= len(runes); size++ {
			var fragments []string
			for i := 0; i < len(runes); i += size {
				end := min(i+size, len(runes))
				fragments = append(fragments, string(runes[i:end]))
			}

			sentences, rest, _ := collect(fragments)
			joined := strings.Join(sentences, "") + rest
			if squash(joined) != squash(input) {
				t.Fatalf("%q at size %d: text lost: %q", input, size, joined)
			}
		}
	}
}

func TestHasWords(t *testing.T) {
	for text, want := range map[string]bool{
		"Hello.": true,
		"42":     true,
		"...":    false,
		"🙂":      false,
		`"`:      false,
		"":       false,
	} {
		if got := HasWords(text); got != want {
			t.Errorf("HasWords(%q) = %v, want %v", text, got, want)
		}
	}
}

func TestSegmenterFragmentSizeInvariance(t *testing.T) {
	input := "Hello there. How are you? Fine!"

	var chars []string
	for _, r := range input {
		chars = append(chars, string(r))
	}
	perChar, restA, _ := collect(chars)
	whole, restB, _ := collect([]string{"Hello there.", " How are you?", " Fine!"})

	if !reflect.DeepEqual(perChar, whole) || restA != restB {
		t.Errorf("per-char %q (%q) != per-sentence %q (%q)", perChar, restA, whole, restB)
	}
}
