package speech

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Segmenter accumulates text fragments and emits a sentence each time a
// terminator character is appended. Boundary detection is purely character
// based: abbreviations and decimals are not special-cased, so "3.50" splits
// after the dot. No text is discarded: punctuation left over after a
// sentence is returned like any other text.
//
// A Segmenter is not safe for concurrent use; it belongs to one reply stream.
type Segmenter struct {
	buf strings.Builder
}

// NewSegmenter returns an empty segmenter.
func NewSegmenter() *Segmenter {
	return &Segmenter{}
}

// Accumulate appends fragment to the buffer and returns every sentence
// completed by it, in order. A sentence ends at '.', '?' or '!' and is
// returned trimmed. A run of terminators inside the fragment, such as "?!"
// or "...", closes a single sentence.
func (s *Segmenter) Accumulate(fragment string) []string {
	var sentences []string
	for i, r := range fragment {
		s.buf.WriteRune(r)
		if !IsTerminator(r) {
			continue
		}
		next := i + utf8.RuneLen(r)
		if next < len(fragment) && isTerminatorByte(fragment[next]) {
			continue
		}
		if sentence := strings.TrimSpace(s.buf.String()); sentence != "" {
			sentences = append(sentences, sentence)
		}
		s.buf.Reset()
	}
	return sentences
}

// Flush returns whatever is left in the buffer as a final sentence, without
// checking for a terminator. It reports false when only whitespace remains.
func (s *Segmenter) Flush() (string, bool) {
	rest := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	return rest, rest != ""
}

// Pending returns the text accumulated since the last emitted sentence.
func (s *Segmenter) Pending() string {
	return s.buf.String()
}

// Reset drops any buffered text.
func (s *Segmenter) Reset() {
	s.buf.Reset()
}

// IsTerminator reports whether r ends a sentence.
func IsTerminator(r rune) bool {
	return r == '.' || r == '?' || r == '!'
}

func isTerminatorByte(b byte) bool {
	return b == '.' || b == '?' || b == '!'
}

// HasWords reports whether text contains a letter or digit. Sentences made
// only of punctuation or symbols have nothing to say aloud.
func HasWords(text string) bool {
	return strings.IndexFunc(text, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r)
	}) >= 0
}
