package chat

import (
	"strings"
	"unicode/utf8"
)

// utf8Carry decodes a byte stream chunk by chunk. A multi-byte character
// split across chunks is held back until its remaining bytes arrive.
// Invalid bytes become U+FFFD.
type utf8Carry struct {
	pending []byte
}

// Decode returns the text completed by chunk.
func (c *utf8Carry) Decode(chunk []byte) string {
	data := chunk
	if len(c.pending) > 0 {
		data = append(c.pending, chunk...)
	}

	cut := len(data) - incompleteSuffix(data)
	c.pending = append([]byte(nil), data[cut:]...)
	return strings.ToValidUTF8(string(data[:cut]), string(utf8.RuneError))
}

// Flush returns whatever is held back; an unfinished character decodes to
// U+FFFD.
func (c *utf8Carry) Flush() string {
	if len(c.pending) == 0 {
		return ""
	}
	out := strings.ToValidUTF8(string(c.pending), string(utf8.RuneError))
	c.pending = nil
	return out
}

// incompleteSuffix returns how many trailing bytes begin a character that
// is not complete yet.
func incompleteSuffix(data []byte) int {
	for i := 1; i <= utf8.UTFMax-1 && i <= len(data); i++ {
		b := data[len(data)-i]
		if b < utf8.RuneSelf {
			return 0
		}
		if utf8.RuneStart(b) {
			if utf8.FullRune(data[len(data)-i:]) {
				return 0
			}
			return i
		}
	}
	return 0
}
