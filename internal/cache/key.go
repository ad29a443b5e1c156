package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Key derives the cache key for a sentence spoken with voice. Texts that
// differ only in Unicode normalization or whitespace share a key.
func Key(voice, text string) string {
	normalized := strings.Join(strings.Fields(norm.NFC.String(text)), " ")

	h := sha256.New()
	h.Write([]byte(voice))
	h.Write([]byte{0})
	h.Write([]byte(normalized))
	return hex.EncodeToString(h.Sum(nil)[:16])
}
