package speech

import "testing"

func TestSpeakable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello there.", "Hello there."},
		{"This is **very** important.", "This is very important."},
		{"Run `make build` first.", "Run make build first."},
		{"See [the docs](https://example.com) now.", "See the docs now."},
		{"## Summary", "Summary"},
		{"***", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := Speakable(tt.input); got != tt.expected {
				t.Errorf("Speakable(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
