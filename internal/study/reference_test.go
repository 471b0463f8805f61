package study

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeReference(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"John 1:1-18", "John 1:1-18"},
		{"  John   1:1-18 ", "John 1:1-18"},
		{"John 1 : 1 - 18", "John 1:1-18"},
		{"1  John\t3:16", "1 John 3:16"},
		{"Psalm 23", "Psalm 23"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeReference(tt.in), "input %q", tt.in)
	}
}

func TestFormatReference(t *testing.T) {
	assert.Equal(t, "John 1:1-18", FormatReference("John", 1, 1, 18))
	assert.Equal(t, "John 1:5", FormatReference("John", 1, 5, 5))
	assert.Equal(t, "John 1:5", FormatReference("John", 1, 5, 0))
	assert.Equal(t, "Psalm 23", FormatReference("Psalm", 23, 0, 0))
	assert.Equal(t, "1 John 4:7-12", FormatReference(" 1  John ", 4, 7, 12))
}

func TestFormatPromptCarriesPayload(t *testing.T) {
	p := FormatPrompt("John 1:1", "In the beginning was the Word")
	assert.Contains(t, p, "Passage Reference: John 1:1")
	assert.Contains(t, p, "In the beginning was the Word")
	assert.Contains(t, p, "Respond ONLY with valid JSON.")
}
