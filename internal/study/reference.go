package study

import (
	"fmt"
	"strings"
)

// Request is one study generation request as seen by the router.
type Request struct {
	Reference  string `json:"reference"`
	SourceText string `json:"source_text"`
	Provider   string `json:"provider,omitempty"` // empty or "auto" means fallback mode
	Model      string `json:"model,omitempty"`
}

var rangeSpacing = strings.NewReplacer(" :", ":", ": ", ":", " -", "-", "- ", "-")

// NormalizeReference canonicalises a passage reference for use as a cache
// key: surrounding space is trimmed, inner runs of space collapsed and the
// chapter/verse separators written without spaces. Case is preserved since
// book names are displayed as keyed.
func NormalizeReference(ref string) string {
	s := strings.Join(strings.Fields(ref), " ")
	for {
		next := rangeSpacing.Replace(s)
		if next == s {
			return s
		}
		s = next
	}
}

// FormatReference renders book, chapter and verse range as "Book C:S-E".
// A single verse omits the range, and a non-positive start verse means the
// whole chapter.
func FormatReference(book string, chapter, startVerse, endVerse int) string {
	book = NormalizeReference(book)
	switch {
	case startVerse <= 0:
		return fmt.Sprintf("%s %d", book, chapter)
	case endVerse <= startVerse:
		return fmt.Sprintf("%s %d:%d", book, chapter, startVerse)
	default:
		return fmt.Sprintf("%s %d:%d-%d", book, chapter, startVerse, endVerse)
	}
}
