package repair

import (
	"strings"
	"unicode"
)

// tail summarises the structure left open at the end of a candidate.
type tail struct {
	open       []byte // unclosed '{' and '[' in order
	inString   bool
	escaped    bool // trailing backslash inside an open string
	keyPending bool // last token is an object key with no ':' yet
}

func scanTail(s string) tail {
	var t tail
	expectKey, isKey := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if t.inString {
			switch {
			case t.escaped:
				t.escaped = false
			case c == '\\':
				t.escaped = true
			case c == '"':
				t.inString = false
				t.keyPending = isKey
			}
			continue
		}
		switch c {
		case '"':
			t.inString = true
			isKey, expectKey = expectKey, false
			t.keyPending = false
		case '{':
			t.open = append(t.open, c)
			expectKey, t.keyPending = true, false
		case '[':
			t.open = append(t.open, c)
			expectKey, t.keyPending = false, false
		case '}', ']':
			if n := len(t.open); n > 0 {
				t.open = t.open[:n-1]
			}
			expectKey, t.keyPending = false, false
		case ',':
			expectKey = len(t.open) > 0 && t.open[len(t.open)-1] == '{'
			t.keyPending = false
		case ' ', '\t', '\n', '\r':
		default:
			expectKey, t.keyPending = false, false
		}
	}
	return t
}

// CloseTruncated completes a candidate that was cut off mid-document. An
// unterminated final string gets its closing quote, dangling separators
// and partial literals are trimmed, and the still-open arrays and objects
// are closed innermost first. The recovered content past the cut is not
// meaningful, only parseable.
func CloseTruncated(s string) string {
	s = strings.TrimRightFunc(s, unicode.IsSpace)
	if t := scanTail(s); t.inString {
		if t.escaped {
			s = s[:len(s)-1]
		}
		s = trimPartialUnicode(s) + `"`
	}
	s = trimDangling(s)

	t := scanTail(s)
	var b strings.Builder
	b.WriteString(s)
	for i := len(t.open) - 1; i >= 0; i-- {
		if t.open[i] == '{' {
			b.WriteByte('}')
		} else {
			b.WriteByte(']')
		}
	}
	return b.String()
}

// trimDangling drops what cannot end a JSON value at the cut: trailing
// commas, partial literals and numbers, and completes a key or colon left
// without a value.
func trimDangling(s string) string {
	for {
		s = strings.TrimRightFunc(s, unicode.IsSpace)
		if s == "" {
			return s
		}
		if scanTail(s).keyPending {
			return s + ": null"
		}
		switch c := s[len(s)-1]; {
		case c == ',':
			s = s[:len(s)-1]
		case c == ':':
			return s + " null"
		case c == '-' || c == '+' || c == '.':
			s = s[:len(s)-1]
		case isLetter(c):
			j := len(s)
			for j > 0 && isLetter(s[j-1]) {
				j--
			}
			switch s[j:] {
			case "true", "false", "null":
				return s
			}
			s = s[:j]
		default:
			return s
		}
	}
}

// trimPartialUnicode drops a \u escape cut before its four hex digits.
func trimPartialUnicode(s string) string {
	i := strings.LastIndex(s, `\u`)
	if i < 0 || len(s)-i >= 6 {
		return s
	}
	// an odd run of backslashes before it escapes the backslash itself
	n := 0
	for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
		n++
	}
	if n%2 == 1 {
		return s
	}
	for _, c := range []byte(s[i+2:]) {
		if !isHex(c) {
			return s
		}
	}
	return s[:i]
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}

func isLetter(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}
