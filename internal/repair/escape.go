package repair

import "strings"

type scanState int

const (
	outside scanState = iota
	inString
	escapePending
)

const (
	byteOrderMark  = '\uFEFF'
	zeroWidthSpace = '\u200B'
)

// EscapeControlChars rewrites raw newline, carriage return and tab found
// inside JSON strings as their escape sequences and drops byte-order marks
// and zero-width spaces. Text outside strings and escape sequences already
// present are left untouched.
func EscapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)

	state := outside
	for _, r := range s {
		if r == byteOrderMark || r == zeroWidthSpace {
			continue
		}
		switch state {
		case outside:
			if r == '"' {
				state = inString
			}
			b.WriteRune(r)
		case inString:
			switch r {
			case '\\':
				state = escapePending
				b.WriteRune(r)
			case '"':
				state = outside
				b.WriteRune(r)
			case '\n':
				b.WriteString(`\n`)
			case '\r':
				b.WriteString(`\r`)
			case '\t':
				b.WriteString(`\t`)
			default:
				b.WriteRune(r)
			}
		case escapePending:
			state = inString
			b.WriteRune(r)
		}
	}
	return b.String()
}
