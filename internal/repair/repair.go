// Package repair recovers JSON objects from raw model output: fenced
// blocks, prose around the payload, raw control characters inside strings
// and responses cut off at the token limit.
package repair

import (
	"encoding/json"
	"errors"
	"strings"
)

var errNotObject = errors.New("top-level value is not an object")

// Parse runs the repair stages in order and returns the first JSON object
// that decodes: fence stripping, direct decode, object extraction, control
// character escaping, then truncation closing. It never panics.
func Parse(text string) (map[string]any, error) {
	v, err := ParseValue(text)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, newParseError(text, errNotObject)
	}
	return obj, nil
}

// ParseValue is Parse without the object requirement on the direct decode:
// any valid JSON text is returned as decoded. Later stages only ever
// produce objects.
func ParseValue(text string) (any, error) {
	candidate := StripFence(text)

	v, err := decode(candidate)
	if err == nil {
		return v, nil
	}

	// open keeps everything after the first '{' for the truncation stage,
	// where the narrowed span would drop the partial tail.
	open := candidate
	if span, ok := ExtractObject(candidate); ok && span != candidate {
		if i := strings.IndexByte(candidate, '{'); i >= 0 {
			open = candidate[i:]
		}
		candidate = span
		if v, err = decodeObject(candidate); err == nil {
			return v, nil
		}
	}

	escaped := EscapeControlChars(candidate)
	if v, err = decodeObject(escaped); err == nil {
		return v, nil
	}

	if open != candidate {
		if v, err = decodeObject(CloseTruncated(EscapeControlChars(open))); err == nil {
			return v, nil
		}
	}
	closed := CloseTruncated(escaped)
	if v, err = decodeObject(closed); err == nil {
		return v, nil
	}
	return nil, newParseError(closed, err)
}

func decode(s string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeObject(s string) (any, error) {
	v, err := decode(s)
	if err != nil {
		return nil, err
	}
	if _, ok := v.(map[string]any); !ok {
		return nil, errNotObject
	}
	return v, nil
}

const fence = "```"

// StripFence removes a surrounding markdown code fence. When the text opens
// with a fence the first line is dropped, along with everything from the
// first line that is exactly a closing fence.
func StripFence(text string) string {
	t := strings.TrimSpace(text)
	if !strings.HasPrefix(t, fence) {
		return t
	}
	nl := strings.IndexByte(t, '\n')
	if nl < 0 {
		// ```json {...}``` on one line
		t = strings.TrimSuffix(strings.TrimPrefix(t, fence), fence)
		return strings.TrimSpace(t)
	}
	lines := strings.Split(t[nl+1:], "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) == fence {
			lines = lines[:i]
			break
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// ExtractObject narrows text to the span between the first '{' and the
// last '}'. When no closing brace follows the opening one the span runs to
// the end of the text, which leaves truncated output for CloseTruncated.
func ExtractObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	end := strings.LastIndexByte(text, '}')
	if end < start {
		return text[start:], true
	}
	return text[start : end+1], true
}
