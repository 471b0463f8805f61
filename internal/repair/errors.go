package repair

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnrecoverable is returned when no repair stage yields a JSON object.
var ErrUnrecoverable = errors.New("unrecoverable model output")

// ParseError describes where the last repair attempt failed.
type ParseError struct {
	Offset  int    // byte offset in the final candidate
	Context string // text surrounding Offset
	Err     error  // decoder error of the final attempt
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed at offset %d near %q: %v", e.Offset, e.Context, e.Err)
}

func (e *ParseError) Unwrap() []error {
	return []error{ErrUnrecoverable, e.Err}
}

const contextWindow = 40

func newParseError(candidate string, err error) *ParseError {
	offset := len(candidate)
	var syn *json.SyntaxError
	if errors.As(err, &syn) {
		offset = int(syn.Offset)
	}
	if offset > len(candidate) {
		offset = len(candidate)
	}
	lo := max(offset-contextWindow, 0)
	hi := min(offset+contextWindow, len(candidate))
	return &ParseError{Offset: offset, Context: candidate[lo:hi], Err: err}
}
