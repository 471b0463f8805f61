// Package study defines the study document exchanged between the LLM
// backends, the caches and the callers, plus the prompts that produce it.
package study

import (
	"encoding/json"
	"fmt"
)

// Well-known document keys. Everything else the model emits is kept as-is.
const (
	FieldError                = "error"
	FieldPurpose              = "purpose"
	FieldContext              = "context"
	FieldKeyThemes            = "key_themes"
	FieldStudyFlow            = "study_flow"
	FieldSummary              = "summary"
	FieldApplicationQuestions = "application_questions"
	FieldCrossReferences      = "cross_references"
	FieldPrayerPrompt         = "prayer_prompt"
)

// Document is the structured study returned by a provider. Its shape is
// owned by the prompt; the only key the router interprets is "error".
type Document map[string]any

// IsError reports whether the document carries error=true. A missing flag
// counts as a successful document.
func (d Document) IsError() bool {
	v, ok := d[FieldError].(bool)
	return ok && v
}

// Message returns the human-readable explanation of an error document.
func (d Document) Message() string {
	if s, ok := d[FieldSummary].(string); ok {
		return s
	}
	return ""
}

// Clone returns a deep copy so shared results can be handed to several
// callers without aliasing.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	return cloneValue(map[string]any(d)).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case Document:
		return cloneValue(map[string]any(t))
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	default:
		return v
	}
}

// studyFields are the keys of which at least one must be present for an
// object to count as a study.
var studyFields = []string{
	FieldPurpose, FieldContext, FieldKeyThemes, FieldStudyFlow, FieldSummary,
	FieldApplicationQuestions, FieldCrossReferences, FieldPrayerPrompt,
}

// FromObject turns a parsed JSON object into a document. An absent or null
// error flag means success. Any other non-bool flag, or an object with
// none of the study keys, yields an error document.
func FromObject(obj map[string]any) Document {
	d := Document(obj)
	switch v := d[FieldError].(type) {
	case nil:
		d[FieldError] = false
	case bool:
		if v {
			if d.Message() == "" {
				d[FieldSummary] = "Model reported an error"
			}
			return d
		}
	default:
		return NewErrorDocument(fmt.Sprintf("Model reported an error: %v", v))
	}
	for _, k := range studyFields {
		if _, ok := d[k]; ok {
			return d
		}
	}
	return NewErrorDocument("Response contained no study content")
}

// Decode reads a document previously produced by Encode.
func Decode(raw []byte) (Document, error) {
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("decoding study: %w", err)
	}
	if d == nil {
		return nil, fmt.Errorf("decoding study: not an object")
	}
	return d, nil
}

// Encode serialises a document for the caches.
func Encode(d Document) ([]byte, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding study: %w", err)
	}
	return raw, nil
}

// NewErrorDocument builds a schema-complete document with error=true so
// renderers never have to special-case a missing section.
func NewErrorDocument(msg string) Document {
	flow := map[string]any{
		"passage_section":         "",
		"section_heading":         "Error",
		"observation_question":    "Study generation failed",
		"observation_answer":      msg,
		"interpretation_question": "",
		"interpretation_answer":   "",
		"connection":              "",
		"teaching_point":          "",
	}
	return Document{
		FieldPurpose:              "Error: " + msg,
		FieldContext:              "Unable to generate study at this time.",
		FieldKeyThemes:            []any{"Error"},
		FieldStudyFlow:            []any{flow},
		FieldSummary:              msg,
		FieldApplicationQuestions: []any{"Please try generating the study again."},
		FieldCrossReferences:      []any{},
		FieldPrayerPrompt:         "",
		FieldError:                true,
	}
}
