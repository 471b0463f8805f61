package study

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorDocumentIsSchemaComplete(t *testing.T) {
	doc := NewErrorDocument("groq error: boom")

	assert.True(t, doc.IsError())
	assert.Equal(t, "Error: groq error: boom", doc[FieldPurpose])
	assert.Equal(t, "groq error: boom", doc.Message())
	for _, key := range []string{
		FieldPurpose, FieldContext, FieldKeyThemes, FieldStudyFlow, FieldSummary,
		FieldApplicationQuestions, FieldCrossReferences, FieldPrayerPrompt,
	} {
		assert.Contains(t, doc, key)
	}
	assert.Len(t, doc[FieldStudyFlow], 1)
	assert.Empty(t, doc[FieldCrossReferences])
}

func TestIsErrorTreatsMissingFlagAsSuccess(t *testing.T) {
	assert.False(t, Document{"purpose": "Know God"}.IsError())
	assert.False(t, Document{"error": "yes"}.IsError())
	assert.True(t, Document{"error": true}.IsError())
}

func TestFromObjectMakesFlagExplicit(t *testing.T) {
	doc := FromObject(map[string]any{"purpose": "Believe"})
	assert.Equal(t, false, doc[FieldError])

	flagged := FromObject(map[string]any{"error": true})
	assert.True(t, flagged.IsError())
	assert.NotEmpty(t, flagged.Message())

	nullFlag := FromObject(map[string]any{"summary": "s", "error": nil})
	assert.False(t, nullFlag.IsError())
}

func TestFromObjectRejectsNonStudies(t *testing.T) {
	for name, tc := range map[string]struct {
		obj  map[string]any
		want string
	}{
		"string flag":  {map[string]any{"error": "quota exceeded", "summary": "x"}, "Model reported an error: quota exceeded"},
		"object flag":  {map[string]any{"error": map[string]any{"code": 429}}, "Model reported an error"},
		"empty":        {map[string]any{}, "no study content"},
		"unknown keys": {map[string]any{"answer": "42"}, "no study content"},
	} {
		t.Run(name, func(t *testing.T) {
			doc := FromObject(tc.obj)
			assert.True(t, doc.IsError())
			assert.Contains(t, doc.Message(), tc.want)
		})
	}
}

func TestCloneIsDeep(t *testing.T) {
	orig := Document{
		"key_themes": []any{"grace"},
		"study_flow": []any{map[string]any{"section_heading": "Word"}},
	}
	cp := orig.Clone()
	cp["key_themes"].([]any)[0] = "law"
	cp["study_flow"].([]any)[0].(map[string]any)["section_heading"] = "Light"

	assert.Equal(t, "grace", orig["key_themes"].([]any)[0])
	assert.Equal(t, "Word", orig["study_flow"].([]any)[0].(map[string]any)["section_heading"])
	assert.Nil(t, Document(nil).Clone())
}

func TestEncodeDecode(t *testing.T) {
	raw, err := Encode(Document{"purpose": "Know", "error": false})
	require.NoError(t, err)

	doc, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "Know", doc[FieldPurpose])

	_, err = Decode([]byte("null"))
	assert.Error(t, err)
	_, err = Decode([]byte("[1]"))
	assert.Error(t, err)
}
