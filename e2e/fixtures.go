package e2e

import "encoding/json"

const SamplePassage = "[1] In the beginning was the Word, and the Word was with God, and the Word was God. (ESV)"

const SampleStudyJSON = `{
  "purpose": "See how John introduces Jesus as the eternal Word.",
  "context": "John opens his Gospel before creation.",
  "key_themes": ["Word", "Light", "Life"],
  "study_flow": [
    {
      "passage_section": "John 1:1",
      "section_heading": "The Word Was God",
      "observation_question": "What three things are said of the Word?",
      "observation_answer": "It was in the beginning, with God, and was God.",
      "interpretation_question": "Why begin with 'In the beginning'?",
      "interpretation_answer": "It echoes Genesis 1.",
      "connection": "Genesis 1:1"
    }
  ],
  "summary": "Jesus is the eternal Word.",
  "application_questions": ["How does this shape your view of Jesus?"],
  "cross_references": [{"reference": "Genesis 1:1", "note": "Same opening"}],
  "prayer_prompt": "Thank God for sending the Word."
}`

func mustJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(b)
}

// chatCompletion is an OpenAI-compatible chat completion body.
func chatCompletion(content, finish string) string {
	return mustJSON(map[string]any{
		"id":      "chatcmpl-e2e",
		"object":  "chat.completion",
		"created": 1700000000,
		"model":   "llama-3.3-70b-versatile",
		"choices": []any{map[string]any{
			"index":         0,
			"finish_reason": finish,
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
		"usage": map[string]any{"prompt_tokens": 120, "completion_tokens": 480, "total_tokens": 600},
	})
}

// claudeMessage is an Anthropic messages API body.
func claudeMessage(text, stop string) string {
	return mustJSON(map[string]any{
		"id":          "msg_e2e",
		"type":        "message",
		"role":        "assistant",
		"content":     []any{map[string]any{"type": "text", "text": text}},
		"stop_reason": stop,
		"usage":       map[string]any{"input_tokens": 100, "output_tokens": 400},
	})
}

func esvPassage(text string) string {
	return mustJSON(map[string]any{"query": "John 1:1", "passages": []string{text}})
}
