package study

import "fmt"

// System messages sent ahead of the user prompt.
const (
	SystemJSON      = "You are an expert Bible study curriculum designer. Always respond with valid JSON only."
	SystemPlainText = "You are an expert Bible study curriculum designer. Respond in plain text."
)

const studyPrompt = `You are an expert Bible study curriculum designer preparing an expository study for personal use.

Walk the reader through the passage below section by section, pairing an observation question with an interpretation question in each section.

Passage Reference: %s

Passage Text:
%s

Guidelines:
- Split the passage into 2-4 logical sections.
- Each section gets an observation question (what the text says) and an interpretation question (what it means), both with sample answers.
- A "connection" sentence may bridge a section to the next one.
- Close with 3 application questions without answers.
- Cross references only where the passage quotes or directly depends on another text, each with a short note. An empty list is fine.
- Stay with what the text clearly states; acknowledge debated readings briefly and let clearer Scripture interpret unclear Scripture.
- Doctrinal frame: Reformed Christian (Trinity, total depravity, unconditional election, substitutionary atonement, salvation by grace through faith, authority of Scripture, perseverance of the saints).

Output format: JSON only, no markdown fences, no preamble, with this structure:
{
  "purpose": "one action-focused sentence starting with a verb",
  "context": "2-3 sentences of historical, cultural or literary background",
  "key_themes": ["theme"],
  "study_flow": [
    {
      "passage_section": "verse range",
      "section_heading": "short heading",
      "observation_question": "...",
      "observation_answer": "...",
      "interpretation_question": "...",
      "interpretation_answer": "...",
      "connection": "optional bridge to the next section"
    }
  ],
  "summary": "2-3 sentences",
  "application_questions": ["...", "...", "..."],
  "cross_references": [{"reference": "Book Chapter:Verse", "note": "..."}],
  "prayer_prompt": "3-4 sentences"
}

Respond ONLY with valid JSON.`

// FormatPrompt renders the study-generation prompt for one passage.
func FormatPrompt(reference, passageText string) string {
	return fmt.Sprintf(studyPrompt, reference, passageText)
}
