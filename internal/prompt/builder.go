// Package prompt renders transcripts into quiz-generation prompts.
package prompt

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/raphaelgruber/quizdeck/internal/config"
	"github.com/raphaelgruber/quizdeck/internal/models"
)

// DefaultMaxTranscriptChars keeps a transcript comfortably inside a 128k-token
// context window together with the instructions and the generated answer.
const DefaultMaxTranscriptChars = 60000

const systemPrompt = "You are an expert quiz generator. You only use information contained in the transcript you are given."

// userTemplate is the fixed instruction. Its verbs are %d (question count) and
// %s (transcript).
const userTemplate = `I will give you a transcript. Based ONLY on that transcript, and without using any outside knowledge:

1. Generate %d well-written open-ended questions.
- Each question should test reasoning, application, or connections across ideas, not just recall.
- Provide a strong sample answer with a short explanation of why it is correct.
- Every question, answer and explanation must be derivable from the transcript alone.

2. Return your output as a JSON array inside a single fenced code block tagged json, with exactly %d elements of the following structure:
` + "```json" + `
[
  {
    "question": "string",
    "answer": "string",
    "explanation": "string"
  }
]
` + "```" + `
All three fields are required and must be non-empty strings.

Transcript:
---
%s
---`

// QuizPrompt is a rendered, immutable prompt.
type QuizPrompt struct {
	System        string
	User          string
	QuestionCount int
	// Truncated reports that the transcript was cut to fit the size limit.
	Truncated bool
}

// String returns the full prompt text as sent to single-prompt providers.
func (p QuizPrompt) String() string {
	return p.System + "\n\n" + p.User
}

// Builder renders prompts. The zero value is not usable; use NewBuilder.
type Builder struct {
	MinQuestions       int
	MaxQuestions       int
	MaxTranscriptChars int
}

// NewBuilder creates a builder with the standard question bounds. A
// non-positive maxChars selects DefaultMaxTranscriptChars.
func NewBuilder(maxChars int) *Builder {
	if maxChars <= 0 {
		maxChars = DefaultMaxTranscriptChars
	}
	return &Builder{
		MinQuestions:       config.MinQuestions,
		MaxQuestions:       config.MaxQuestions,
		MaxTranscriptChars: maxChars,
	}
}

// Build renders a prompt. Question counts outside [MinQuestions,
// MaxQuestions] are rejected with models.ErrInput, never clamped. Transcripts
// longer than MaxTranscriptChars runes keep their head and lose their tail,
// cut at a whitespace boundary.
func (b *Builder) Build(transcript string, questionCount int) (QuizPrompt, error) {
	if questionCount < b.MinQuestions || questionCount > b.MaxQuestions {
		return QuizPrompt{}, fmt.Errorf("%w: question count %d outside [%d, %d]",
			models.ErrInput, questionCount, b.MinQuestions, b.MaxQuestions)
	}

	text := strings.TrimSpace(transcript)
	if text == "" {
		return QuizPrompt{}, fmt.Errorf("%w: transcript is empty", models.ErrInput)
	}

	text, truncated := truncateRunes(text, b.MaxTranscriptChars)

	return QuizPrompt{
		System:        systemPrompt,
		User:          fmt.Sprintf(userTemplate, questionCount, questionCount, text),
		QuestionCount: questionCount,
		Truncated:     truncated,
	}, nil
}

// truncateRunes keeps at most limit runes, backing up to the last whitespace
// in the final tenth of the window so words are not split.
func truncateRunes(s string, limit int) (string, bool) {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s, false
	}

	cut := limit
	floor := limit - limit/10
	for i := limit; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimRightFunc(string(runes[:cut]), unicode.IsSpace), true
}
