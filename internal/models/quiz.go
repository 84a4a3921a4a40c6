package models

import (
	"fmt"
	"strings"
)

// QuizItem is one open-ended question with its sample answer.
type QuizItem struct {
	Question    string `json:"question"`
	Answer      string `json:"answer"`
	Explanation string `json:"explanation"`
}

// Validate checks that all three fields carry text.
func (q QuizItem) Validate() error {
	var missing []string
	if strings.TrimSpace(q.Question) == "" {
		missing = append(missing, "question")
	}
	if strings.TrimSpace(q.Answer) == "" {
		missing = append(missing, "answer")
	}
	if strings.TrimSpace(q.Explanation) == "" {
		missing = append(missing, "explanation")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// FlashcardBack is the text on the answer side of a card.
func (q QuizItem) FlashcardBack() string {
	return q.Answer + " Explanation: " + q.Explanation
}

// QuizSet is an ordered list of quiz items. Order is significant: it drives
// document numbering and flashcard creation order.
type QuizSet []QuizItem
