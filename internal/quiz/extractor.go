// Package quiz turns completion text into validated quiz sets.
package quiz

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/raphaelgruber/quizdeck/internal/models"
)

// Extractor parses provider output into a quiz set. Implementations must be
// pure: the same input always yields the same set or the same failure.
type Extractor interface {
	Extract(raw string) (models.QuizSet, error)
}

// Policy decides what happens to malformed items in an otherwise valid array.
type Policy int

const (
	// RejectBatch fails the whole extraction if any item is malformed.
	RejectBatch Policy = iota
	// SkipInvalid drops malformed items and keeps the rest.
	SkipInvalid
)

const fence = "```"

// FencedJSONExtractor reads the first ```json fenced block and parses it
// strictly as an array of quiz items.
type FencedJSONExtractor struct {
	Policy Policy
}

// Compile-time check that FencedJSONExtractor implements Extractor.
var _ Extractor = FencedJSONExtractor{}

// NewExtractor returns the default extractor (whole-batch rejection).
func NewExtractor() FencedJSONExtractor {
	return FencedJSONExtractor{Policy: RejectBatch}
}

// Extract locates the JSON block, parses it and validates every item.
func (e FencedJSONExtractor) Extract(raw string) (models.QuizSet, error) {
	block, ok := locateJSONBlock(raw)
	if !ok {
		return nil, models.NewSchemaError("no JSON block", raw, nil)
	}

	items, err := parseItems(block)
	if err != nil {
		return nil, err
	}

	set, err := e.validate(items)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, models.NewSchemaError("empty quiz", block, nil)
	}
	return set, nil
}

// locateJSONBlock returns the body of the first fence tagged json. The tag is
// matched case-insensitively and may be followed by trailing spaces. A json
// body may also start on the tag line. An unterminated fence is not a block.
func locateJSONBlock(raw string) (string, bool) {
	rest := raw
	for {
		open := strings.Index(rest, fence)
		if open < 0 {
			return "", false
		}
		tag, body := splitFence(rest[open+len(fence):])

		end := strings.Index(body, fence)
		if end < 0 {
			return "", false
		}

		if strings.EqualFold(tag, "json") {
			return strings.TrimSpace(body[:end]), true
		}
		// Skip the whole non-json block, including its closing fence.
		rest = body[end+len(fence):]
	}
}

// splitFence separates the info string after an opening fence from the
// block body, which normally starts on the next line.
func splitFence(after string) (tag, body string) {
	line, next, _ := strings.Cut(after, "\n")
	if len(line) > len("json") && strings.EqualFold(line[:4], "json") {
		switch line[4] {
		case ' ', '\t', '[', '{':
			if strings.TrimSpace(line[4:]) != "" {
				return "json", after[4:]
			}
		}
	}
	return strings.TrimSpace(line), next
}

// rawItem keeps fields as raw JSON so non-string values are caught instead of
// being silently zeroed by the decoder.
type rawItem map[string]json.RawMessage

func parseItems(block string) ([]rawItem, error) {
	dec := json.NewDecoder(strings.NewReader(block))

	var items []rawItem
	if err := dec.Decode(&items); err != nil {
		return nil, models.NewSchemaError("malformed JSON", block, err)
	}
	// Anything after the array, including a stray closing bracket, means the
	// block was not a single JSON value.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, models.NewSchemaError("malformed JSON", block, fmt.Errorf("trailing data after array"))
	}
	return items, nil
}

func (e FencedJSONExtractor) validate(items []rawItem) (models.QuizSet, error) {
	set := make(models.QuizSet, 0, len(items))
	for i, raw := range items {
		item, err := decodeItem(raw)
		if err != nil {
			if e.Policy == SkipInvalid {
				continue
			}
			return nil, models.NewSchemaError(fmt.Sprintf("item %d invalid", i+1), itemSnippet(raw), err)
		}
		set = append(set, item)
	}
	return set, nil
}

func decodeItem(raw rawItem) (models.QuizItem, error) {
	if raw == nil {
		return models.QuizItem{}, fmt.Errorf("item is not an object")
	}
	var item models.QuizItem
	fields := []struct {
		key string
		dst *string
	}{
		{"question", &item.Question},
		{"answer", &item.Answer},
		{"explanation", &item.Explanation},
	}
	for _, f := range fields {
		v, ok := raw[f.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, f.dst); err != nil {
			return models.QuizItem{}, fmt.Errorf("field %s is not a string", f.key)
		}
		*f.dst = strings.TrimSpace(*f.dst)
	}
	if err := item.Validate(); err != nil {
		return models.QuizItem{}, err
	}
	return item, nil
}

func itemSnippet(raw rawItem) string {
	data, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(data)
}
