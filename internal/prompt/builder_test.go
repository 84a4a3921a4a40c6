package prompt

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/raphaelgruber/quizdeck/internal/models"
)

const waterCycle = "The water cycle consists of evaporation, condensation, and precipitation."

func TestBuild(t *testing.T) {
	b := NewBuilder(0)

	p, err := b.Build(waterCycle, 5)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	for _, want := range []string{
		"Generate 5 well-written open-ended questions",
		"exactly 5 elements",
		`"question": "string"`,
		`"answer": "string"`,
		`"explanation": "string"`,
		"Based ONLY on that transcript",
		"without using any outside knowledge",
		"```json",
		waterCycle,
	} {
		if !strings.Contains(p.User, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if p.QuestionCount != 5 || p.Truncated {
		t.Errorf("Build() = count %d truncated %v", p.QuestionCount, p.Truncated)
	}
	if !strings.HasPrefix(p.String(), systemPrompt) {
		t.Error("String() should start with the system prompt")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	b := NewBuilder(0)
	first, err := b.Build(waterCycle, 12)
	if err != nil {
		t.Fatal(err)
	}
	for range 10 {
		again, _ := b.Build(waterCycle, 12)
		if again != first {
			t.Fatal("Build() output changed between calls")
		}
	}
}

func TestBuildQuestionBounds(t *testing.T) {
	b := NewBuilder(0)
	tests := []struct {
		count   int
		wantErr bool
	}{
		{4, true},
		{5, false},
		{20, false},
		{50, false},
		{51, true},
		{0, true},
		{-3, true},
	}
	for _, tt := range tests {
		_, err := b.Build(waterCycle, tt.count)
		if (err != nil) != tt.wantErr {
			t.Errorf("Build(count=%d) error = %v, wantErr %v", tt.count, err, tt.wantErr)
		}
		if err != nil && !errors.Is(err, models.ErrInput) {
			t.Errorf("Build(count=%d) error = %v, want ErrInput", tt.count, err)
		}
	}
}

func TestBuildEmptyTranscript(t *testing.T) {
	_, err := NewBuilder(0).Build(" \n\t", 10)
	if !errors.Is(err, models.ErrInput) {
		t.Errorf("Build() error = %v, want ErrInput", err)
	}
}

func TestBuildTruncatesTail(t *testing.T) {
	b := NewBuilder(100)
	words := strings.Repeat("alpha beta gamma ", 50)

	p, err := b.Build(words+"TAILMARKER", 5)
	if err != nil {
		t.Fatal(err)
	}
	if !p.Truncated {
		t.Error("Truncated = false, want true")
	}
	if strings.Contains(p.User, "TAILMARKER") {
		t.Error("tail of transcript should have been dropped")
	}
	if !strings.Contains(p.User, "alpha beta gamma") {
		t.Error("head of transcript should be kept")
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		name      string
		in        string
		limit     int
		want      string
		truncated bool
	}{
		{"under limit", "short text", 50, "short text", false},
		{"cut at space", "aaaa bbbb cccc", 10, "aaaa bbbb", true},
		{"no space in window", "abcdefghijkl", 5, "abcde", true},
		{"multibyte", "ééééé ééééé", 5, "ééééé", true},
		{"multibyte mid word", "ééééé ééééé", 8, "ééééé éé", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, truncated := truncateRunes(tt.in, tt.limit)
			if got != tt.want || truncated != tt.truncated {
				t.Errorf("truncateRunes(%q, %d) = (%q, %v), want (%q, %v)", tt.in, tt.limit, got, truncated, tt.want, tt.truncated)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncateRunes produced invalid UTF-8: %q", got)
			}
		})
	}
}
