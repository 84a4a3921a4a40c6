package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raphaelgruber/quizdeck/internal/models"
	"github.com/raphaelgruber/quizdeck/internal/output"
	"github.com/raphaelgruber/quizdeck/internal/pipeline"
)

// formatResult renders a finished run for the terminal.
func formatResult(theme Theme, res *pipeline.Result) string {
	if res == nil {
		return theme.completedStyle().Render("✓ Completed") + "\n"
	}

	var b strings.Builder
	b.WriteString(theme.completedStyle().Render("✓ Completed") + "\n\n")
	fmt.Fprintf(&b, "  Source:     %s\n", res.SourceID)
	fmt.Fprintf(&b, "  Questions:  %d\n", len(res.QuizData))
	if res.Deck != "" {
		fmt.Fprintf(&b, "  Deck:       %s\n", res.Deck)
	}
	if res.Artifacts.Quiz != "" {
		fmt.Fprintf(&b, "  Quiz JSON:  %s\n", res.Artifacts.Quiz)
	}
	if res.Artifacts.Document != "" {
		fmt.Fprintf(&b, "  Document:   %s\n", res.Artifacts.Document)
	}

	for _, s := range res.Sinks {
		switch {
		case s.Skipped:
			fmt.Fprintf(&b, "  %-11s skipped\n", s.Sink+":")
		case s.Sink == output.SinkFlashcards && s.Cards != nil:
			fmt.Fprintf(&b, "  %-11s %d added, %d duplicates, %d failed\n",
				s.Sink+":", s.Cards.Added, s.Cards.Duplicates, s.Cards.Failed)
		case !s.OK:
			fmt.Fprintf(&b, "  %-11s failed\n", s.Sink+":")
		}
	}

	if len(res.Warnings) > 0 {
		b.WriteString(theme.errorStyle().Render(fmt.Sprintf("\nWarnings (%d):", len(res.Warnings))) + "\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "  • %s\n", w)
		}
	}
	return b.String()
}

// failureHint suggests a next step for recoverable failures.
func failureHint(res *pipeline.Result, err error) string {
	switch {
	case errors.Is(err, models.ErrSchemaViolation) && res != nil && res.Artifacts.RawResponse != "":
		return fmt.Sprintf("The raw response is kept at %s.\nFix it, then run 'quizdeck replay %s'.\n",
			res.Artifacts.RawResponse, res.SourceID)
	case errors.Is(err, models.ErrTranscriptUnavailable):
		return "The video has no captions. Paste the text with --text or --file instead.\n"
	case errors.Is(err, models.ErrCompletionUnavailable):
		return "The completion provider kept failing. Check the API key and try again later.\n"
	default:
		return ""
	}
}

// kindError prefixes err with its taxonomy kind for the exit message.
func kindError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("[%s] %w", models.Kind(err), err)
}
