package output

import (
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/quizdeck/internal/config"
	"github.com/raphaelgruber/quizdeck/internal/metrics"
	"github.com/raphaelgruber/quizdeck/internal/models"
)

// Section headings and spacing of the two-part quiz document.
const (
	StudentHeading = "Open-Ended Quiz (Student Version)"
	TeacherHeading = "Open-Ended Quiz (Teacher Version)"

	headingGap   = 20.0
	writingSpace = 84.0
	answerGap    = 12.0
)

// Renderer turns a quiz set into a two-section document: questions only with
// room to write, then questions with answers and explanations.
type Renderer struct {
	builder DocumentBuilder
	paths   config.Paths
	logger  *slog.Logger
	metrics *metrics.Collector
}

// NewRenderer creates a renderer. Logger and collector may be nil.
func NewRenderer(builder DocumentBuilder, paths config.Paths, logger *slog.Logger, collector *metrics.Collector) *Renderer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Renderer{
		builder: builder,
		paths:   paths,
		logger:  logger,
		metrics: collector,
	}
}

// Blocks lays out the set. Both sections number items from 1 in set order.
func (r *Renderer) Blocks(set models.QuizSet) []Block {
	blocks := make([]Block, 0, 4+len(set)*6)

	blocks = append(blocks,
		Block{Kind: BlockTitle, Text: StudentHeading},
		Block{Kind: BlockSpacer, Height: headingGap},
	)
	for i, item := range set {
		blocks = append(blocks,
			Block{Kind: BlockParagraph, Text: fmt.Sprintf("%d. %s", i+1, item.Question)},
			Block{Kind: BlockSpacer, Height: writingSpace},
		)
	}

	blocks = append(blocks,
		Block{Kind: BlockPageBreak},
		Block{Kind: BlockTitle, Text: TeacherHeading},
		Block{Kind: BlockSpacer, Height: headingGap},
	)
	for i, item := range set {
		blocks = append(blocks,
			Block{Kind: BlockParagraph, Text: fmt.Sprintf("%d. %s", i+1, item.Question)},
			Block{Kind: BlockParagraph, Text: "Answer: " + item.Answer, Style: StyleItalic},
			Block{Kind: BlockParagraph, Text: "Explanation: " + item.Explanation},
			Block{Kind: BlockSpacer, Height: answerGap},
		)
	}
	return blocks
}

// Render writes processed/pdf_ready/<source_id>.pdf and returns its path.
// Failures match models.ErrSinkFailure.
func (r *Renderer) Render(set models.QuizSet, sourceID string) (string, error) {
	if len(set) == 0 {
		return "", fmt.Errorf("%w: document: empty quiz", models.ErrSinkFailure)
	}
	defer r.metrics.Time(metrics.OpRenderDocument)()

	path := r.paths.Document(sourceID)
	if err := r.builder.Build(r.Blocks(set), path); err != nil {
		r.logger.Error("document render failed", "source_id", sourceID, "error", err)
		return "", fmt.Errorf("%w: document: %w", models.ErrSinkFailure, err)
	}

	r.logger.Info("exported document", "source_id", sourceID, "path", path, "items", len(set))
	return path, nil
}
