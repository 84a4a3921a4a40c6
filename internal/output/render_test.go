package output

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/quizdeck/internal/config"
	"github.com/raphaelgruber/quizdeck/internal/metrics"
	"github.com/raphaelgruber/quizdeck/internal/models"
)

// recordingBuilder captures the blocks it is asked to build.
type recordingBuilder struct {
	blocks []Block
	path   string
	err    error
}

func (b *recordingBuilder) Build(blocks []Block, path string) error {
	b.blocks = blocks
	b.path = path
	return b.err
}

func sampleSet(n int) models.QuizSet {
	set := make(models.QuizSet, n)
	for i := range set {
		set[i] = models.QuizItem{
			Question:    "Question " + string(rune('A'+i)),
			Answer:      "Answer " + string(rune('A'+i)),
			Explanation: "Because " + string(rune('A'+i)),
		}
	}
	return set
}

func countKind(blocks []Block, kind BlockKind) int {
	n := 0
	for _, b := range blocks {
		if b.Kind == kind {
			n++
		}
	}
	return n
}

func TestRendererBlocksLayout(t *testing.T) {
	r := NewRenderer(&recordingBuilder{}, config.NewPaths(t.TempDir()), nil, nil)
	blocks := r.Blocks(sampleSet(3))

	assert.Equal(t, 2, countKind(blocks, BlockTitle))
	assert.Equal(t, 1, countKind(blocks, BlockPageBreak))
	// 3 questions in each section plus 3 answers and 3 explanations.
	assert.Equal(t, 12, countKind(blocks, BlockParagraph))

	assert.Equal(t, Block{Kind: BlockTitle, Text: StudentHeading}, blocks[0])

	breakAt := -1
	for i, b := range blocks {
		if b.Kind == BlockPageBreak {
			breakAt = i
		}
	}
	require.Greater(t, breakAt, 0)
	assert.Equal(t, Block{Kind: BlockTitle, Text: TeacherHeading}, blocks[breakAt+1])

	// Student section: numbered question followed by writing space.
	student := blocks[:breakAt]
	assert.Equal(t, "1. Question A", student[2].Text)
	assert.Equal(t, Block{Kind: BlockSpacer, Height: 84}, student[3])
	assert.Equal(t, "3. Question C", student[6].Text)
	for _, b := range student {
		assert.NotContains(t, b.Text, "Answer")
	}

	// Teacher section: numbering restarts at 1.
	teacher := blocks[breakAt+1:]
	assert.Equal(t, "1. Question A", teacher[2].Text)
	assert.Equal(t, Block{Kind: BlockParagraph, Text: "Answer: Answer A", Style: StyleItalic}, teacher[3])
	assert.Equal(t, "Explanation: Because A", teacher[4].Text)
	assert.Equal(t, Block{Kind: BlockSpacer, Height: 12}, teacher[5])
}

func TestRendererBlocksPure(t *testing.T) {
	r := NewRenderer(&recordingBuilder{}, config.NewPaths(t.TempDir()), nil, nil)
	set := sampleSet(5)
	assert.Equal(t, r.Blocks(set), r.Blocks(set))
}

func TestRenderWritesToDocumentPath(t *testing.T) {
	paths := config.NewPaths(t.TempDir())
	builder := &recordingBuilder{}
	collector := metrics.NewCollector()
	r := NewRenderer(builder, paths, nil, collector)

	path, err := r.Render(sampleSet(2), "vid123")
	require.NoError(t, err)
	assert.Equal(t, paths.Document("vid123"), path)
	assert.Equal(t, path, builder.path)
	assert.NotEmpty(t, builder.blocks)
	assert.EqualValues(t, 1, collector.Snapshot().RenderDocument.Count)
}

func TestRenderFailureIsSinkFailure(t *testing.T) {
	builder := &recordingBuilder{err: errors.New("disk full")}
	r := NewRenderer(builder, config.NewPaths(t.TempDir()), nil, nil)

	_, err := r.Render(sampleSet(1), "vid")
	assert.ErrorIs(t, err, models.ErrSinkFailure)
	assert.Contains(t, err.Error(), "disk full")

	_, err = r.Render(nil, "vid")
	assert.ErrorIs(t, err, models.ErrSinkFailure)
}

func TestPDFBuilderWritesPDF(t *testing.T) {
	paths := config.NewPaths(t.TempDir())
	r := NewRenderer(NewPDFBuilder(), paths, nil, nil)

	set := models.QuizSet{
		{Question: "Qu'est-ce que l'évaporation ?", Answer: "Le passage à l'état gazeux.", Explanation: "Chaleur du soleil."},
		{Question: "What is precipitation?", Answer: "Rain, snow or hail.", Explanation: "Water falls from clouds."},
	}
	path, err := r.Render(set, "water_cycle")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "%PDF-"))
	assert.Equal(t, "water_cycle.pdf", filepath.Base(path))
}

func TestPDFBuilderRejectsUnknownBlock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.pdf")
	err := NewPDFBuilder().Build([]Block{{Kind: BlockKind(99)}}, path)
	require.Error(t, err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}
