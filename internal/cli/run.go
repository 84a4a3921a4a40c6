package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/quizdeck/internal/llm"
	"github.com/raphaelgruber/quizdeck/internal/metrics"
	"github.com/raphaelgruber/quizdeck/internal/models"
	"github.com/raphaelgruber/quizdeck/internal/pipeline"
	"github.com/raphaelgruber/quizdeck/internal/transcript"
)

var (
	runURL            string
	runText           string
	runFile           string
	runHint           string
	runDeck           string
	runQuestions      int
	runNoAnki         bool
	runNoPDF          bool
	runTranscriptsDir string
	runStats          bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Generate a quiz from a video or text",
	Long: `Generate an open-ended quiz from a video transcript or from text.

The quiz is saved as JSON, rendered to a two-section PDF and pushed to Anki as
flashcards. Flashcards need Anki running with the AnkiConnect add-on; without
it the run still succeeds and reports the deck sink as failed.

Examples:
  quizdeck run --url https://www.youtube.com/watch?v=dQw4w9WgXcQ
  quizdeck run --url https://youtu.be/dQw4w9WgXcQ -n 10 --no-anki
  quizdeck run --file notes.txt --hint "Biology week 3" --deck "Biology::Week 3"
  quizdeck run --text "Photosynthesis converts light into chemical energy..." -n 5`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runURL, "url", "", "video URL")
	runCmd.Flags().StringVar(&runText, "text", "", "text to build the quiz from")
	runCmd.Flags().StringVar(&runFile, "file", "", "read the text from a file ('-' for stdin)")
	runCmd.Flags().StringVar(&runHint, "hint", "", "name for a text source (used in its source ID)")
	runCmd.Flags().StringVar(&runDeck, "deck", "", "deck name when the video has no title/author (default: source ID)")
	runCmd.Flags().IntVarP(&runQuestions, "questions", "n", 0, "number of questions, 5-50 (default from config)")
	runCmd.Flags().BoolVar(&runNoAnki, "no-anki", false, "skip flashcard publishing")
	runCmd.Flags().BoolVar(&runNoPDF, "no-pdf", false, "skip the PDF document")
	runCmd.Flags().StringVar(&runTranscriptsDir, "transcripts-dir", "", "read video transcripts from <dir>/<id>.txt instead of fetching them")
	runCmd.Flags().BoolVar(&runStats, "stats", false, "print stage timings and token usage after the run")
	runCmd.MarkFlagsMutuallyExclusive("url", "text", "file")
	runCmd.MarkFlagsOneRequired("url", "text", "file")
}

func runRun(cmd *cobra.Command, args []string) error {
	text := runText
	if runFile != "" {
		data, err := readInput(runFile)
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", models.ErrInput, runFile, err)
		}
		text = string(data)
		if runHint == "" && runFile != "-" {
			runHint = strings.TrimSuffix(filepath.Base(runFile), filepath.Ext(runFile))
		}
	}

	in := pipeline.Input{
		VideoURL:      runURL,
		Text:          text,
		Hint:          runHint,
		DeckName:      runDeck,
		QuestionCount: runQuestions,
	}

	if runNoAnki {
		cfg.DisableAnki = true
	}
	if runNoPDF {
		cfg.DisablePDF = true
	}

	label := runURL
	if label == "" {
		label = "text input"
	}
	build := func(ctx context.Context, logger *slog.Logger, collector *metrics.Collector) (*pipeline.Pipeline, error) {
		return buildPipeline(ctx, runTranscriptsDir, logger, collector)
	}
	return execute(cmd.Context(), label, runStats, build, func(ctx context.Context, p *pipeline.Pipeline, obs pipeline.Observer) (*pipeline.Result, error) {
		return p.Observe(obs).Run(ctx, in)
	})
}

// pipelineBuilder creates the pipeline a command runs against.
type pipelineBuilder func(ctx context.Context, logger *slog.Logger, collector *metrics.Collector) (*pipeline.Pipeline, error)

// pipelineOp is one pipeline invocation made by a command.
type pipelineOp func(ctx context.Context, p *pipeline.Pipeline, obs pipeline.Observer) (*pipeline.Result, error)

// execute builds the pipeline and runs op with either the progress display
// or plain logs.
func execute(parent context.Context, label string, showStats bool, build pipelineBuilder, op pipelineOp) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	tui := interactive()
	logger, closeLog := setupLogger(tui)
	defer closeLog()

	collector := metrics.NewCollector()
	p, err := build(ctx, logger, collector)
	if err != nil {
		return err
	}

	var res *pipeline.Result
	if tui {
		res, err = RunLocalProgress(ctx, label, func(ctx context.Context, obs pipeline.Observer) (*pipeline.Result, error) {
			return op(ctx, p, obs)
		})
	} else {
		res, err = op(ctx, p, func(ev pipeline.StageEvent) {
			if ev.Stage != pipeline.StageFailed {
				logger.Info("stage", "stage", ev.Stage, "source_id", ev.SourceID)
			}
		})
		if err == nil {
			fmt.Print(formatResult(defaultTheme, res))
		} else if hint := failureHint(res, err); hint != "" {
			fmt.Fprint(os.Stderr, hint)
		}
	}

	if showStats {
		printSnapshot(collector.Snapshot())
	}
	return kindError(err)
}

// buildPipeline wires the production pipeline. A transcript directory
// replaces the YouTube provider for offline runs.
func buildPipeline(ctx context.Context, transcriptsDir string, logger *slog.Logger, collector *metrics.Collector) (*pipeline.Pipeline, error) {
	if transcriptsDir == "" {
		return pipeline.FromConfig(ctx, cfg, logger, collector)
	}
	model, err := llm.NewModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create completion model: %w", err)
	}
	return pipeline.Assemble(cfg, transcript.NewFileProvider(transcriptsDir), model, logger, collector), nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
