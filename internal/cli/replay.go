package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/quizdeck/internal/metrics"
	"github.com/raphaelgruber/quizdeck/internal/pipeline"
)

var (
	replayDeck  string
	replayStats bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <source-id>",
	Short: "Re-run extraction and outputs from a saved completion",
	Long: `Re-run the extract and output stages from the raw completion saved by an
earlier run. No transcript is fetched and no completion is requested.

Use this after a schema failure: edit the saved response under
raw/openai_responses/<source-id>.json, then replay it.

Examples:
  quizdeck replay dQw4w9WgXcQ
  quizdeck replay text-biology-week-3-1a2b3c4d --deck "Biology::Week 3"`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().StringVar(&replayDeck, "deck", "", "deck name when no metadata was saved (default: source ID)")
	replayCmd.Flags().BoolVar(&replayStats, "stats", false, "print stage timings after the replay")
}

func runReplay(cmd *cobra.Command, args []string) error {
	sourceID := args[0]
	return execute(cmd.Context(), "replay "+sourceID, replayStats, replayPipeline, func(ctx context.Context, p *pipeline.Pipeline, obs pipeline.Observer) (*pipeline.Result, error) {
		return p.Observe(obs).Replay(ctx, sourceID, replayDeck)
	})
}

// replayPipeline wires only what replay touches: no transcript provider and
// no completion model, so no API key is needed.
func replayPipeline(_ context.Context, logger *slog.Logger, collector *metrics.Collector) (*pipeline.Pipeline, error) {
	return pipeline.Assemble(cfg, nil, nil, logger, collector), nil
}
