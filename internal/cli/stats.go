package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/quizdeck/internal/client"
	"github.com/raphaelgruber/quizdeck/internal/metrics"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show server statistics",
	Long: `Show in-memory stage timings and token usage of a running quizdeck server.

Examples:
  quizdeck stats
  quizdeck stats --json`,
	Args: cobra.NoArgs,
	RunE: runStatsCmd,
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "print the raw snapshot as JSON")
}

func runStatsCmd(cmd *cobra.Command, args []string) error {
	snap, err := client.New("").Stats(context.Background())
	if err != nil {
		return fmt.Errorf("get server stats: %w", err)
	}
	if statsJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}
	printSnapshot(*snap)
	return nil
}

// printSnapshot displays stage statistics.
func printSnapshot(s metrics.Snapshot) {
	fmt.Printf("\nStatistics (in-memory, since start)\n")
	fmt.Printf("═══════════════════════════════════════════════\n")
	fmt.Printf("Uptime: %.1f seconds\n", s.UptimeSeconds)

	sections := []struct {
		name   string
		op     *metrics.OperationSnapshot
		tokens bool
	}{
		{"Pipeline runs", s.PipelineRun, false},
		{"Ingest", s.Ingest, false},
		{"Completion", s.LLMGenerate, true},
		{"Completion failures", s.LLMFailure, false},
		{"Extract", s.Extract, false},
		{"Render document", s.RenderDocument, false},
		{"Publish deck", s.PublishDeck, false},
	}
	for _, sec := range sections {
		if sec.op == nil {
			continue
		}
		fmt.Printf("\n%s:\n", sec.name)
		printOpStats(sec.op)
		if sec.tokens {
			printTokenStats(sec.op)
		}
	}
}

// printOpStats displays timing statistics for an operation.
func printOpStats(op *metrics.OperationSnapshot) {
	fmt.Printf("  Calls: %d, Total: %dms\n", op.Count, op.TotalTimeMs)
	fmt.Printf("  Time: avg %.1fms, min %dms, max %dms\n",
		op.AvgTimeMs, op.MinTimeMs, op.MaxTimeMs)
}

// printTokenStats displays token statistics if available.
func printTokenStats(op *metrics.OperationSnapshot) {
	if op.TotalInputTokens == nil || op.TotalOutputTokens == nil {
		return
	}
	fmt.Printf("  Tokens In:  %d total", *op.TotalInputTokens)
	if op.AvgInputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgInputTokens)
	}
	fmt.Println()

	fmt.Printf("  Tokens Out: %d total", *op.TotalOutputTokens)
	if op.AvgOutputTokens != nil {
		fmt.Printf(", avg %.0f", *op.AvgOutputTokens)
	}
	fmt.Println()
}
