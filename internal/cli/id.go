package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/quizdeck/internal/models"
	"github.com/raphaelgruber/quizdeck/internal/source"
)

var idHint bool

var idCmd = &cobra.Command{
	Use:   "id <video-url | hint>",
	Short: "Print the source ID a run would use",
	Long: `Print the source ID derived from a video URL, or with --hint the ID a text
source with that hint gets. Artifacts are stored under this ID.

Examples:
  quizdeck id https://www.youtube.com/watch?v=dQw4w9WgXcQ
  quizdeck id --hint "Biology week 3"`,
	Args: cobra.ExactArgs(1),
	RunE: runID,
}

func init() {
	idCmd.Flags().BoolVar(&idHint, "hint", false, "treat the argument as a text-source hint")
}

func runID(cmd *cobra.Command, args []string) error {
	if idHint {
		fmt.Fprintln(cmd.OutOrStdout(), source.DeriveTextID(args[0]))
		return nil
	}
	id, ok := source.DeriveVideoID(args[0])
	if !ok {
		return fmt.Errorf("%w: no video ID in %q", models.ErrInput, args[0])
	}
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}
