package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/quizdeck/internal/client"
	"github.com/raphaelgruber/quizdeck/internal/pipeline"
	"github.com/raphaelgruber/quizdeck/internal/service"
)

var (
	submitURL       string
	submitFile      string
	submitText      string
	submitHint      string
	submitDeck      string
	submitQuestions int
	submitReplay    string
	submitWait      bool
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Queue a quiz job on a quizdeck server",
	Long: `Queue a generation or replay job on a running quizdeck server and follow
its progress. Ctrl+C detaches; the job keeps running on the server.

The server is taken from QUIZDECK_SERVER_URL (default http://localhost:8585).

Examples:
  quizdeck submit --url https://youtu.be/dQw4w9WgXcQ
  quizdeck submit --file notes.txt --hint "Biology week 3" -n 10
  quizdeck submit --replay dQw4w9WgXcQ
  quizdeck submit --url https://youtu.be/dQw4w9WgXcQ --wait=false`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitURL, "url", "", "video URL")
	submitCmd.Flags().StringVar(&submitText, "text", "", "text to build the quiz from")
	submitCmd.Flags().StringVar(&submitFile, "file", "", "read the text from a file ('-' for stdin)")
	submitCmd.Flags().StringVar(&submitHint, "hint", "", "name for a text source (used in its source ID)")
	submitCmd.Flags().StringVar(&submitDeck, "deck", "", "fallback deck name")
	submitCmd.Flags().IntVarP(&submitQuestions, "questions", "n", 0, "number of questions, 5-50 (default from server config)")
	submitCmd.Flags().StringVar(&submitReplay, "replay", "", "replay the saved completion of this source ID")
	submitCmd.Flags().BoolVar(&submitWait, "wait", true, "follow the job until it finishes")
	submitCmd.MarkFlagsMutuallyExclusive("url", "text", "file", "replay")
	submitCmd.MarkFlagsOneRequired("url", "text", "file", "replay")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c := client.New("")

	var (
		job *service.JobView
		err error
	)
	if submitReplay != "" {
		job, err = c.SubmitReplay(ctx, submitReplay, submitDeck)
	} else {
		in := pipeline.Input{
			VideoURL:      submitURL,
			Text:          submitText,
			Hint:          submitHint,
			DeckName:      submitDeck,
			QuestionCount: submitQuestions,
		}
		if submitFile != "" {
			data, rerr := readInput(submitFile)
			if rerr != nil {
				return fmt.Errorf("read %s: %w", submitFile, rerr)
			}
			in.Text = string(data)
		}
		job, err = c.SubmitJob(ctx, in)
	}
	if err != nil {
		return fmt.Errorf("submit job: %w", err)
	}

	if !submitWait || !interactive() {
		fmt.Printf("Job %s queued (%s).\nUse 'quizdeck jobs %s' to check status.\n", job.ID, job.Type, job.ID)
		return nil
	}
	return RunJobProgress(c, job)
}
