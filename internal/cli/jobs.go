package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raphaelgruber/quizdeck/internal/client"
	"github.com/raphaelgruber/quizdeck/internal/models"
	"github.com/raphaelgruber/quizdeck/internal/service"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [job-id]",
	Short: "List or inspect server jobs",
	Long: `List all jobs on the quizdeck server or inspect a specific job by ID.

Examples:
  quizdeck jobs           # List all jobs
  quizdeck jobs abc123    # Show details for job abc123`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJobs,
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	c := client.New("")

	if len(args) == 1 {
		return showJob(ctx, c, args[0])
	}
	return listJobs(ctx, c)
}

func listJobs(ctx context.Context, c *client.Client) error {
	jobs, err := c.ListJobs(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}

	if len(jobs) == 0 {
		fmt.Println("No jobs found")
		return nil
	}

	fmt.Printf("%-10s %-9s %-10s %-13s %-30s %s\n", "ID", "TYPE", "STATUS", "STAGE", "SOURCE", "STARTED")
	fmt.Println("----------------------------------------------------------------------------------------------")

	for _, job := range jobs {
		fmt.Printf("%-10s %-9s %-10s %-13s %-30s %s\n",
			job.ID, job.Type, job.Status, job.Stage, models.Truncate(job.SourceID, 30), job.StartedAt.Format("15:04:05"))
	}
	return nil
}

func showJob(ctx context.Context, c *client.Client, id string) error {
	job, err := c.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if job == nil {
		return fmt.Errorf("job not found: %s", id)
	}
	printJob(job)
	return nil
}

func printJob(job *service.JobView) {
	fmt.Printf("Job: %s\n", job.ID)
	fmt.Printf("  Type: %s\n", job.Type)
	fmt.Printf("  Status: %s\n", job.Status)
	if job.SourceID != "" {
		fmt.Printf("  Source: %s\n", job.SourceID)
	}
	if job.Stage != "" {
		fmt.Printf("  Stage: %s (%d/%d)\n", job.Stage, job.Progress, job.Total)
	}
	fmt.Printf("  Started: %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		fmt.Printf("  Duration: %s\n", job.CompletedAt.Sub(job.StartedAt).Round(time.Second))
	}

	if job.Error != "" {
		fmt.Printf("  Error: [%s] %s\n", job.ErrorKind, job.Error)
	}

	if job.Result != nil {
		fmt.Println()
		fmt.Print(formatResult(defaultTheme, job.Result))
	}
}
