// Package cli provides the command-line interface for quizdeck.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/quizdeck/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose    bool
	noProgress bool
	dataDir    string

	// Global config, loaded before every command that needs it
	cfg config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "quizdeck",
	Short: "Turn video transcripts and notes into quizzes and flashcards",
	Long: `Quizdeck turns a video transcript or pasted text into an open-ended quiz.

Each run writes a two-section PDF (student and teacher versions) and pushes
one flashcard per question to Anki through AnkiConnect. Every artifact is
kept under the data directory, keyed by source ID.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Commands that never touch configuration
		switch cmd.Name() {
		case "id", "version", "help":
			return nil
		}

		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if verbose {
			cfg.LogLevel = slog.LevelDebug
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "plain log output instead of the progress display")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "artifact directory (overrides QUIZDECK_DATA_DIR)")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(idCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(statsCmd)
}

// interactive reports whether the progress display should own the terminal.
func interactive() bool {
	return !noProgress && term.IsTerminal(int(os.Stdout.Fd())) && term.IsTerminal(int(os.Stdin.Fd()))
}

// setupLogger returns the run logger. While the progress display is active,
// logs go to the log file only.
func setupLogger(tui bool) (*slog.Logger, func() error) {
	if tui {
		return config.SetupFileLogger(cfg.LogFile, cfg.LogLevel)
	}
	return config.SetupLogger(cfg.LogFile, cfg.LogLevel)
}
