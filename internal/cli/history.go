package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/storage"
	"github.com/spf13/cobra"
)

// NewHistoryCmd creates the 'history' command for reviewing recorded
// searches and checkpointed runs.
func NewHistoryCmd(g *globalOptions) *cobra.Command {
	var (
		since      time.Duration
		thread     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent searches",
		Long: `Show searches recorded in the local database. Queries are stored as
SHA-256 hashes, never in plain text.

With --thread, print the checkpointed state of each run on that thread
instead.`,
		Example: `  tool-hub-search history
  tool-hub-search history --since 1h
  tool-hub-search history --thread default --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			if thread != "" {
				states, err := app.Workflow.History(cmd.Context(), thread)
				if err != nil {
					return fmt.Errorf("failed to read checkpoints: %w", err)
				}
				if jsonOutput {
					return writeJSON(out, states)
				}
				fmt.Fprintf(out, "Thread %s: %d checkpoints\n", thread, len(states))
				for _, s := range states {
					fmt.Fprintf(out, "  %s  %-22s candidates=%d\n", s.SearchID, s.Stage, len(s.Candidates))
				}
				return nil
			}

			records, err := app.Storage.GetSearchHistory(time.Now().Add(-since))
			if err != nil {
				return fmt.Errorf("failed to read history: %w", err)
			}
			if jsonOutput {
				return writeJSON(out, records)
			}
			printHistory(out, records)
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 24*time.Hour, "How far back to look")
	cmd.Flags().StringVar(&thread, "thread", "", "Show checkpoints for a thread")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func printHistory(w io.Writer, records []storage.SearchRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "No searches recorded.")
		return
	}

	fmt.Fprintf(w, "Recent searches (%d):\n\n", len(records))
	for _, r := range records {
		status := "✓"
		if r.Failed {
			status = "✗"
		}
		fmt.Fprintf(w, "  %s %s  %-13s %3d results  %6s  %s  %s\n",
			status, r.Timestamp.Local().Format(time.DateTime), r.Mode, r.ResultsCount,
			r.Duration.Round(time.Millisecond), r.ThreadID, r.QueryHash[:min(12, len(r.QueryHash))])
	}
}
