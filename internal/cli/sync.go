package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/config"
	"github.com/khanglvm/tool-hub-search/internal/indexing"
	"github.com/spf13/cobra"
)

// NewSyncCmd creates the 'sync' command for indexing the tool catalog.
func NewSyncCmd(g *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		prune      bool
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Index the tool catalog",
		Long: `Fetch every tool from the configured source (the aggregator, or the
MCP servers listed in the config when sync.source is "mcp") and index it.

Tools that fail to embed are reported and skipped; the rest are indexed.`,
		Example: `  tool-hub-search sync
  tool-hub-search sync --prune   # also drop tools no longer listed`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), g, func(cfg *config.Config) {
				if prune {
					cfg.Sync.PruneStale = true
				}
			})
			if err != nil {
				return err
			}
			defer app.Close()

			report, err := app.Indexer.Sync(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			printReport(cmd.OutOrStdout(), report)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().BoolVar(&prune, "prune", false, "Remove indexed tools missing from the catalog")

	return cmd
}

func printReport(w io.Writer, r indexing.Report) {
	fmt.Fprintf(w, "✓ Successfully indexed %d tools in %s\n", r.Indexed, r.Duration.Round(time.Millisecond))
	if r.Skipped > 0 {
		fmt.Fprintf(w, "  Skipped: %d (missing name or server)\n", r.Skipped)
	}
	if r.Removed > 0 {
		fmt.Fprintf(w, "  Removed: %d stale tools\n", r.Removed)
	}
	if len(r.Unreachable) > 0 {
		fmt.Fprintf(w, "  Unreachable: %s (stale tools kept)\n", strings.Join(r.Unreachable, ", "))
	}
	if r.Failed > 0 {
		fmt.Fprintf(w, "✗ Failed: %d\n", r.Failed)
		for _, e := range r.Errors {
			fmt.Fprintf(w, "    %s: %s\n", e.Tool, e.Error)
		}
	}
}
