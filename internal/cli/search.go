package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/khanglvm/tool-hub-search/internal/workflow"
	"github.com/spf13/cobra"
)

// NewSearchCmd creates the 'search' command for ranking tools from the
// command line.
func NewSearchCmd(g *globalOptions) *cobra.Command {
	var (
		mode       string
		limit      int
		weight     float64
		thread     string
		jsonOutput bool
		noReason   bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search indexed tools",
		Long: `Rank indexed tools for a natural-language query.

Modes:
  semantic       tool similarity blended with server context
  hybrid         semantic ranking fused with keyword search (default)
  context_aware  semantic ranking plus a recommended server`,
		Example: `  tool-hub-search search "create a github issue"
  tool-hub-search search "read a file" --mode semantic --limit 5
  tool-hub-search search "list pull requests" --weight 0.8 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := workflow.Request{
				Query:    strings.Join(args, " "),
				Mode:     mode,
				Limit:    limit,
				ThreadID: thread,
			}
			if cmd.Flags().Changed("weight") {
				req.SemanticWeight = &weight
			}
			if noReason {
				include := false
				req.IncludeReasoning = &include
			}

			app, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer app.Close()

			resp, err := app.Workflow.Run(cmd.Context(), req)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), resp)
			}
			printSearch(cmd.OutOrStdout(), resp)
			return nil
		},
	}

	cmd.Flags().StringVarP(&mode, "mode", "m", "", "Search mode: semantic, hybrid, context_aware")
	cmd.Flags().IntVarP(&limit, "limit", "l", 0, "Maximum results (default 15)")
	cmd.Flags().Float64VarP(&weight, "weight", "w", 0.6, "Semantic weight for hybrid mode, 0 to 1")
	cmd.Flags().StringVar(&thread, "thread", "", "Checkpoint thread ID")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")
	cmd.Flags().BoolVar(&noReason, "no-reasoning", false, "Omit per-tool reasoning")

	return cmd
}

func printSearch(w io.Writer, resp workflow.Response) {
	if resp.Error != "" {
		fmt.Fprintf(w, "✗ %s\n", resp.Error)
		return
	}
	if len(resp.Tools) == 0 {
		fmt.Fprintln(w, "No matching tools found.")
		return
	}

	fmt.Fprintf(w, "Found %d tools (mode: %s):\n\n", resp.Total, resp.Mode)
	for i, c := range resp.Tools {
		fmt.Fprintf(w, "  %d. %s\n", i+1, c.ToolName)
		fmt.Fprintf(w, "     Server: %s  Score: %.3f\n", c.ServerName, c.FinalScore)
		if c.Description != "" {
			fmt.Fprintf(w, "     %s\n", c.Description)
		}
		if c.Reasoning != "" {
			fmt.Fprintf(w, "     Why: %s\n", c.Reasoning)
		}
	}
	fmt.Fprintln(w)

	if resp.Recommendation != "" {
		fmt.Fprintf(w, "Recommended server: %s\n", resp.Recommendation)
	}
	if resp.Degraded != "" {
		fmt.Fprintf(w, "⚠ %s\n", resp.Degraded)
	}
	if resp.Reasoning != "" {
		fmt.Fprintf(w, "Reasoning: %s\n", resp.Reasoning)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
