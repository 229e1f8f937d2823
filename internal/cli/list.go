package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/khanglvm/tool-hub-search/internal/indexing"
	"github.com/spf13/cobra"
)

// NewListCmd creates the 'servers' command for listing indexed server
// summaries.
func NewListCmd(g *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:     "servers",
		Aliases: []string{"ls"},
		Short:   "List indexed MCP server summaries",
		Long:    `Display every server summary in the server index, ordered by name.`,
		Example: `  tool-hub-search servers
  tool-hub-search ls
  tool-hub-search servers --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer app.Close()

			servers, err := app.Indexer.ListServers(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list servers: %w", err)
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), servers)
			}
			printServers(cmd.OutOrStdout(), servers)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func printServers(w io.Writer, servers []indexing.ServerSummary) {
	if len(servers) == 0 {
		fmt.Fprintln(w, "No server summaries indexed.")
		fmt.Fprintln(w, "Run 'tool-hub-search index-server' to add one.")
		return
	}

	fmt.Fprintf(w, "Indexed MCP Servers (%d):\n\n", len(servers))
	for _, s := range servers {
		fmt.Fprintf(w, "  %s\n", s.ServerName)
		if s.Summary != "" {
			fmt.Fprintf(w, "    Summary:      %s\n", s.Summary)
		}
		if len(s.Capabilities) > 0 {
			fmt.Fprintf(w, "    Capabilities: %s\n", strings.Join(s.Capabilities, ", "))
		}
		if len(s.TypicalUseCases) > 0 {
			fmt.Fprintf(w, "    Use cases:    %s\n", strings.Join(s.TypicalUseCases, ", "))
		}
		fmt.Fprintln(w)
	}
}
