package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/khanglvm/tool-hub-search/internal/catalog"
	"github.com/spf13/cobra"
)

// errNoLocalKeyword is returned when the aggregator serves keyword search.
var errNoLocalKeyword = errors.New("no local keyword index: keyword search is served by the aggregator")

type keywordIndex interface {
	Search(ctx context.Context, text string, limit int) ([]catalog.Tool, error)
	SearchByServer(ctx context.Context, text, serverName string, limit int) ([]catalog.Tool, error)
}

// NewKeywordCmd creates the 'keyword' command for querying the local BM25
// index directly.
func NewKeywordCmd(g *globalOptions) *cobra.Command {
	var (
		server     string
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "keyword <query>",
		Short: "Query the local keyword index",
		Long: `Run a BM25 keyword query against the local index built by sync, without
semantic ranking. Use --server to restrict hits to one server.

Not available when sync.source is the aggregator.`,
		Example: `  tool-hub-search keyword "create issue"
  tool-hub-search keyword note --server my-server --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.Indexer.keyword == nil {
				return errNoLocalKeyword
			}
			tools, err := runKeyword(cmd.Context(), app.Indexer.keyword, strings.Join(args, " "), server, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), tools)
			}
			printKeyword(cmd.OutOrStdout(), tools)
			return nil
		},
	}

	cmd.Flags().StringVarP(&server, "server", "s", "", "Only match tools of this server")
	cmd.Flags().IntVarP(&limit, "limit", "l", 10, "Maximum results")
	cmd.Flags().BoolVarP(&jsonOutput, "json", "j", false, "Output as JSON")

	return cmd
}

func runKeyword(ctx context.Context, idx keywordIndex, text, server string, limit int) ([]catalog.Tool, error) {
	var (
		tools []catalog.Tool
		err   error
	)
	if server != "" {
		tools, err = idx.SearchByServer(ctx, text, server, limit)
	} else {
		tools, err = idx.Search(ctx, text, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	return tools, nil
}

func printKeyword(w io.Writer, tools []catalog.Tool) {
	if len(tools) == 0 {
		fmt.Fprintln(w, "No matching tools found.")
		return
	}

	fmt.Fprintf(w, "Keyword matches (%d):\n\n", len(tools))
	for i, t := range tools {
		fmt.Fprintf(w, "  %d. %s\n", i+1, t.Name)
		fmt.Fprintf(w, "     Server: %s  BM25: %.3f\n", t.Server, t.Score)
	}
}
