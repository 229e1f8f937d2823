package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/khanglvm/tool-hub-search/internal/indexing"
	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/spf13/cobra"
)

// NewIndexServerCmd creates the 'index-server' command for indexing server
// summaries used as search context.
func NewIndexServerCmd(g *globalOptions) *cobra.Command {
	var (
		file         string
		summary      string
		capabilities []string
		useCases     []string
	)

	cmd := &cobra.Command{
		Use:   "index-server [name]",
		Short: "Index server summaries",
		Long: `Index one or more server summaries. Summaries give every tool of a
server shared context during semantic search.

FILE MODE:
  A JSON or JSONC file holding one summary object or an array of them:
    {"server_name": "github", "summary": "...", "capabilities": [...], "typical_use_cases": [...]}

FLAG MODE:
  Give the server name and describe it with flags.`,
		Example: `  tool-hub-search index-server --file servers.jsonc
  tool-hub-search index-server github --summary "GitHub repository management" \
    --capability issues --capability "pull requests" --use-case "triage bugs"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var summaries []indexing.ServerSummary
			switch {
			case file != "":
				data, err := readInput(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				if summaries, err = parseSummaries(data); err != nil {
					return fmt.Errorf("failed to parse %s: %w", file, err)
				}
			case len(args) == 1:
				summaries = []indexing.ServerSummary{{
					ServerName:      args[0],
					Summary:         summary,
					Capabilities:    capabilities,
					TypicalUseCases: useCases,
				}}
			default:
				return fmt.Errorf("server name or --file required")
			}

			app, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer app.Close()

			out := cmd.OutOrStdout()
			var failed int
			for _, s := range summaries {
				if err := app.Indexer.IndexServerSummary(cmd.Context(), s); err != nil {
					fmt.Fprintf(out, "✗ %s: %v\n", s.ServerName, err)
					failed++
					continue
				}
				fmt.Fprintf(out, "✓ Indexed server: %s\n", s.ServerName)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d summaries failed", failed, len(summaries))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Summaries file (JSON/JSONC), or - for stdin")
	cmd.Flags().StringVarP(&summary, "summary", "s", "", "Server summary")
	cmd.Flags().StringArrayVarP(&capabilities, "capability", "c", nil, "Capability (repeatable)")
	cmd.Flags().StringArrayVarP(&useCases, "use-case", "u", nil, "Typical use case (repeatable)")

	return cmd
}

// parseSummaries accepts a single summary object or an array of them.
func parseSummaries(data []byte) ([]indexing.ServerSummary, error) {
	clean := bytes.TrimSpace(jsonc.ToJSON(data))
	if len(clean) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	if clean[0] == '[' {
		var list []indexing.ServerSummary
		if err := json.Unmarshal(clean, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var one indexing.ServerSummary
	if err := json.Unmarshal(clean, &one); err != nil {
		return nil, err
	}
	return []indexing.ServerSummary{one}, nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}
