package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewVerifyCmd creates the 'verify' command for verifying configuration.
func NewVerifyCmd(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify configuration and storage",
		Long: `Verify that the configuration is valid, that storage and the checkpoint
store open, and report the index sizes.`,
		Example: `  tool-hub-search verify`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := g.configFile()
			if err != nil {
				return fmt.Errorf("failed to get config path: %w", err)
			}

			app, err := newApp(cmd.Context(), g)
			if err != nil {
				return fmt.Errorf("configuration error: %w", err)
			}
			defer app.Close()

			return runVerify(cmd.Context(), cmd.OutOrStdout(), path, app)
		},
	}

	return cmd
}

// runVerify prints the state of each component.
func runVerify(ctx context.Context, w io.Writer, path string, app *App) error {
	cfg := app.Config

	fmt.Fprintf(w, "✓ Config file: %s\n", path)
	fmt.Fprintf(w, "✓ Catalog source: %s\n", cfg.Sync.Source)
	if app.Storage.Enabled() {
		fmt.Fprintln(w, "✓ Storage: enabled")
	} else {
		fmt.Fprintln(w, "✗ Storage: disabled (indices are in memory only)")
	}
	fmt.Fprintf(w, "✓ Checkpoints: %s\n", cfg.Checkpoint.Backend)

	tools, servers, err := app.Indexer.Counts(ctx)
	if err != nil {
		fmt.Fprintf(w, "✗ Index: %v\n", err)
		return err
	}
	fmt.Fprintf(w, "✓ Indexed tools: %d\n", tools)
	fmt.Fprintf(w, "✓ Indexed servers: %d\n", servers)

	if kw := app.Indexer.keyword; kw != nil {
		docs, err := kw.Count()
		if err != nil {
			fmt.Fprintf(w, "✗ Keyword index: %v\n", err)
			return err
		}
		fmt.Fprintf(w, "✓ Keyword index: %d tools\n", docs)
	} else {
		fmt.Fprintln(w, "✓ Keyword index: served by the aggregator")
	}

	for _, spec := range cfg.ServerSpecs() {
		fmt.Fprintf(w, "✓ %s: %s\n", spec.Name, spec.Command)
	}
	return nil
}
