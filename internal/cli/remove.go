package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/khanglvm/tool-hub-search/internal/config"
	"github.com/spf13/cobra"
)

// serverRemover is satisfied by hubIndexer.
type serverRemover interface {
	RemoveServer(ctx context.Context, name string) (int, error)
}

// NewRemoveCmd creates the 'remove' command for removing MCP servers.
func NewRemoveCmd(g *globalOptions) *cobra.Command {
	var purge bool

	cmd := &cobra.Command{
		Use:     "remove <name>",
		Aliases: []string{"rm"},
		Short:   "Remove an MCP server",
		Long: `Remove an MCP server from the configuration.

Its tools stay indexed until a sync with --prune, unless --purge is given:
then the server summary and all of its tools are deleted from the index now.`,
		Example: `  tool-hub-search remove jira
  tool-hub-search rm jira --purge`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := g.configFile()
			if err != nil {
				return err
			}
			name := args[0]

			cfg, err := config.LoadOrDefault(path)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			_, configured := cfg.Servers[name]
			if configured {
				if err := runRemove(cmd.OutOrStdout(), path, name); err != nil {
					return err
				}
			}
			if !purge {
				if !configured {
					return fmt.Errorf("server '%s' not found", name)
				}
				return nil
			}

			app, err := newApp(cmd.Context(), g)
			if err != nil {
				return err
			}
			defer app.Close()
			return runPurge(cmd.Context(), cmd.OutOrStdout(), app.Indexer, name)
		},
	}

	cmd.Flags().BoolVar(&purge, "purge", false, "Also delete the server and its tools from the index")
	return cmd
}

// runRemove removes an MCP server from the configuration.
func runRemove(w io.Writer, path, name string) error {
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if _, exists := cfg.Servers[name]; !exists {
		return fmt.Errorf("server '%s' not found", name)
	}
	delete(cfg.Servers, name)

	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(w, "✓ Removed server '%s'\n", name)
	return nil
}

func runPurge(ctx context.Context, w io.Writer, r serverRemover, name string) error {
	removed, err := r.RemoveServer(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to purge server '%s': %w", name, err)
	}
	fmt.Fprintf(w, "✓ Purged %d tools of '%s' from the index\n", removed, name)
	return nil
}
