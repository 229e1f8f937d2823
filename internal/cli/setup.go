package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/khanglvm/tool-hub-search/internal/config"
	"github.com/spf13/cobra"
)

// NewSetupCmd creates the 'setup' command for writing a starting config.
//
// Setup:
// 1. Starts from the defaults
// 2. Applies the flags
// 3. Validates and saves to ~/.tool-hub-search.json (keeping a .bak of any existing file)
func NewSetupCmd(g *globalOptions) *cobra.Command {
	var (
		force         bool
		aggregatorURL string
		backend       string
		checkpoints   string
	)

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the configuration file",
		Long: `Write a configuration file with defaults for every section.

The file is JSONC: comments and trailing commas are allowed when editing
it by hand. An existing file is only replaced with --force, and the
previous version is kept as a .bak file.`,
		Example: `  # Defaults: local aggregator, offline hash embeddings
  tool-hub-search setup

  # Use Ollama embeddings and keep checkpoints in SQLite
  tool-hub-search setup --embedding ollama --checkpoint sqlite --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := g.configFile()
			if err != nil {
				return err
			}

			cfg := config.NewConfig()
			if aggregatorURL != "" {
				cfg.Aggregator.URL = aggregatorURL
			}
			if backend != "" {
				cfg.Embedding.Backend = backend
			}
			if checkpoints != "" {
				cfg.Checkpoint.Backend = checkpoints
			}
			return runSetup(cmd.OutOrStdout(), path, cfg, force)
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing config")
	cmd.Flags().StringVar(&aggregatorURL, "aggregator-url", "", "Aggregator base URL")
	cmd.Flags().StringVar(&backend, "embedding", "", "Embedding backend: hash, ollama or openai")
	cmd.Flags().StringVar(&checkpoints, "checkpoint", "", "Checkpoint backend: memory, sqlite or postgres")

	return cmd
}

// runSetup saves cfg to path unless a config already exists.
func runSetup(w io.Writer, path string, cfg *config.Config, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", path)
	}

	if err := config.Save(cfg, path); err != nil {
		return err
	}

	fmt.Fprintf(w, "✓ Config written to %s\n", path)
	fmt.Fprintf(w, "  Catalog source: %s\n", cfg.Sync.Source)
	fmt.Fprintf(w, "  Embeddings:     %s\n", cfg.Embedding.Backend)
	fmt.Fprintf(w, "  Checkpoints:    %s\n", cfg.Checkpoint.Backend)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Next: run 'tool-hub-search sync' to index the catalog.")
	return nil
}
