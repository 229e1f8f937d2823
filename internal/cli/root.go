/*
Package cli implements the command-line interface for tool-hub-search.

Each command is implemented as a separate function that returns a *cobra.Command,
allowing for clean separation and easy testing. Commands that touch the
indices build an App from the global --config and --log-level flags.
*/
package cli

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/khanglvm/tool-hub-search/internal/config"
	"github.com/khanglvm/tool-hub-search/internal/version"
	"github.com/spf13/cobra"
)

// globalOptions holds the persistent flags.
type globalOptions struct {
	configPath string
	logLevel   string
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	g := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "tool-hub-search",
		Short: "Hybrid semantic and keyword search over MCP tools",
		Long: `tool-hub-search indexes the tools of many MCP servers and ranks them
for a natural-language task.

Tools and server summaries are embedded into two vector indices. A query is
answered by one of three strategies:
  • semantic      - tool similarity blended with server context (70/30)
  • hybrid        - semantic ranking fused with keyword search
  • context-aware - semantic ranking plus a recommended server

The engine is exposed as an MCP server (serve), a REST API (http), and
directly from the command line (search).`,
		Version:       version.GetVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", "", "Config file (default ~/.tool-hub-search.json)")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "info", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(NewSetupCmd(g))
	rootCmd.AddCommand(NewServeCmd(g))
	rootCmd.AddCommand(NewHTTPCmd(g))
	rootCmd.AddCommand(NewSearchCmd(g))
	rootCmd.AddCommand(NewKeywordCmd(g))
	rootCmd.AddCommand(NewSyncCmd(g))
	rootCmd.AddCommand(NewIndexServerCmd(g))
	rootCmd.AddCommand(NewListCmd(g))
	rootCmd.AddCommand(NewExportIndexCmd(g))
	rootCmd.AddCommand(NewHistoryCmd(g))
	rootCmd.AddCommand(NewBenchmarkCmd(g))
	rootCmd.AddCommand(NewAddCmd(g))
	rootCmd.AddCommand(NewRemoveCmd(g))
	rootCmd.AddCommand(NewVerifyCmd(g))
	rootCmd.AddCommand(NewVersionCmd())

	return rootCmd
}

// configFile returns the --config path or the default path.
func (g *globalOptions) configFile() (string, error) {
	if g.configPath != "" {
		return expandHome(g.configPath)
	}
	return config.GetDefaultConfigPath()
}

// expandHome replaces a leading "~/" with the home directory.
func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
