package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/khanglvm/tool-hub-search/internal/mcp"
	"github.com/khanglvm/tool-hub-search/internal/version"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewServeCmd creates the 'serve' command for running the MCP server.
//
// This is the main command that exposes the search tools via stdio transport:
// - hub_search, hub_sync, hub_index_server, hub_servers
func NewServeCmd(g *globalOptions) *cobra.Command {
	var noSync bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server (stdio transport)",
		Long: `Start the tool-hub-search server using stdio transport.

This server exposes 4 tools to AI clients:
  • hub_search       - Rank tools for a natural-language task
  • hub_sync         - Re-index the tool catalog
  • hub_index_server - Index a server summary used as search context
  • hub_servers      - List indexed server summaries

When sync.onStart is set, the catalog is indexed in the background while
the server starts accepting requests.`,
		Example: `  # Run directly
  tool-hub-search serve

  # Add to Claude Code
  claude mcp add tool-hub-search -- tool-hub-search serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), g, noSync)
		},
	}

	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Skip the startup sync")

	return cmd
}

// runServe starts the MCP server with stdio transport and signal handling.
// Implements graceful shutdown on SIGINT/SIGTERM/SIGQUIT.
func runServe(parent context.Context, g *globalOptions, noSync bool) error {
	ctx, stop := signal.NotifyContext(contextOrBackground(parent), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app, err := newApp(ctx, g)
	if err != nil {
		return err
	}
	defer app.Close()

	if app.Config.Sync.OnStart && !noSync {
		go syncInBackground(ctx, app)
	}

	server := mcp.NewServer(app.Workflow, app.Indexer, version.Version, app.Logger)
	app.Logger.Info("serving MCP on stdio")

	if err := server.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("server error: %w", err)
	}
	app.Logger.Info("shutdown complete")
	return nil
}

// syncInBackground indexes the catalog without blocking startup. Failures
// are logged; searches run against whatever is already indexed.
func syncInBackground(ctx context.Context, app *App) {
	report, err := app.Indexer.Sync(ctx)
	if err != nil {
		app.Logger.Warn("startup sync failed", zap.Error(err))
		return
	}
	app.Logger.Info("startup sync complete",
		zap.Int("indexed", report.Indexed),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped))
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
