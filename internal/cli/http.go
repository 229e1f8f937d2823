package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/khanglvm/tool-hub-search/internal/api"
	"github.com/spf13/cobra"
)

// NewHTTPCmd creates the 'http' command for running the REST API.
func NewHTTPCmd(g *globalOptions) *cobra.Command {
	var (
		addr   string
		noSync bool
	)

	cmd := &cobra.Command{
		Use:   "http",
		Short: "Run the REST API",
		Long: `Serve the search engine over HTTP.

Endpoints:
  POST /api/semantic-search  Run a search
  POST /api/sync-tools       Re-index the tool catalog
  POST /api/index-server     Index one server summary
  GET  /api/servers          List indexed server summaries
  GET  /health               Index sizes
  GET  /metrics              Prometheus metrics`,
		Example: `  tool-hub-search http
  tool-hub-search http --addr :8081`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(contextOrBackground(cmd.Context()), os.Interrupt, syscall.SIGTERM)
			defer stop()

			app, err := newApp(ctx, g)
			if err != nil {
				return err
			}
			defer app.Close()

			if addr == "" {
				addr = app.Config.HTTP.Addr
			}
			if app.Config.Sync.OnStart && !noSync {
				go syncInBackground(ctx, app)
			}

			return api.NewServer(app.Workflow, app.Indexer, app.Metrics, app.Logger).ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Listen address (default from config http.addr)")
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Skip the startup sync")

	return cmd
}
