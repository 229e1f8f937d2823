/*
Package main is the entry point for tool-hub-search CLI.

tool-hub-search ranks the tools of many MCP servers for a natural-language
task, blending vector similarity, server context and keyword search.

Usage:

	tool-hub-search [command]

Available Commands:

	setup         Create the configuration file
	sync          Index the tool catalog
	index-server  Index server summaries
	search        Search indexed tools
	serve         Run the MCP server (stdio transport)
	http          Run the REST API
	servers       List indexed MCP server summaries
	verify        Verify configuration and storage

Examples:

	# Index the aggregator catalog, then search it
	tool-hub-search sync
	tool-hub-search search "open a pull request"

	# Run as MCP server
	tool-hub-search serve
*/
package main

import (
	"fmt"
	"os"

	"github.com/khanglvm/tool-hub-search/internal/cli"
	"github.com/khanglvm/tool-hub-search/internal/version"
)

// Version information (set via ldflags during build)
var (
	buildVersion = "dev"
	commit       = "none"
	date         = "unknown"
)

func main() {
	if buildVersion != "dev" {
		version.Version, version.Commit, version.Date = buildVersion, commit, date
	}

	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
