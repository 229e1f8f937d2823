/*
Package mcp exposes the search engine as an MCP server over stdio.

The server registers four tools:
  - hub_search: rank tools for a natural-language task
  - hub_sync: re-index the aggregator catalog
  - hub_index_server: index a server summary used as search context
  - hub_servers: list indexed server summaries
*/
package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/indexing"
	"github.com/khanglvm/tool-hub-search/internal/workflow"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"
)

// Searcher runs search requests.
type Searcher interface {
	Run(ctx context.Context, req workflow.Request) (workflow.Response, error)
}

// Indexer maintains the indices.
type Indexer interface {
	Sync(ctx context.Context) (indexing.Report, error)
	IndexServerSummary(ctx context.Context, s indexing.ServerSummary) error
	ListServers(ctx context.Context) ([]indexing.ServerSummary, error)
}

// Server wraps the MCP server.
type Server struct {
	searcher Searcher
	indexer  Indexer
	server   *mcpsdk.Server
	logger   *zap.Logger
}

// NewServer creates the MCP server and registers its tools.
func NewServer(searcher Searcher, indexer Indexer, version string, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{searcher: searcher, indexer: indexer, logger: logger}
	s.server = mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "tool-hub-search",
		Version: version,
	}, nil)
	s.registerTools()
	return s
}

// Run serves on stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcpsdk.StdioTransport{})
}

// Connect serves one session over an arbitrary transport.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name: "hub_search",
		Description: `Find the best tools for a task across ALL connected MCP servers.

WHEN TO USE: When you need a capability but don't know which server or tool provides it.

MODES:
- hybrid (default): embeddings plus keyword ranking
- semantic: embeddings only
- context_aware: also recommends the most relevant server ("which server should I use for ...")

Returns ranked tools with scores and the reasoning behind the ranking.`,
	}, s.handleSearch)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "hub_sync",
		Description: "Re-index every tool listed by the aggregator. Run after servers are added or changed.",
	}, s.handleSync)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "hub_index_server",
		Description: "Index a documentation summary for a server. Summaries improve ranking and server recommendations.",
	}, s.handleIndexServer)

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        "hub_servers",
		Description: "List the servers that have an indexed summary.",
	}, s.handleServers)
}

// SearchArgs are the hub_search arguments.
type SearchArgs struct {
	Query            string   `json:"query" jsonschema:"natural language description of the task"`
	Mode             string   `json:"mode,omitempty" jsonschema:"semantic, hybrid or context_aware"`
	Limit            int      `json:"limit,omitempty" jsonschema:"maximum tools to return (default 15)"`
	SemanticWeight   *float64 `json:"semantic_weight,omitempty" jsonschema:"weight of semantic vs keyword ranking in hybrid mode, 0 to 1 (default 0.6)"`
	IncludeReasoning *bool    `json:"include_reasoning,omitempty" jsonschema:"include per-tool reasoning (default true)"`
	ThreadID         string   `json:"thread_id,omitempty" jsonschema:"session id for checkpointing"`
}

func (s *Server) handleSearch(ctx context.Context, req *mcpsdk.CallToolRequest, args SearchArgs) (*mcpsdk.CallToolResult, any, error) {
	resp, err := s.searcher.Run(ctx, workflow.Request{
		Query:            args.Query,
		Mode:             args.Mode,
		Limit:            args.Limit,
		SemanticWeight:   args.SemanticWeight,
		IncludeReasoning: args.IncludeReasoning,
		ThreadID:         args.ThreadID,
	})
	if err != nil {
		return nil, nil, err
	}
	return textResult(formatSearch(resp)), resp, nil
}

func formatSearch(resp workflow.Response) string {
	var b strings.Builder

	if resp.Error != "" {
		fmt.Fprintf(&b, "Search failed: %s\n", resp.Error)
		return b.String()
	}
	if resp.Total == 0 {
		b.WriteString("No matching tools found.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "Found %d tools (mode: %s):\n\n", resp.Total, resp.Mode)
	for i, tool := range resp.Tools {
		fmt.Fprintf(&b, "%d. %s (server: %s, score: %.3f)\n", i+1, tool.ToolName, tool.ServerName, tool.FinalScore)
		if tool.Description != "" {
			fmt.Fprintf(&b, "   %s\n", tool.Description)
		}
	}
	if resp.Recommendation != "" {
		fmt.Fprintf(&b, "\nRecommended server: %s\n", resp.Recommendation)
	}
	if resp.Reasoning != "" {
		fmt.Fprintf(&b, "\nReasoning: %s\n", resp.Reasoning)
	}
	return b.String()
}

func (s *Server) handleSync(ctx context.Context, req *mcpsdk.CallToolRequest, args struct{}) (*mcpsdk.CallToolResult, any, error) {
	report, err := s.indexer.Sync(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("sync failed: %w", err)
	}

	text := fmt.Sprintf("Indexed %d tools (%d failed, %d skipped, %d removed) in %s",
		report.Indexed, report.Failed, report.Skipped, report.Removed, report.Duration.Round(time.Millisecond))
	for _, e := range report.Errors {
		text += fmt.Sprintf("\n  • %s: %s", e.Tool, e.Error)
	}
	return textResult(text), report, nil
}

// IndexServerArgs are the hub_index_server arguments.
type IndexServerArgs struct {
	ServerName      string   `json:"server_name" jsonschema:"server name as listed by the aggregator"`
	Summary         string   `json:"summary" jsonschema:"what the server is for"`
	Capabilities    []string `json:"capabilities,omitempty" jsonschema:"capabilities in order of importance"`
	TypicalUseCases []string `json:"typical_use_cases,omitempty" jsonschema:"typical tasks the server is used for"`
}

func (s *Server) handleIndexServer(ctx context.Context, req *mcpsdk.CallToolRequest, args IndexServerArgs) (*mcpsdk.CallToolResult, any, error) {
	err := s.indexer.IndexServerSummary(ctx, indexing.ServerSummary{
		ServerName:      args.ServerName,
		Summary:         args.Summary,
		Capabilities:    args.Capabilities,
		TypicalUseCases: args.TypicalUseCases,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("index server failed: %w", err)
	}
	return textResult("Indexed server: " + args.ServerName), nil, nil
}

func (s *Server) handleServers(ctx context.Context, req *mcpsdk.CallToolRequest, args struct{}) (*mcpsdk.CallToolResult, any, error) {
	servers, err := s.indexer.ListServers(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list servers failed: %w", err)
	}
	if len(servers) == 0 {
		return textResult("No server summaries indexed. Use hub_index_server to add one."), nil, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Indexed servers (%d):\n", len(servers))
	for _, srv := range servers {
		fmt.Fprintf(&b, "  • %s: %s\n", srv.ServerName, srv.Summary)
	}
	return textResult(b.String()), map[string]any{"servers": servers}, nil
}

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}
}
