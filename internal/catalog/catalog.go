/*
Package catalog provides the external collaborators of the engine: the
aggregator that lists every tool of every connected MCP server, and the
keyword search provider that returns a ranked lexical list.
*/
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Tool is one catalog entry as listed by the aggregator.
type Tool struct {
	// Name is the qualified "server:tool" name.
	Name string `json:"name"`

	// Server is the name of the MCP server exposing the tool.
	Server string `json:"server"`

	Description string `json:"description"`

	// InputSchema is the tool's JSON Schema, kept verbatim.
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`

	// Score is the provider's relevance score, set on keyword hits only.
	Score float64 `json:"score,omitempty"`
}

// Source returns the full catalog. A source that reaches only some of its
// servers returns their tools together with a *PartialError.
type Source interface {
	ListTools(ctx context.Context) ([]Tool, error)
}

// PartialError lists the servers that could not be listed.
type PartialError struct {
	Failed map[string]error
}

func (e *PartialError) Error() string {
	servers := e.Servers()
	parts := make([]string, len(servers))
	for i, name := range servers {
		parts[i] = fmt.Sprintf("%s: %v", name, e.Failed[name])
	}
	return fmt.Sprintf("failed to list %d servers: %s", len(servers), strings.Join(parts, "; "))
}

// Servers returns the failed server names, sorted.
func (e *PartialError) Servers() []string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// KeywordSearcher returns a lexical ranking, best first.
type KeywordSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]Tool, error)
}

// QualifiedName joins server and tool as "server:tool". Names that are
// already qualified with the same server are returned unchanged.
func QualifiedName(server, tool string) string {
	if strings.HasPrefix(tool, server+":") {
		return tool
	}
	return server + ":" + tool
}

// StaticSource serves a fixed tool list.
type StaticSource struct {
	Tools []Tool
}

// ListTools returns a copy of the fixed list.
func (s *StaticSource) ListTools(ctx context.Context) ([]Tool, error) {
	out := make([]Tool, len(s.Tools))
	copy(out, s.Tools)
	return out, nil
}
