package indexing

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/khanglvm/tool-hub-search/internal/catalog"
)

// ServerSummary documents what a server is for.
type ServerSummary struct {
	ServerName      string   `json:"server_name"`
	Summary         string   `json:"summary"`
	Capabilities    []string `json:"capabilities"`
	TypicalUseCases []string `json:"typical_use_cases"`
}

// ToolDocument builds the text embedded for a tool. serverContext is the
// owning server's summary document, if one is indexed.
func ToolDocument(tool catalog.Tool, params []string, serverContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Tool: %s\nServer: %s\nDescription: %s", tool.Name, tool.Server, tool.Description)

	if serverContext != "" {
		fmt.Fprintf(&b, "\nServer Context: %s", serverContext)
	}
	if len(params) > 0 {
		fmt.Fprintf(&b, "\nParameters: %s", strings.Join(params, ", "))
	}
	return strings.TrimSpace(b.String())
}

// ServerDocument builds the text embedded for a server summary.
func ServerDocument(s ServerSummary) string {
	return strings.TrimSpace(fmt.Sprintf("Server: %s\nSummary: %s\nCapabilities: %s\nUse Cases: %s",
		s.ServerName,
		s.Summary,
		strings.Join(s.Capabilities, ", "),
		strings.Join(s.TypicalUseCases, ", "),
	))
}

// ParameterNames returns the sorted property names of a JSON Schema.
// An empty schema has no parameters.
func ParameterNames(schema json.RawMessage) ([]string, error) {
	if len(schema) == 0 || string(schema) == "null" {
		return nil, nil
	}

	var parsed struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(schema, &parsed); err != nil {
		return nil, fmt.Errorf("invalid input schema: %w", err)
	}

	names := make([]string, 0, len(parsed.Properties))
	for name := range parsed.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
