package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/khanglvm/tool-hub-search/internal/config"
	"github.com/muhammadmuzzammil1998/jsonc"
	"github.com/spf13/cobra"
)

// NewAddCmd creates the 'add' command for registering MCP servers that
// sync lists directly when sync.source is "mcp".
//
// Supports two modes:
// 1. JSON: paste an MCP config (Claude Code mcpServers, OpenCode mcp, a bare map)
// 2. Flags: specify --command, --arg, --env directly
func NewAddCmd(g *globalOptions) *cobra.Command {
	var (
		command   string
		args      []string
		envVars   []string
		jsonInput string
	)

	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Add MCP server(s) to index directly",
		Long: `Register MCP servers whose tools sync lists over stdio when
sync.source is "mcp".

JSON MODE:
  Pass any MCP configuration object. Supports formats from:
  • Claude Code (mcpServers)
  • OpenCode (mcp)
  • A bare map of server name to server object

FLAG MODE:
  Specify server details directly with flags.`,
		Example: `  # Flag mode
  tool-hub-search add github --command npx --arg -y --arg @modelcontextprotocol/server-github --env GITHUB_TOKEN=...

  # JSON mode
  tool-hub-search add --json '{"mcpServers": {"jira": {"command": "npx", "args": ["-y", "@lvmk/jira-mcp"]}}}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, positionalArgs []string) error {
			var servers map[string]*config.ServerConfig
			switch {
			case jsonInput != "":
				parsed, format, err := parseAnyMCPConfig(jsonInput)
				if err != nil {
					return fmt.Errorf("failed to parse config: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "🔍 Detected format: %s\n", format)
				servers = parsed
			case len(positionalArgs) == 1 && command != "":
				env := make(map[string]string, len(envVars))
				for _, e := range envVars {
					key, value, ok := strings.Cut(e, "=")
					if !ok || key == "" {
						return fmt.Errorf("invalid env %q (want KEY=VALUE)", e)
					}
					env[key] = value
				}
				servers = map[string]*config.ServerConfig{
					positionalArgs[0]: {Command: command, Args: args, Env: config.NormalizeEnvVars(env)},
				}
			default:
				return fmt.Errorf("server name and --command, or --json, required")
			}

			path, err := g.configFile()
			if err != nil {
				return err
			}
			return addServers(cmd.OutOrStdout(), path, servers)
		},
	}

	cmd.Flags().StringVarP(&command, "command", "c", "", "Command to run the MCP server")
	cmd.Flags().StringArrayVarP(&args, "arg", "a", nil, "Arguments for the command")
	cmd.Flags().StringArrayVarP(&envVars, "env", "e", nil, "Environment variables (KEY=VALUE)")
	cmd.Flags().StringVarP(&jsonInput, "json", "j", "", "MCP config JSON (auto-detect format)")

	return cmd
}

// addServers validates servers and merges them into the config at path.
func addServers(w io.Writer, path string, servers map[string]*config.ServerConfig) error {
	names := make([]string, 0, len(servers))
	for name, srv := range servers {
		if err := config.ValidateServer(name, srv); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return err
	}
	for _, name := range names {
		cfg.Servers[name] = servers[name]
	}
	if err := config.Save(cfg, path); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	for _, name := range names {
		srv := servers[name]
		fmt.Fprintf(w, "✓ Added server '%s': %s %s\n", name, srv.Command, strings.Join(srv.Args, " "))
	}
	if cfg.Sync.Source != config.SourceMCP {
		fmt.Fprintf(w, "Note: set sync.source to %q in %s to index these servers directly.\n", config.SourceMCP, path)
	}
	return nil
}

// parseAnyMCPConfig parses the common MCP config layouts. It returns the
// servers and the name of the detected layout.
func parseAnyMCPConfig(input string) (map[string]*config.ServerConfig, string, error) {
	var raw map[string]any
	if err := json.Unmarshal(jsonc.ToJSON([]byte(strings.TrimSpace(input))), &raw); err != nil {
		return nil, "", fmt.Errorf("invalid JSON: %w", err)
	}

	for _, key := range []string{"mcpServers", "mcp_servers", "mcp", "servers", "context_servers"} {
		if wrapped, ok := raw[key].(map[string]any); ok {
			if servers := parseServersMap(wrapped); len(servers) > 0 {
				return servers, fmt.Sprintf("Wrapped (%s)", key), nil
			}
		}
	}

	if servers := parseServersMap(raw); len(servers) > 0 {
		return servers, "Direct server map", nil
	}
	return nil, "", fmt.Errorf("could not find valid MCP server configuration")
}

// parseServersMap parses a map of server name -> server config.
func parseServersMap(raw map[string]any) map[string]*config.ServerConfig {
	result := make(map[string]*config.ServerConfig)
	for name, val := range raw {
		if serverMap, ok := val.(map[string]any); ok {
			if server := parseSingleServer(serverMap); server != nil {
				result[name] = server
			}
		}
	}
	return result
}

// parseSingleServer reads command, args and env, accepting the key
// spellings used by different clients.
func parseSingleServer(raw map[string]any) *config.ServerConfig {
	command := findStringKey(raw, "command", "cmd", "executable")
	if command == "" {
		return nil
	}

	return &config.ServerConfig{
		Command: command,
		Args:    findStringArrayKey(raw, "args", "arguments"),
		Env:     config.NormalizeEnvVars(findStringMapKey(raw, "env", "environment")),
	}
}

// findStringKey looks for a string value under any of the given keys.
func findStringKey(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if s, ok := m[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// findStringArrayKey looks for a string array under any of the given keys.
func findStringArrayKey(m map[string]any, keys ...string) []string {
	for _, key := range keys {
		arr, ok := m[key].([]any)
		if !ok {
			continue
		}
		result := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				result = append(result, s)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return nil
}

// findStringMapKey looks for a string map under any of the given keys.
func findStringMapKey(m map[string]any, keys ...string) map[string]string {
	for _, key := range keys {
		obj, ok := m[key].(map[string]any)
		if !ok {
			continue
		}
		result := make(map[string]string, len(obj))
		for k, v := range obj {
			if s, ok := v.(string); ok {
				result[k] = s
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return nil
}
