package cli

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khanglvm/tool-hub-search/internal/config"
)

func TestParseAnyMCPConfig(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantFormat string
		wantNames  []string
	}{
		{
			name:       "claude code",
			input:      `{"mcpServers": {"jira": {"command": "npx", "args": ["-y", "@lvmk/jira-mcp"]}}}`,
			wantFormat: "Wrapped (mcpServers)",
			wantNames:  []string{"jira"},
		},
		{
			name:       "opencode",
			input:      `{"mcp": {"outline": {"command": "npx"}, "figma": {"cmd": "figma-mcp"}}}`,
			wantFormat: "Wrapped (mcp)",
			wantNames:  []string{"outline", "figma"},
		},
		{
			name: "direct map with comments",
			input: `{
				// issue tracker
				"jira": {"command": "uvx", "arguments": ["jira-mcp"]}
			}`,
			wantFormat: "Direct server map",
			wantNames:  []string{"jira"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			servers, format, err := parseAnyMCPConfig(tt.input)
			if err != nil {
				t.Fatalf("parseAnyMCPConfig failed: %v", err)
			}
			if format != tt.wantFormat {
				t.Errorf("format = %q, want %q", format, tt.wantFormat)
			}
			if len(servers) != len(tt.wantNames) {
				t.Fatalf("servers = %v", servers)
			}
			for _, name := range tt.wantNames {
				if servers[name] == nil || servers[name].Command == "" {
					t.Errorf("server %q missing or without command", name)
				}
			}
		})
	}
}

func TestParseAnyMCPConfigErrors(t *testing.T) {
	if _, _, err := parseAnyMCPConfig(`not json`); err == nil {
		t.Error("invalid JSON should fail")
	}
	if _, _, err := parseAnyMCPConfig(`{"jira": {"args": ["x"]}}`); err == nil {
		t.Error("servers without a command should fail")
	}
}

func TestParseSingleServerNormalizesEnv(t *testing.T) {
	srv := parseSingleServer(map[string]any{
		"command": "npx",
		"args":    []any{"-y", "server-github"},
		"env":     map[string]any{"githubToken": "x"},
	})
	if srv == nil {
		t.Fatal("parseSingleServer returned nil")
	}
	if len(srv.Args) != 2 || srv.Env["GITHUB_TOKEN"] != "x" {
		t.Errorf("server = %+v", srv)
	}
}

func TestAddServersWritesConfig(t *testing.T) {
	t.Setenv(config.EnvAggregatorURL, "")
	path := filepath.Join(t.TempDir(), "config.json")

	buf := new(bytes.Buffer)
	err := addServers(buf, path, map[string]*config.ServerConfig{
		"github": {Command: "npx", Args: []string{"-y", "server-github"}},
	})
	if err != nil {
		t.Fatalf("addServers failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Added server 'github'") || !strings.Contains(buf.String(), `sync.source to "mcp"`) {
		t.Errorf("unexpected output: %s", buf.String())
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if cfg.Servers["github"] == nil || cfg.Servers["github"].Command != "npx" {
		t.Errorf("servers = %+v", cfg.Servers)
	}
}

func TestAddServersRejectsSelfReference(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	err := addServers(new(bytes.Buffer), path, map[string]*config.ServerConfig{
		"hub": {Command: "tool-hub-search", Args: []string{"serve"}},
	})
	if err == nil || !strings.Contains(err.Error(), "self-reference") {
		t.Errorf("expected self-reference error, got %v", err)
	}
}

func TestAddCommandFlagMode(t *testing.T) {
	t.Setenv(config.EnvAggregatorURL, "")
	path := filepath.Join(t.TempDir(), "config.json")

	out, err := execute(t, "--config", path, "add", "jira", "--command", "npx", "--arg", "-y", "--arg", "@lvmk/jira-mcp", "--env", "jira-token=secret")
	if err != nil {
		t.Fatalf("add failed: %v\n%s", err, out)
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	jira := cfg.Servers["jira"]
	if jira == nil || len(jira.Args) != 2 || jira.Env["JIRA_TOKEN"] != "secret" {
		t.Errorf("jira = %+v", jira)
	}

	if _, err := execute(t, "--config", path, "add", "bad", "--command", "npx", "--env", "novalue"); err == nil {
		t.Error("malformed env should fail")
	}
}

func TestRemoveServer(t *testing.T) {
	t.Setenv(config.EnvAggregatorURL, "")
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := config.NewConfig()
	cfg.Servers["jira"] = &config.ServerConfig{Command: "npx"}
	if err := config.Save(cfg, path); err != nil {
		t.Fatal(err)
	}

	buf := new(bytes.Buffer)
	if err := runRemove(buf, path, "jira"); err != nil {
		t.Fatalf("runRemove failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Removed server 'jira'") {
		t.Errorf("unexpected output: %s", buf.String())
	}

	loaded, err := config.LoadFrom(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := loaded.Servers["jira"]; ok {
		t.Error("server still present after remove")
	}

	if err := runRemove(buf, path, "jira"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found error, got %v", err)
	}
}

func TestRunSetup(t *testing.T) {
	t.Setenv(config.EnvAggregatorURL, "")
	path := filepath.Join(t.TempDir(), "config.json")

	cfg := config.NewConfig()
	cfg.Embedding.Backend = "ollama"

	buf := new(bytes.Buffer)
	if err := runSetup(buf, path, cfg, false); err != nil {
		t.Fatalf("runSetup failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Config written") {
		t.Errorf("unexpected output: %s", buf.String())
	}

	loaded, err := config.LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom failed: %v", err)
	}
	if loaded.Embedding.Backend != "ollama" {
		t.Errorf("embedding backend = %q", loaded.Embedding.Backend)
	}

	err = runSetup(buf, path, config.NewConfig(), false)
	if err == nil || !strings.Contains(err.Error(), "--force") {
		t.Errorf("existing config should require --force, got %v", err)
	}

	if err := runSetup(buf, path, config.NewConfig(), true); err != nil {
		t.Fatalf("runSetup --force failed: %v", err)
	}
}
