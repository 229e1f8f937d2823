package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/khanglvm/tool-hub-search/internal/checkpoint"
	"github.com/khanglvm/tool-hub-search/internal/fusion"
	"github.com/khanglvm/tool-hub-search/internal/workflow"
)

// Validate checks ranges and enumerations in every section.
func (c *Config) Validate() error {
	if c.Aggregator.TimeoutSeconds < 0 {
		return fmt.Errorf("aggregator.timeoutSeconds: must be >= 0")
	}

	switch c.Embedding.Backend {
	case "", "hash", "ollama", "openai":
	default:
		return fmt.Errorf("embedding.backend: unknown backend %q (want hash, ollama or openai)", c.Embedding.Backend)
	}
	if c.Embedding.Dimension < 0 {
		return fmt.Errorf("embedding.dimension: must be >= 0")
	}

	weights := fusion.Weights{Similarity: c.Search.SimilarityWeight, Context: c.Search.ContextWeight}
	if err := weights.Validate(); err != nil {
		return fmt.Errorf("search weights: %w", err)
	}
	if _, err := fusion.ParseMethod(c.Search.HybridFusion); err != nil {
		return fmt.Errorf("search.hybridFusion: %w", err)
	}
	if _, err := workflow.ParseErrorPolicy(c.Search.OnError); err != nil {
		return fmt.Errorf("search.onError: %w", err)
	}
	if c.Search.TimeoutSeconds < 0 || c.Search.Workers < 0 {
		return fmt.Errorf("search: timeoutSeconds and workers must be >= 0")
	}

	switch c.Sync.Source {
	case "", SourceAggregator:
	case SourceMCP:
		if len(c.Servers) == 0 {
			return fmt.Errorf("sync.source: %q requires at least one entry in servers", SourceMCP)
		}
	default:
		return fmt.Errorf("sync.source: unknown source %q (want %s or %s)", c.Sync.Source, SourceAggregator, SourceMCP)
	}
	if c.Sync.Workers < 0 {
		return fmt.Errorf("sync.workers: must be >= 0")
	}

	switch c.Checkpoint.Backend {
	case "", "memory", "sqlite":
	case "postgres":
		if c.Checkpoint.PostgresURL == "" {
			return fmt.Errorf("checkpoint.postgresUrl: required for the postgres backend (or set %s)", checkpoint.PostgresURLEnv)
		}
	default:
		return fmt.Errorf("checkpoint.backend: unknown backend %q", c.Checkpoint.Backend)
	}
	if c.Checkpoint.MaxPerThread < 0 {
		return fmt.Errorf("checkpoint.maxPerThread: must be >= 0")
	}

	for name, srv := range c.Servers {
		if err := ValidateServer(name, srv); err != nil {
			return err
		}
	}
	return nil
}

// IsSelfReference checks if a server config refers to tool-hub-search itself.
// Listing tools from ourselves would spawn this binary recursively.
func IsSelfReference(server *ServerConfig) bool {
	binaryName := filepath.Base(os.Args[0])
	if server.Command == binaryName || server.Command == "tool-hub-search" {
		return true
	}

	if server.Command == "npx" {
		for _, arg := range server.Args {
			if arg == "@khanglvm/tool-hub-search" || arg == "tool-hub-search" {
				return true
			}
		}
	}
	return false
}

// ValidateServer checks a single MCP server entry.
func ValidateServer(name string, server *ServerConfig) error {
	if server == nil || server.Command == "" {
		return fmt.Errorf("server '%s': empty command", name)
	}
	if IsSelfReference(server) {
		return fmt.Errorf("server '%s': self-reference detected (tool-hub-search cannot list its own tools)", name)
	}
	return nil
}
