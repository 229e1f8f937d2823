/*
Package config handles loading, validating and saving tool-hub-search
configuration.

Configuration is stored in ~/.tool-hub-search.json. The file is JSONC:
comments and trailing commas are allowed. Every section is optional and
missing fields keep their defaults.

Schema:

	{
	  // Aggregator that lists the tool catalog
	  "aggregator": {"url": "http://localhost:8080", "timeoutSeconds": 30},
	  "embedding": {"backend": "hash", "model": "", "url": "", "dimension": 384},
	  "storage": {"path": "~/.tool-hub-search/search.db", "retentionDays": 30},
	  "search": {
	    "similarityWeight": 0.7,
	    "contextWeight": 0.3,
	    "hybridFusion": "rank",
	    "onError": "finalize",
	    "timeoutSeconds": 10,
	    "workers": 4
	  },
	  "sync": {"source": "aggregator", "pruneStale": false, "workers": 4, "onStart": true},
	  "checkpoint": {"backend": "memory", "postgresUrl": "", "maxPerThread": 200},
	  "http": {"addr": "127.0.0.1:8081"},
	  "servers": {
	    "github": {"command": "npx", "args": ["-y", "@modelcontextprotocol/server-github"]}
	  }
	}
*/
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/catalog"
	"github.com/khanglvm/tool-hub-search/internal/checkpoint"
	"github.com/khanglvm/tool-hub-search/internal/embedding"
	"github.com/khanglvm/tool-hub-search/internal/fusion"
	"github.com/khanglvm/tool-hub-search/internal/search"
	"github.com/khanglvm/tool-hub-search/internal/workflow"
)

// Environment overrides.
const (
	EnvAggregatorURL = "TOOLHUB_AGGREGATOR_URL"
	EnvPostgresURL   = checkpoint.PostgresURLEnv
)

// Catalog sources for sync.
const (
	SourceAggregator = "aggregator"
	SourceMCP        = "mcp"
)

// Config represents the root configuration structure.
type Config struct {
	Aggregator *AggregatorConfig `json:"aggregator,omitempty"`
	Embedding  *EmbeddingConfig  `json:"embedding,omitempty"`
	Storage    *StorageConfig    `json:"storage,omitempty"`
	Search     *SearchConfig     `json:"search,omitempty"`
	Sync       *SyncConfig       `json:"sync,omitempty"`
	Checkpoint *CheckpointConfig `json:"checkpoint,omitempty"`
	HTTP       *HTTPConfig       `json:"http,omitempty"`

	// Servers maps server names to stdio MCP servers listed directly when
	// sync.source is "mcp".
	Servers map[string]*ServerConfig `json:"servers"`
}

// AggregatorConfig locates the tool catalog.
type AggregatorConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`
}

// EmbeddingConfig selects the embedding backend.
type EmbeddingConfig struct {
	// Backend is "hash", "ollama" or "openai".
	Backend   string `json:"backend"`
	Model     string `json:"model,omitempty"`
	URL       string `json:"url,omitempty"`
	APIKey    string `json:"apiKey,omitempty"`
	Dimension int    `json:"dimension,omitempty"`

	// Cache stores embeddings in the database keyed by text.
	Cache bool `json:"cache"`
}

// StorageConfig locates the SQLite database.
type StorageConfig struct {
	// Path of the database file. ":memory:" keeps everything in process.
	Path          string `json:"path,omitempty"`
	RetentionDays int    `json:"retentionDays,omitempty"`
}

// SearchConfig tunes ranking and the request workflow.
type SearchConfig struct {
	SimilarityWeight float64 `json:"similarityWeight"`
	ContextWeight    float64 `json:"contextWeight"`

	// HybridFusion is "rank" or "minmax".
	HybridFusion string `json:"hybridFusion,omitempty"`

	// OnError is "finalize" or "degrade".
	OnError        string `json:"onError,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty"`

	// Workers bounds concurrent query embeddings.
	Workers int `json:"workers,omitempty"`
}

// SyncConfig controls catalog indexing.
type SyncConfig struct {
	// Source is "aggregator" or "mcp".
	Source     string `json:"source,omitempty"`
	PruneStale bool   `json:"pruneStale"`
	Workers    int    `json:"workers,omitempty"`

	// OnStart runs a sync when a server command starts.
	OnStart bool `json:"onStart"`
}

// CheckpointConfig selects the workflow checkpoint store.
type CheckpointConfig struct {
	// Backend is "memory", "sqlite" or "postgres".
	Backend     string `json:"backend,omitempty"`
	PostgresURL string `json:"postgresUrl,omitempty"`

	// MaxPerThread caps the snapshots kept per thread. 0 means the default.
	MaxPerThread int `json:"maxPerThread,omitempty"`
}

// HTTPConfig configures the REST API.
type HTTPConfig struct {
	Addr string `json:"addr,omitempty"`
}

// ServerConfig represents a single stdio MCP server.
type ServerConfig struct {
	// Command is the executable to run (e.g., "npx", "/path/to/binary").
	Command string `json:"command"`

	// Args are the command-line arguments.
	Args []string `json:"args,omitempty"`

	// Env contains environment variables for the server.
	Env map[string]string `json:"env,omitempty"`
}

// NewConfig creates a configuration with every section set to defaults.
func NewConfig() *Config {
	return &Config{
		Aggregator: &AggregatorConfig{
			URL:            catalog.DefaultAggregatorURL,
			TimeoutSeconds: 30,
		},
		Embedding: &EmbeddingConfig{
			Backend:   "hash",
			Dimension: embedding.DefaultDimension,
			Cache:     true,
		},
		Storage: &StorageConfig{
			RetentionDays: 30,
		},
		Search: &SearchConfig{
			SimilarityWeight: fusion.DefaultWeights.Similarity,
			ContextWeight:    fusion.DefaultWeights.Context,
			HybridFusion:     string(fusion.MethodRank),
			OnError:          string(workflow.PolicyFinalize),
			TimeoutSeconds:   int(workflow.DefaultTimeout / time.Second),
			Workers:          embedding.DefaultWorkers,
		},
		Sync: &SyncConfig{
			Source:  SourceAggregator,
			Workers: embedding.DefaultWorkers,
			OnStart: true,
		},
		Checkpoint: &CheckpointConfig{
			Backend: "memory",
		},
		HTTP: &HTTPConfig{
			Addr: "127.0.0.1:8081",
		},
		Servers: make(map[string]*ServerConfig),
	}
}

// GetDefaultConfigPath returns the path to ~/.tool-hub-search.json
func GetDefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".tool-hub-search.json"), nil
}

// Load reads the configuration from the default path.
func Load() (*Config, error) {
	configPath, err := GetDefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadOrDefault reads path, or the default path when empty. A missing
// file yields the defaults with environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		p, err := GetDefaultConfigPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	cfg, err := LoadFrom(path)
	if err == nil {
		return cfg, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		cfg = NewConfig()
		cfg.applyEnv()
		return cfg, nil
	}
	return nil, err
}

// EmbeddingOptions converts the embedding section for embedding.New.
func (c *Config) EmbeddingOptions() embedding.Config {
	e := c.Embedding
	return embedding.Config{
		Backend:   e.Backend,
		Model:     e.Model,
		URL:       e.URL,
		APIKey:    e.APIKey,
		Dimension: e.Dimension,
	}
}

// SearchOptions converts the search section for search.NewEngine.
func (c *Config) SearchOptions() search.Options {
	opts := search.DefaultOptions()
	opts.Weights = fusion.Weights{
		Similarity: c.Search.SimilarityWeight,
		Context:    c.Search.ContextWeight,
	}
	if method, err := fusion.ParseMethod(c.Search.HybridFusion); err == nil {
		opts.Fusion = method
	}
	return opts
}

// WorkflowOptions converts the search section for workflow.New.
func (c *Config) WorkflowOptions() workflow.Options {
	policy, _ := workflow.ParseErrorPolicy(c.Search.OnError)
	return workflow.Options{
		Timeout:     time.Duration(c.Search.TimeoutSeconds) * time.Second,
		ErrorPolicy: policy,
	}
}

// CheckpointOptions converts the checkpoint section for checkpoint.Open.
func (c *Config) CheckpointOptions() checkpoint.Config {
	return checkpoint.Config{
		Backend:      c.Checkpoint.Backend,
		PostgresURL:  c.Checkpoint.PostgresURL,
		MaxPerThread: c.Checkpoint.MaxPerThread,
	}
}

// ServerSpecs returns the configured MCP servers sorted by name, with
// environment variable names normalized.
func (c *Config) ServerSpecs() []catalog.ServerSpec {
	names := make([]string, 0, len(c.Servers))
	for name := range c.Servers {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]catalog.ServerSpec, 0, len(names))
	for _, name := range names {
		srv := c.Servers[name]
		specs = append(specs, catalog.ServerSpec{
			Name:    name,
			Command: srv.Command,
			Args:    srv.Args,
			Env:     NormalizeEnvVars(srv.Env),
		})
	}
	return specs
}

// applyEnv overrides fields from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAggregatorURL); v != "" {
		c.Aggregator.URL = v
	}
	if v := os.Getenv(EnvPostgresURL); v != "" {
		c.Checkpoint.PostgresURL = v
	}
}

// fillDefaults replaces sections a file set to null.
func (c *Config) fillDefaults() {
	d := NewConfig()
	if c.Aggregator == nil {
		c.Aggregator = d.Aggregator
	}
	if c.Embedding == nil {
		c.Embedding = d.Embedding
	}
	if c.Storage == nil {
		c.Storage = d.Storage
	}
	if c.Search == nil {
		c.Search = d.Search
	}
	if c.Sync == nil {
		c.Sync = d.Sync
	}
	if c.Checkpoint == nil {
		c.Checkpoint = d.Checkpoint
	}
	if c.HTTP == nil {
		c.HTTP = d.HTTP
	}
	if c.Servers == nil {
		c.Servers = make(map[string]*ServerConfig)
	}
}
