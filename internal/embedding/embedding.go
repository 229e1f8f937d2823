/*
Package embedding maps text to fixed-length vectors for the tool and server
indices.

A Provider is deterministic for a fixed model configuration. Backends:
  - hash:   BLAKE3 feature hashing, no network (default)
  - ollama: local Ollama /api/embeddings
  - openai: OpenAI /v1/embeddings

Providers are wrapped by CachedProvider (memory + SQLite cache) and Pool
(bounded concurrency) before they reach the search and sync paths.
*/
package embedding

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrEmbeddingFailure is wrapped by every error a Provider returns, both
// for malformed input and for an unavailable model.
var ErrEmbeddingFailure = errors.New("embedding failure")

// Provider generates vector embeddings for text.
type Provider interface {
	// Embed returns the embedding for text. It never returns a zero vector
	// in place of an error.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model identifies the model configuration. Cached vectors are only
	// reused when this value matches.
	Model() string
}

// Config selects and configures an embedding backend.
type Config struct {
	Backend   string `json:"backend"`             // "hash", "ollama", or "openai"
	Model     string `json:"model,omitempty"`     // e.g. "nomic-embed-text", "text-embedding-3-small"
	URL       string `json:"url,omitempty"`       // base URL for HTTP backends
	APIKey    string `json:"apiKey,omitempty"`    // OpenAI only
	Dimension int    `json:"dimension,omitempty"` // hash backend only
}

// DefaultConfig returns the offline hash backend configuration.
func DefaultConfig() Config {
	return Config{
		Backend:   "hash",
		Dimension: DefaultDimension,
	}
}

// New creates a Provider based on the configuration.
func New(cfg Config) (Provider, error) {
	switch cfg.Backend {
	case "hash", "":
		return NewHashProvider(cfg.Dimension), nil
	case "ollama":
		url := cfg.URL
		if url == "" {
			url = "http://localhost:11434"
		}
		model := cfg.Model
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaProvider(url, model), nil
	case "openai":
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("OpenAI API key required (set embedding.apiKey or OPENAI_API_KEY)")
		}
		model := cfg.Model
		if model == "" {
			model = "text-embedding-3-small"
		}
		url := cfg.URL
		if url == "" {
			url = "https://api.openai.com"
		}
		return NewOpenAIProvider(url, apiKey, model), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend: %s", cfg.Backend)
	}
}
