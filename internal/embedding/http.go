package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const httpTimeout = 30 * time.Second

// OllamaProvider generates embeddings using a local Ollama instance.
type OllamaProvider struct {
	url    string
	model  string
	client *http.Client
}

// NewOllamaProvider creates an Ollama-backed provider.
func NewOllamaProvider(url, model string) *OllamaProvider {
	return &OllamaProvider{
		url:    strings.TrimRight(url, "/"),
		model:  model,
		client: &http.Client{Timeout: httpTimeout},
	}
}

// Embed generates an embedding using Ollama.
func (e *OllamaProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]string{
		"model":  e.model,
		"prompt": text,
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := postJSON(ctx, e.client, e.url+"/api/embeddings", "", reqBody, &result); err != nil {
		return nil, fmt.Errorf("%w: ollama: %v", ErrEmbeddingFailure, err)
	}
	if len(result.Embedding) == 0 {
		return nil, fmt.Errorf("%w: ollama returned an empty embedding", ErrEmbeddingFailure)
	}

	return result.Embedding, nil
}

// Model returns the Ollama model name.
func (e *OllamaProvider) Model() string {
	return "ollama:" + e.model
}

// OpenAIProvider generates embeddings using the OpenAI API.
type OpenAIProvider struct {
	url    string
	apiKey string
	model  string
	client *http.Client
}

// NewOpenAIProvider creates an OpenAI-backed provider.
func NewOpenAIProvider(url, apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{
		url:    strings.TrimRight(url, "/"),
		apiKey: apiKey,
		model:  model,
		client: &http.Client{Timeout: httpTimeout},
	}
}

// Embed generates an embedding using OpenAI.
func (e *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	reqBody := map[string]interface{}{
		"model": e.model,
		"input": text,
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := postJSON(ctx, e.client, e.url+"/v1/embeddings", e.apiKey, reqBody, &result); err != nil {
		return nil, fmt.Errorf("%w: openai: %v", ErrEmbeddingFailure, err)
	}
	if len(result.Data) == 0 || len(result.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: openai returned no embedding", ErrEmbeddingFailure)
	}

	return result.Data[0].Embedding, nil
}

// Model returns the OpenAI model name.
func (e *OpenAIProvider) Model() string {
	return "openai:" + e.model
}

func postJSON(ctx context.Context, client *http.Client, url, bearer string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
