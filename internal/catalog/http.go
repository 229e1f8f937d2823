package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultAggregatorURL is the local mcpproxy address.
const DefaultAggregatorURL = "http://localhost:8080"

// HTTPClient talks to an aggregator exposing /api/tools/list and
// /api/tools/search. It implements both Source and KeywordSearcher.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a client for baseURL.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if baseURL == "" {
		baseURL = DefaultAggregatorURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type toolsResponse struct {
	Tools []Tool `json:"tools"`
}

// ListTools fetches the full catalog.
func (c *HTTPClient) ListTools(ctx context.Context) ([]Tool, error) {
	var resp toolsResponse
	if err := c.get(ctx, "/api/tools/list", nil, &resp); err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return qualify(resp.Tools), nil
}

// Search asks the aggregator for its lexical ranking.
func (c *HTTPClient) Search(ctx context.Context, query string, limit int) ([]Tool, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("limit", strconv.Itoa(limit))

	var resp toolsResponse
	if err := c.get(ctx, "/api/tools/search", params, &resp); err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return qualify(resp.Tools), nil
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("aggregator error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// qualify prefixes bare tool names with their server.
func qualify(tools []Tool) []Tool {
	for i := range tools {
		if tools[i].Server != "" && tools[i].Name != "" {
			tools[i].Name = QualifiedName(tools[i].Server, tools[i].Name)
		}
	}
	if tools == nil {
		return []Tool{}
	}
	return tools
}
