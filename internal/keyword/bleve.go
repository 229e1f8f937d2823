/*
Package keyword provides an in-process lexical ranked-list provider over the
tool catalog, backed by a Bleve BM25 index.

It stands in for the aggregator's own keyword search when the engine is run
without one, and implements catalog.KeywordSearcher.
*/
package keyword

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/index/scorch"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/khanglvm/tool-hub-search/internal/catalog"
	"go.uber.org/zap"
)

const defaultLimit = 10

var searchFields = []string{"name", "description", "server", "inputSchema"}

// identifier separators become spaces so "create_issue" matches "issue".
var nameSplitter = strings.NewReplacer("_", " ", "-", " ", ":", " ", ".", " ", "/", " ")

// BleveSearcher indexes catalog tools for BM25 keyword search.
type BleveSearcher struct {
	index  bleve.Index
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewBleveSearcher creates a searcher with an in-memory index.
func NewBleveSearcher(logger *zap.Logger) (*BleveSearcher, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create bleve index: %w", err)
	}
	return newSearcher(index, logger), nil
}

// NewBleveSearcherAt opens or creates a persistent index at indexPath.
func NewBleveSearcherAt(indexPath string, logger *zap.Logger) (*BleveSearcher, error) {
	if err := os.MkdirAll(filepath.Dir(indexPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create index directory: %w", err)
	}

	index, err := bleve.NewUsing(indexPath, buildIndexMapping(), scorch.Name, scorch.Name, nil)
	if err != nil {
		index, err = bleve.Open(indexPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open/create index: %w", err)
		}
	}
	return newSearcher(index, logger), nil
}

func newSearcher(index bleve.Index, logger *zap.Logger) *BleveSearcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BleveSearcher{index: index, logger: logger}
}

// buildIndexMapping creates the Bleve index mapping.
func buildIndexMapping() mapping.IndexMapping {
	toolMapping := bleve.NewDocumentMapping()

	toolMapping.AddFieldMappingsAt("name", bleve.NewTextFieldMapping())
	toolMapping.AddFieldMappingsAt("terms", bleve.NewTextFieldMapping())
	toolMapping.AddFieldMappingsAt("description", bleve.NewTextFieldMapping())
	toolMapping.AddFieldMappingsAt("serverTerms", bleve.NewTextFieldMapping())

	// server is matched whole, so "my-server" is one term.
	serverMapping := bleve.NewKeywordFieldMapping()
	serverMapping.IncludeInAll = false
	toolMapping.AddFieldMappingsAt("server", serverMapping)

	// InputSchema: stored but not indexed (for retrieval)
	inputSchemaMapping := bleve.NewTextFieldMapping()
	inputSchemaMapping.Index = false
	inputSchemaMapping.IncludeInAll = false
	toolMapping.AddFieldMappingsAt("inputSchema", inputSchemaMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", toolMapping)

	return indexMapping
}

func toolDocument(tool catalog.Tool) map[string]interface{} {
	return map[string]interface{}{
		"name":        tool.Name,
		"terms":       nameSplitter.Replace(tool.Name),
		"description": tool.Description,
		"server":      tool.Server,
		"serverTerms": nameSplitter.Replace(tool.Server),
		"inputSchema": string(tool.InputSchema),
	}
}

// Index adds or replaces tools, keyed by qualified name.
func (b *BleveSearcher) Index(tools []catalog.Tool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.indexLocked(tools)
}

func (b *BleveSearcher) indexLocked(tools []catalog.Tool) error {
	batch := b.index.NewBatch()
	for _, tool := range tools {
		if tool.Name == "" {
			continue
		}
		if err := batch.Index(tool.Name, toolDocument(tool)); err != nil {
			b.logger.Warn("failed to index tool", zap.String("tool", tool.Name), zap.Error(err))
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to batch index tools: %w", err)
	}
	return nil
}

// Refresh replaces the index contents with the source's current catalog.
// Tools no longer listed are removed. Returns the number of indexed tools.
func (b *BleveSearcher) Refresh(ctx context.Context, src catalog.Source) (int, error) {
	tools, err := src.ListTools(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch catalog: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	existing, err := b.allIDsLocked()
	if err != nil {
		return 0, err
	}

	listed := make(map[string]bool, len(tools))
	for _, tool := range tools {
		listed[tool.Name] = true
	}

	batch := b.index.NewBatch()
	for _, id := range existing {
		if !listed[id] {
			batch.Delete(id)
		}
	}
	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			return 0, fmt.Errorf("failed to batch delete: %w", err)
		}
	}

	if err := b.indexLocked(tools); err != nil {
		return 0, err
	}
	return len(listed), nil
}

func (b *BleveSearcher) allIDsLocked() ([]string, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to get doc count: %w", err)
	}
	if count == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(count), 0, false)
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list indexed tools: %w", err)
	}

	ids := make([]string, 0, len(results.Hits))
	for _, hit := range results.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// Search performs BM25 keyword search and returns tools best first.
func (b *BleveSearcher) Search(ctx context.Context, text string, limit int) ([]catalog.Tool, error) {
	return b.search(ctx, buildMatchQuery(text), limit)
}

// SearchByServer performs BM25 search scoped to a specific server. The
// server name must match exactly.
func (b *BleveSearcher) SearchByServer(ctx context.Context, text, serverName string, limit int) ([]catalog.Tool, error) {
	serverQuery := bleve.NewTermQuery(serverName)
	serverQuery.SetField("server")

	return b.search(ctx, bleve.NewConjunctionQuery(buildMatchQuery(text), serverQuery), limit)
}

func (b *BleveSearcher) search(ctx context.Context, q query.Query, limit int) ([]catalog.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if limit <= 0 {
		limit = defaultLimit
	}

	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	req.Fields = searchFields

	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}
	return convertBleveResults(results), nil
}

// buildMatchQuery matches across the indexed text fields.
func buildMatchQuery(text string) query.Query {
	return bleve.NewMatchQuery(nameSplitter.Replace(text))
}

// convertBleveResults converts Bleve hits to catalog tools.
func convertBleveResults(results *bleve.SearchResult) []catalog.Tool {
	tools := make([]catalog.Tool, 0, len(results.Hits))

	for _, hit := range results.Hits {
		name, _ := hit.Fields["name"].(string)
		description, _ := hit.Fields["description"].(string)
		server, _ := hit.Fields["server"].(string)

		tool := catalog.Tool{
			Name:        name,
			Server:      server,
			Description: description,
			Score:       hit.Score,
		}
		if schema, ok := hit.Fields["inputSchema"].(string); ok && json.Valid([]byte(schema)) {
			tool.InputSchema = json.RawMessage(schema)
		}
		if tool.Name == "" {
			tool.Name = hit.ID
		}

		tools = append(tools, tool)
	}

	return tools
}

// Count returns the total number of indexed tools.
func (b *BleveSearcher) Count() (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	docCount, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to get doc count: %w", err)
	}
	return docCount, nil
}

// Close closes the index and releases resources.
func (b *BleveSearcher) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index != nil {
		return b.index.Close()
	}
	return nil
}
