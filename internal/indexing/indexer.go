/*
Package indexing writes tools and server summaries into the vector indices
and keeps the tool index in step with the aggregator catalog.
*/
package indexing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/catalog"
	"github.com/khanglvm/tool-hub-search/internal/embedding"
	"github.com/khanglvm/tool-hub-search/internal/metrics"
	"github.com/khanglvm/tool-hub-search/internal/vectorindex"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options configures sync behaviour.
type Options struct {
	// PruneStale deletes tool records missing from a successful catalog
	// fetch. Off by default: stale tools stay searchable until removed.
	PruneStale bool

	// Workers bounds concurrent embeddings during sync.
	Workers int
}

// Indexer owns writes to the tool and server indices.
type Indexer struct {
	tools    vectorindex.Index
	servers  vectorindex.Index
	embedder embedding.Provider
	source   catalog.Source
	opts     Options
	metrics  *metrics.Metrics
	logger   *zap.Logger

	// syncMu serializes Sync runs.
	syncMu sync.Mutex
}

// NewIndexer creates an indexer. source may be nil if Sync is never called.
func NewIndexer(tools, servers vectorindex.Index, embedder embedding.Provider, source catalog.Source, opts Options, m *metrics.Metrics, logger *zap.Logger) *Indexer {
	if opts.Workers <= 0 {
		opts.Workers = embedding.DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{
		tools:    tools,
		servers:  servers,
		embedder: embedder,
		source:   source,
		opts:     opts,
		metrics:  m,
		logger:   logger,
	}
}

// IndexTool embeds and upserts one tool.
func (x *Indexer) IndexTool(ctx context.Context, tool catalog.Tool, serverContext string) error {
	rec, err := x.toolRecord(ctx, tool, serverContext)
	if err != nil {
		return err
	}
	if err := x.tools.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert %s: %w", tool.Name, err)
	}
	return nil
}

func (x *Indexer) toolRecord(ctx context.Context, tool catalog.Tool, serverContext string) (vectorindex.Record, error) {
	if tool.Name == "" || tool.Server == "" {
		return vectorindex.Record{}, fmt.Errorf("tool name and server are required")
	}

	params, err := ParameterNames(tool.InputSchema)
	if err != nil {
		return vectorindex.Record{}, fmt.Errorf("%s: %w", tool.Name, err)
	}

	doc := ToolDocument(tool, params, serverContext)
	vec, err := x.embedder.Embed(ctx, doc)
	if err != nil {
		return vectorindex.Record{}, fmt.Errorf("embed %s: %w", tool.Name, err)
	}

	meta := map[string]any{
		vectorindex.MetaServerName:  tool.Server,
		vectorindex.MetaDescription: tool.Description,
		"has_server_context":        serverContext != "",
	}
	if len(tool.InputSchema) > 0 {
		meta[vectorindex.MetaInputSchema] = string(tool.InputSchema)
	}
	if len(params) > 0 {
		meta[vectorindex.MetaParameters] = params
	}

	return vectorindex.Record{
		ID:        tool.Name,
		Document:  doc,
		Embedding: vec,
		Metadata:  meta,
	}, nil
}

// IndexServerSummary embeds and upserts one server summary.
func (x *Indexer) IndexServerSummary(ctx context.Context, s ServerSummary) error {
	if s.ServerName == "" {
		return fmt.Errorf("server_name is required")
	}

	doc := ServerDocument(s)
	vec, err := x.embedder.Embed(ctx, doc)
	if err != nil {
		return fmt.Errorf("embed server %s: %w", s.ServerName, err)
	}

	rec := vectorindex.Record{
		ID:        s.ServerName,
		Document:  doc,
		Embedding: vec,
		Metadata: map[string]any{
			vectorindex.MetaServerName:   s.ServerName,
			vectorindex.MetaSummary:      s.Summary,
			vectorindex.MetaCapabilities: nonNil(s.Capabilities),
			vectorindex.MetaUseCases:     nonNil(s.TypicalUseCases),
		},
	}
	if err := x.servers.Upsert(ctx, rec); err != nil {
		return fmt.Errorf("upsert server %s: %w", s.ServerName, err)
	}

	x.logger.Info("indexed server summary", zap.String("server", s.ServerName))
	return nil
}

// ListServers returns every indexed server summary ordered by name.
func (x *Indexer) ListServers(ctx context.Context) ([]ServerSummary, error) {
	recs, err := x.servers.All(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]ServerSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, ServerSummary{
			ServerName:      rec.ID,
			Summary:         rec.MetaString(vectorindex.MetaSummary),
			Capabilities:    nonNil(rec.MetaStrings(vectorindex.MetaCapabilities)),
			TypicalUseCases: nonNil(rec.MetaStrings(vectorindex.MetaUseCases)),
		})
	}
	return out, nil
}

// Counts returns the sizes of the tool and server indices.
func (x *Indexer) Counts(ctx context.Context) (tools, servers int, err error) {
	if tools, err = x.tools.Count(ctx); err != nil {
		return 0, 0, err
	}
	if servers, err = x.servers.Count(ctx); err != nil {
		return 0, 0, err
	}
	return tools, servers, nil
}

// RemoveServer deletes the server's summary and every tool it exposes.
// It returns the number of tools removed.
func (x *Indexer) RemoveServer(ctx context.Context, name string) (int, error) {
	if name == "" {
		return 0, fmt.Errorf("server name is required")
	}

	x.syncMu.Lock()
	defer x.syncMu.Unlock()

	recs, err := x.tools.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read tool index: %w", err)
	}
	var ids []string
	for _, rec := range recs {
		if rec.MetaString(vectorindex.MetaServerName) == name {
			ids = append(ids, rec.ID)
		}
	}
	if len(ids) > 0 {
		if err := x.tools.Delete(ctx, ids); err != nil {
			return 0, fmt.Errorf("failed to delete tools: %w", err)
		}
	}
	if err := x.servers.Delete(ctx, []string{name}); err != nil {
		return len(ids), fmt.Errorf("failed to delete server summary: %w", err)
	}

	x.logger.Info("removed server from index", zap.String("server", name), zap.Int("tools", len(ids)))
	if tools, servers, err := x.Counts(ctx); err == nil {
		x.metrics.SetIndexSizes(tools, servers)
	}
	return len(ids), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// ToolError records one tool that could not be indexed.
type ToolError struct {
	Tool  string `json:"tool"`
	Error string `json:"error"`
}

// Report summarizes a sync run.
type Report struct {
	Indexed  int           `json:"indexed"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Removed  int           `json:"removed"`
	Errors   []ToolError   `json:"errors,omitempty"`

	// Unreachable lists servers the source could not list. Pruning is
	// skipped when it is non-empty.
	Unreachable []string `json:"unreachable_servers,omitempty"`

	Duration time.Duration `json:"duration_ns"`
}

// Sync pulls the full catalog and re-indexes every tool. Per-tool failures
// are counted in the report; only a failed catalog fetch returns an error.
func (x *Indexer) Sync(ctx context.Context) (Report, error) {
	x.syncMu.Lock()
	defer x.syncMu.Unlock()

	start := time.Now()
	report, err := x.sync(ctx)
	report.Duration = time.Since(start)

	x.metrics.ObserveSync(report.Indexed, report.Failed, report.Skipped, report.Removed, err != nil, report.Duration)
	if toolCount, serverCount, cerr := x.Counts(ctx); cerr == nil {
		x.metrics.SetIndexSizes(toolCount, serverCount)
	}

	if err != nil {
		x.logger.Error("sync failed", zap.Error(err))
		return report, err
	}

	x.logger.Info("sync complete",
		zap.Int("indexed", report.Indexed),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("removed", report.Removed),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

func (x *Indexer) sync(ctx context.Context) (Report, error) {
	var report Report

	if x.source == nil {
		return report, fmt.Errorf("no catalog source configured")
	}

	tools, err := x.source.ListTools(ctx)
	var partial *catalog.PartialError
	switch {
	case errors.As(err, &partial):
		report.Unreachable = partial.Servers()
		x.logger.Warn("catalog is incomplete", zap.Strings("servers", report.Unreachable))
	case err != nil:
		return report, fmt.Errorf("fetch catalog: %w", err)
	}

	serverDocs := x.serverDocuments(ctx)

	// Later duplicates replace earlier ones, matching upsert semantics.
	order := make([]string, 0, len(tools))
	byName := make(map[string]catalog.Tool, len(tools))
	for _, tool := range tools {
		if tool.Name == "" || tool.Server == "" {
			report.Skipped++
			continue
		}
		if _, seen := byName[tool.Name]; !seen {
			order = append(order, tool.Name)
		}
		byName[tool.Name] = tool
	}

	records := make([]vectorindex.Record, len(order))
	failures := make([]error, len(order))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(x.opts.Workers)
	for i, name := range order {
		i, tool := i, byName[name]
		g.Go(func() error {
			rec, err := x.toolRecord(gctx, tool, serverDocs[tool.Server])
			if err != nil {
				failures[i] = err
				return nil
			}
			records[i] = rec
			return nil
		})
	}
	g.Wait()

	batch := make([]vectorindex.Record, 0, len(order))
	for i, name := range order {
		if failures[i] != nil {
			report.Failed++
			report.Errors = append(report.Errors, ToolError{Tool: name, Error: failures[i].Error()})
			x.logger.Warn("failed to index tool", zap.String("tool", name), zap.Error(failures[i]))
			continue
		}
		batch = append(batch, records[i])
	}

	batch, odd := splitByDimension(batch)
	for _, rec := range odd {
		err := fmt.Errorf("embedding has %d dimensions, batch has %d: %w",
			len(rec.Embedding), len(batch[0].Embedding), vectorindex.ErrDimensionMismatch)
		report.Failed++
		report.Errors = append(report.Errors, ToolError{Tool: rec.ID, Error: err.Error()})
		x.logger.Warn("failed to index tool", zap.String("tool", rec.ID), zap.Error(err))
	}

	if err := x.tools.UpsertBatch(ctx, batch); err != nil {
		x.logger.Warn("failed to write tool batch", zap.Int("tools", len(batch)), zap.Error(err))
		for _, rec := range batch {
			report.Errors = append(report.Errors, ToolError{Tool: rec.ID, Error: err.Error()})
		}
		report.Failed += len(batch)
		return report, nil
	}
	report.Indexed = len(batch)

	if x.opts.PruneStale && len(report.Unreachable) == 0 {
		report.Removed = x.pruneStale(ctx, byName)
	}

	return report, nil
}

// splitByDimension keeps the records whose embedding length is the most
// common one in recs and returns the rest separately.
func splitByDimension(recs []vectorindex.Record) (kept, odd []vectorindex.Record) {
	counts := make(map[int]int)
	best, bestCount := 0, 0
	for _, rec := range recs {
		n := len(rec.Embedding)
		counts[n]++
		if counts[n] > bestCount {
			best, bestCount = n, counts[n]
		}
	}

	kept = recs[:0:0]
	for _, rec := range recs {
		if len(rec.Embedding) == best {
			kept = append(kept, rec)
		} else {
			odd = append(odd, rec)
		}
	}
	return kept, odd
}

// serverDocuments maps server name to its indexed summary document.
// Lookup failures leave tools without context.
func (x *Indexer) serverDocuments(ctx context.Context) map[string]string {
	docs := make(map[string]string)

	recs, err := x.servers.All(ctx)
	if err != nil {
		x.logger.Warn("failed to load server context", zap.Error(err))
		return docs
	}
	for _, rec := range recs {
		docs[rec.ID] = rec.Document
	}
	return docs
}

func (x *Indexer) pruneStale(ctx context.Context, listed map[string]catalog.Tool) int {
	recs, err := x.tools.All(ctx)
	if err != nil {
		x.logger.Warn("failed to list tools for pruning", zap.Error(err))
		return 0
	}

	var stale []string
	for _, rec := range recs {
		if _, ok := listed[rec.ID]; !ok {
			stale = append(stale, rec.ID)
		}
	}
	if len(stale) == 0 {
		return 0
	}

	if err := x.tools.Delete(ctx, stale); err != nil {
		x.logger.Warn("failed to prune stale tools", zap.Error(err))
		return 0
	}
	return len(stale)
}
