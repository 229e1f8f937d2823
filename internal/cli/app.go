package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/catalog"
	"github.com/khanglvm/tool-hub-search/internal/checkpoint"
	"github.com/khanglvm/tool-hub-search/internal/config"
	"github.com/khanglvm/tool-hub-search/internal/embedding"
	"github.com/khanglvm/tool-hub-search/internal/indexing"
	"github.com/khanglvm/tool-hub-search/internal/keyword"
	"github.com/khanglvm/tool-hub-search/internal/metrics"
	"github.com/khanglvm/tool-hub-search/internal/search"
	"github.com/khanglvm/tool-hub-search/internal/storage"
	"github.com/khanglvm/tool-hub-search/internal/vectorindex"
	"github.com/khanglvm/tool-hub-search/internal/version"
	"github.com/khanglvm/tool-hub-search/internal/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// App holds the wired components shared by every command.
type App struct {
	Config      *config.Config
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Storage     *storage.SQLiteStorage
	Tools       vectorindex.Index
	Servers     vectorindex.Index
	Indexer     *hubIndexer
	Engine      *search.Engine
	Workflow    *workflow.Orchestrator
	Checkpoints checkpoint.Store

	closers []func() error
}

// newApp loads the configuration named by the global flags, applies
// overrides and wires the application.
func newApp(ctx context.Context, g *globalOptions, overrides ...func(*config.Config)) (*App, error) {
	logger, err := newLogger(g.logLevel)
	if err != nil {
		return nil, err
	}

	path, err := g.configFile()
	if err != nil {
		return nil, err
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	for _, override := range overrides {
		override(cfg)
	}
	return buildApp(ctx, cfg, nil, logger)
}

// buildApp wires the components for cfg. A nil source selects the one
// named by sync.source.
func buildApp(ctx context.Context, cfg *config.Config, source catalog.Source, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(prometheus.NewRegistry()),
	}

	dbPath, err := resolveStoragePath(cfg.Storage.Path)
	if err != nil {
		return nil, err
	}
	a.Storage = storage.NewStorage(dbPath, logger)
	if err := a.Storage.Init(); err != nil {
		logger.Warn("continuing without persistent storage", zap.Error(err))
	}
	a.onClose(a.Storage.Close)
	if cfg.Storage.RetentionDays > 0 {
		a.Storage.Cleanup(time.Duration(cfg.Storage.RetentionDays) * 24 * time.Hour)
	}

	if err := a.openIndices(); err != nil {
		a.Close()
		return nil, err
	}

	base, err := embedding.New(cfg.EmbeddingOptions())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create embedding provider: %w", err)
	}
	if cfg.Embedding.Cache {
		base = embedding.NewCachedProvider(base, a.Storage, logger)
	}
	searchEmbedder := metrics.InstrumentProvider(embedding.NewPool(base, cfg.Search.Workers), "search", a.Metrics)
	syncEmbedder := metrics.InstrumentProvider(embedding.NewPool(base, cfg.Sync.Workers), "sync", a.Metrics)

	if source == nil {
		source = newSource(cfg, logger)
	}
	snapshot := &snapshotSource{inner: source}

	a.Indexer = &hubIndexer{
		Indexer: indexing.NewIndexer(a.Tools, a.Servers, syncEmbedder, snapshot, indexing.Options{
			PruneStale: cfg.Sync.PruneStale,
			Workers:    cfg.Sync.Workers,
		}, a.Metrics, logger),
		prune:  cfg.Sync.PruneStale,
		tools:  a.Tools,
		source: snapshot,
		logger: logger,
	}

	kw, err := a.keywordSearcher(source, dbPath)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Engine = search.NewEngine(a.Tools, a.Servers, searchEmbedder, kw, cfg.SearchOptions(), a.Metrics, logger)

	a.Checkpoints, err = checkpoint.Open(ctx, cfg.CheckpointOptions(), a.Storage.DB())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	a.onClose(a.Checkpoints.Close)

	a.Workflow = workflow.New(a.Engine, cfg.WorkflowOptions(), logger,
		workflow.WithServers(a.Indexer),
		workflow.WithCheckpoints(a.Checkpoints),
		workflow.WithHistory(a.Storage),
		workflow.WithMetrics(a.Metrics),
	)

	if tools, servers, err := a.Indexer.Counts(ctx); err == nil {
		a.Metrics.SetIndexSizes(tools, servers)
	}
	return a, nil
}

// openIndices uses the SQLite collections, or memory when storage is off.
func (a *App) openIndices() error {
	db := a.Storage.DB()
	if db == nil {
		a.Tools = vectorindex.NewMemoryIndex()
		a.Servers = vectorindex.NewMemoryIndex()
		return nil
	}

	tools, err := vectorindex.NewSQLiteIndex(db, "tools")
	if err != nil {
		return fmt.Errorf("failed to open tool index: %w", err)
	}
	servers, err := vectorindex.NewSQLiteIndex(db, "servers")
	if err != nil {
		return fmt.Errorf("failed to open server index: %w", err)
	}
	a.Tools, a.Servers = tools, servers
	a.onClose(tools.Close)
	a.onClose(servers.Close)
	return nil
}

// keywordSearcher returns the lexical list provider. The aggregator serves
// its own keyword search; any other source gets a Bleve index refreshed
// after each sync.
func (a *App) keywordSearcher(source catalog.Source, dbPath string) (catalog.KeywordSearcher, error) {
	if ks, ok := source.(catalog.KeywordSearcher); ok {
		return ks, nil
	}

	var (
		bs  *keyword.BleveSearcher
		err error
	)
	if a.Storage.DB() == nil || dbPath == ":memory:" {
		bs, err = keyword.NewBleveSearcher(a.Logger)
	} else {
		bs, err = keyword.NewBleveSearcherAt(filepath.Join(filepath.Dir(dbPath), "keyword.bleve"), a.Logger)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open keyword index: %w", err)
	}
	a.onClose(bs.Close)
	a.Indexer.keyword = bs
	return bs, nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	a.Logger.Sync()
	return errors.Join(errs...)
}

func resolveStoragePath(path string) (string, error) {
	if path == "" {
		return storage.DefaultPath()
	}
	return expandHome(path)
}

func newSource(cfg *config.Config, logger *zap.Logger) catalog.Source {
	timeout := time.Duration(cfg.Aggregator.TimeoutSeconds) * time.Second
	if cfg.Sync.Source == config.SourceMCP {
		return catalog.NewMCPSource(cfg.ServerSpecs(), version.Version, logger,
			catalog.WithConcurrency(cfg.Sync.Workers),
			catalog.WithTimeout(timeout),
		)
	}
	return catalog.NewHTTPClient(cfg.Aggregator.URL, timeout)
}

// snapshotSource keeps the last catalog it listed.
type snapshotSource struct {
	inner catalog.Source
	mu    sync.Mutex
	last  []catalog.Tool
}

func (s *snapshotSource) ListTools(ctx context.Context) ([]catalog.Tool, error) {
	tools, err := s.inner.ListTools(ctx)
	var partial *catalog.PartialError
	if err != nil && !errors.As(err, &partial) {
		return nil, err
	}
	s.mu.Lock()
	s.last = tools
	s.mu.Unlock()
	return tools, err
}

func (s *snapshotSource) Last() []catalog.Tool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// hubIndexer updates the local keyword index after every sync, reusing
// the catalog the sync fetched. Stale keyword documents are dropped only
// when the sync pruned the vector index too.
type hubIndexer struct {
	*indexing.Indexer
	prune   bool
	tools   vectorindex.Index
	source  *snapshotSource
	keyword *keyword.BleveSearcher
	logger  *zap.Logger
}

func (h *hubIndexer) Sync(ctx context.Context) (indexing.Report, error) {
	report, err := h.Indexer.Sync(ctx)
	if err != nil || h.keyword == nil {
		return report, err
	}

	last := h.source.Last()
	if h.prune && len(report.Unreachable) == 0 {
		_, err = h.keyword.Refresh(ctx, &catalog.StaticSource{Tools: last})
	} else {
		err = h.keyword.Index(last)
	}
	if err != nil {
		h.logger.Warn("keyword index refresh failed", zap.Error(err))
	}
	return report, nil
}

// RemoveServer drops the server from the vector indices and rebuilds the
// local keyword index from the tools that remain.
func (h *hubIndexer) RemoveServer(ctx context.Context, name string) (int, error) {
	removed, err := h.Indexer.RemoveServer(ctx, name)
	if err != nil || h.keyword == nil || removed == 0 {
		return removed, err
	}

	remaining, err := toolsFromIndex(ctx, h.tools)
	if err != nil {
		return removed, err
	}
	if _, err := h.keyword.Refresh(ctx, &catalog.StaticSource{Tools: remaining}); err != nil {
		h.logger.Warn("keyword index refresh failed", zap.Error(err))
	}
	return removed, nil
}

// toolsFromIndex rebuilds catalog entries from tool index metadata.
func toolsFromIndex(ctx context.Context, idx vectorindex.Index) ([]catalog.Tool, error) {
	recs, err := idx.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read tool index: %w", err)
	}
	tools := make([]catalog.Tool, 0, len(recs))
	for _, rec := range recs {
		tool := catalog.Tool{
			Name:        rec.ID,
			Server:      rec.MetaString(vectorindex.MetaServerName),
			Description: rec.MetaString(vectorindex.MetaDescription),
		}
		if schema := rec.MetaString(vectorindex.MetaInputSchema); schema != "" {
			tool.InputSchema = json.RawMessage(schema)
		}
		tools = append(tools, tool)
	}
	return tools, nil
}
