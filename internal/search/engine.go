package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/khanglvm/tool-hub-search/internal/catalog"
	"github.com/khanglvm/tool-hub-search/internal/embedding"
	"github.com/khanglvm/tool-hub-search/internal/fusion"
	"github.com/khanglvm/tool-hub-search/internal/metrics"
	"github.com/khanglvm/tool-hub-search/internal/vectorindex"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Options tunes the strategies.
type Options struct {
	Weights fusion.Weights
	Fusion  fusion.Method

	// ServerTopK is how many server summaries feed context scores.
	ServerTopK int

	// MaxOverfetch caps the tool index over-fetch of limit*3.
	MaxOverfetch int
}

// DefaultOptions returns the standard tuning.
func DefaultOptions() Options {
	return Options{
		Weights:      fusion.DefaultWeights,
		Fusion:       fusion.MethodRank,
		ServerTopK:   5,
		MaxOverfetch: 50,
	}
}

// Engine runs the retrieval strategies against injected indices.
type Engine struct {
	tools    vectorindex.Index
	servers  vectorindex.Index
	embedder embedding.Provider
	keyword  catalog.KeywordSearcher
	opts     Options
	metrics  *metrics.Metrics
	logger   *zap.Logger
}

// NewEngine creates an engine. keyword may be nil, in which case hybrid
// search runs degraded on semantic results only.
func NewEngine(tools, servers vectorindex.Index, embedder embedding.Provider, keyword catalog.KeywordSearcher, opts Options, m *metrics.Metrics, logger *zap.Logger) *Engine {
	defaults := DefaultOptions()
	if opts.ServerTopK <= 0 {
		opts.ServerTopK = defaults.ServerTopK
	}
	if opts.MaxOverfetch <= 0 {
		opts.MaxOverfetch = defaults.MaxOverfetch
	}
	if opts.Fusion == "" {
		opts.Fusion = defaults.Fusion
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Engine{
		tools:    tools,
		servers:  servers,
		embedder: embedder,
		keyword:  keyword,
		opts:     opts,
		metrics:  m,
		logger:   logger,
	}
}

// Search dispatches on q.Mode.
func (e *Engine) Search(ctx context.Context, q Query) (Result, error) {
	switch q.Mode {
	case ModeSemantic:
		return e.Semantic(ctx, q)
	case ModeContextAware:
		return e.ContextAware(ctx, q)
	default:
		return e.Hybrid(ctx, q)
	}
}

// Semantic ranks tools by fused tool similarity and server context.
func (e *Engine) Semantic(ctx context.Context, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	vec, err := e.embedder.Embed(ctx, q.Text)
	if err != nil {
		return Result{}, fmt.Errorf("%w: embed query: %w", ErrRetrieval, err)
	}

	k := e.opts.MaxOverfetch
	if q.Limit <= e.opts.MaxOverfetch/3 {
		k = q.Limit * 3
	}

	var serverHits, toolHits []vectorindex.Hit
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := e.servers.Query(gctx, vec, e.opts.ServerTopK)
		if err != nil {
			return fmt.Errorf("server index: %w", err)
		}
		serverHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := e.tools.Query(gctx, vec, k)
		if err != nil {
			return fmt.Errorf("tool index: %w", err)
		}
		toolHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrRetrieval, err)
	}

	if len(toolHits) == 0 {
		return Result{Candidates: []Candidate{}, Reasoning: "No tools found matching the query"}, nil
	}

	serverScores := make(map[string]float64, len(serverHits))
	for _, hit := range serverHits {
		serverScores[hit.ID] = vectorindex.Similarity(hit.Distance)
	}

	candidates := make([]Candidate, 0, len(toolHits))
	for _, hit := range toolHits {
		server := hit.MetaString(vectorindex.MetaServerName)
		similarity := vectorindex.Similarity(hit.Distance)
		contextScore := serverScores[server]

		c := Candidate{
			ToolName:        hit.ID,
			ServerName:      server,
			Description:     hit.MetaString(vectorindex.MetaDescription),
			SimilarityScore: similarity,
			ContextScore:    contextScore,
			FinalScore:      e.opts.Weights.Final(similarity, contextScore),
		}
		if schema := hit.MetaString(vectorindex.MetaInputSchema); schema != "" && json.Valid([]byte(schema)) {
			c.InputSchema = json.RawMessage(schema)
		}
		if q.IncludeReasoning {
			c.Reasoning = fmt.Sprintf("Similarity: %.2f, Server relevance: %.2f", similarity, contextScore)
			if contextScore > 0.5 {
				c.Reasoning += fmt.Sprintf(" (High relevance from %s)", server)
			}
		}
		candidates = append(candidates, c)
	}

	SortCandidates(candidates)
	top := truncate(candidates, q.Limit)

	reasoning := fmt.Sprintf("Found %d candidates, selected top %d based on semantic similarity and server context",
		len(candidates), len(top))
	if len(serverScores) > 0 {
		reasoning += ". Prioritized servers: " + strings.Join(topServers(serverHits, 3), ", ")
	}

	return Result{
		Candidates: top,
		Reasoning:  reasoning,
		Considered: len(candidates),
	}, nil
}

// topServers returns up to n server ids by descending similarity, keeping
// index order on ties.
func topServers(hits []vectorindex.Hit, n int) []string {
	sorted := make([]vectorindex.Hit, len(hits))
	copy(sorted, hits)
	sort.SliceStable(sorted, func(i, j int) bool {
		return vectorindex.Similarity(sorted[i].Distance) > vectorindex.Similarity(sorted[j].Distance)
	})

	names := make([]string, 0, n)
	for _, hit := range sorted {
		if len(names) == n {
			break
		}
		names = append(names, hit.ID)
	}
	return names
}
