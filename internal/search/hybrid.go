package search

import (
	"context"
	"fmt"

	"github.com/khanglvm/tool-hub-search/internal/catalog"
	"github.com/khanglvm/tool-hub-search/internal/fusion"
	"go.uber.org/zap"
)

// Hybrid merges semantic results with the keyword provider's ranking.
//
// A keyword failure does not fail the search: it is logged as ErrRetrieval
// and the semantic ranking is returned unchanged with Degraded set.
func (e *Engine) Hybrid(ctx context.Context, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	semantic, err := e.Semantic(ctx, q)
	if err != nil {
		return Result{}, err
	}

	keywordTools, kerr := e.keywordSearch(ctx, q)
	if kerr != nil {
		e.metrics.KeywordFailure()
		e.logger.Warn("keyword search failed, using semantic ranking only", zap.Error(kerr))

		semantic.Degraded = kerr.Error()
		semantic.Reasoning = fmt.Sprintf("Hybrid search: %d semantic + 0 keyword results (keyword search unavailable, semantic ranking only)",
			len(semantic.Candidates))
		return semantic, nil
	}

	semEntries := make([]fusion.Entry, len(semantic.Candidates))
	byName := make(map[string]Candidate, len(semantic.Candidates)+len(keywordTools))
	for i, c := range semantic.Candidates {
		semEntries[i] = fusion.Entry{Key: c.ToolName, Score: c.FinalScore}
		byName[c.ToolName] = c
	}

	kwEntries := make([]fusion.Entry, 0, len(keywordTools))
	keywordOnly := make(map[string]bool, len(keywordTools))
	for i, tool := range keywordTools {
		score := tool.Score
		if score == 0 {
			// Providers that return no scores are ranked by position.
			score = fusion.RankScore(i, len(keywordTools))
		}
		kwEntries = append(kwEntries, fusion.Entry{Key: tool.Name, Score: score})

		if c, ok := byName[tool.Name]; ok {
			if len(c.InputSchema) == 0 && len(tool.InputSchema) > 0 {
				c.InputSchema = tool.InputSchema
				byName[tool.Name] = c
			}
			continue
		}
		if !keywordOnly[tool.Name] {
			keywordOnly[tool.Name] = true
			byName[tool.Name] = Candidate{
				ToolName:    tool.Name,
				ServerName:  tool.Server,
				Description: tool.Description,
				InputSchema: tool.InputSchema,
			}
		}
	}

	fused := e.opts.Fusion.Combine(semEntries, kwEntries, q.SemanticWeight)

	candidates := make([]Candidate, 0, len(fused))
	for _, f := range fused {
		c := byName[f.Key]
		c.FinalScore = f.Score
		c.Reasoning = ""
		if q.IncludeReasoning {
			c.Reasoning = fmt.Sprintf("Hybrid: semantic=%.2f, keyword=%.2f", f.Semantic, f.Keyword)
		}
		candidates = append(candidates, c)
	}

	return Result{
		Candidates: truncate(candidates, q.Limit),
		Reasoning:  fmt.Sprintf("Hybrid search: %d semantic + %d keyword results", len(semantic.Candidates), len(keywordTools)),
		Considered: len(candidates),
	}, nil
}

func (e *Engine) keywordSearch(ctx context.Context, q Query) ([]catalog.Tool, error) {
	if e.keyword == nil {
		return nil, fmt.Errorf("%w: no keyword search provider configured", ErrRetrieval)
	}

	tools, err := e.keyword.Search(ctx, q.Text, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("%w: keyword search: %w", ErrRetrieval, err)
	}

	// Unnamed hits cannot be merged.
	out := tools[:0:0]
	for _, tool := range tools {
		if tool.Name != "" {
			out = append(out, tool)
		}
	}
	return out, nil
}
