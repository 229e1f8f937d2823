package search

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/khanglvm/tool-hub-search/internal/catalog"
	"github.com/khanglvm/tool-hub-search/internal/embedding"
	"github.com/khanglvm/tool-hub-search/internal/fusion"
	"github.com/khanglvm/tool-hub-search/internal/vectorindex"
)

const eps = 1e-9

type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, ok := f.vectors[text]
	if !ok {
		return nil, errors.Join(embedding.ErrEmbeddingFailure, errors.New("unknown text"))
	}
	return vec, nil
}

func (f *fakeEmbedder) Model() string { return "fake" }

type fakeKeyword struct {
	tools []catalog.Tool
	err   error
}

func (f *fakeKeyword) Search(ctx context.Context, query string, limit int) ([]catalog.Tool, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(f.tools) > limit {
		return f.tools[:limit], nil
	}
	return f.tools, nil
}

type spyIndex struct {
	vectorindex.Index
	lastK int
}

func (s *spyIndex) Query(ctx context.Context, vec []float32, k int) ([]vectorindex.Hit, error) {
	s.lastK = k
	return s.Index.Query(ctx, vec, k)
}

func toolRecord(id, server string, vec ...float32) vectorindex.Record {
	return vectorindex.Record{
		ID:        id,
		Document:  id,
		Embedding: vec,
		Metadata: map[string]any{
			vectorindex.MetaServerName:  server,
			vectorindex.MetaDescription: "description of " + id,
		},
	}
}

type fixture struct {
	tools   *vectorindex.MemoryIndex
	servers *vectorindex.MemoryIndex
	embed   *fakeEmbedder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		tools:   vectorindex.NewMemoryIndex(),
		servers: vectorindex.NewMemoryIndex(),
		embed: &fakeEmbedder{vectors: map[string][]float32{
			"query": {1, 0},
		}},
	}

	ctx := context.Background()
	err := f.tools.UpsertBatch(ctx, []vectorindex.Record{
		toolRecord("github:create_issue", "github", 1, 0),
		toolRecord("fs:read_file", "fs", 0.8, 0.6),
		toolRecord("fs:write_file", "fs", 0.6, 0.8),
	})
	if err != nil {
		t.Fatalf("UpsertBatch failed: %v", err)
	}
	if err := f.servers.Upsert(ctx, vectorindex.Record{ID: "github", Embedding: []float32{1, 0}}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	return f
}

func (f *fixture) engine(kw catalog.KeywordSearcher) *Engine {
	return NewEngine(f.tools, f.servers, f.embed, kw, DefaultOptions(), nil, nil)
}

func query(mode Mode, limit int) Query {
	return Query{Text: "query", Mode: mode, Limit: limit, SemanticWeight: DefaultSemanticWeight, IncludeReasoning: true}
}

func TestSemantic_FusesServerContext(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine(nil).Semantic(context.Background(), query(ModeSemantic, 5))
	if err != nil {
		t.Fatalf("Semantic failed: %v", err)
	}
	if len(res.Candidates) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(res.Candidates))
	}

	top := res.Candidates[0]
	if top.ToolName != "github:create_issue" {
		t.Errorf("expected github:create_issue first, got %s", top.ToolName)
	}
	if math.Abs(top.FinalScore-1.0) > 1e-6 || math.Abs(top.ContextScore-1.0) > 1e-6 {
		t.Errorf("unexpected scores %+v", top)
	}
	if !strings.Contains(top.Reasoning, "(High relevance from github)") {
		t.Errorf("expected high relevance note, got %q", top.Reasoning)
	}

	// fs has no summary: final is 0.7*similarity.
	second := res.Candidates[1]
	if second.ContextScore != 0 || math.Abs(second.FinalScore-0.7*second.SimilarityScore) > eps {
		t.Errorf("expected context-free fusion for fs, got %+v", second)
	}
	if second.Description != "description of fs:read_file" {
		t.Errorf("expected description from metadata, got %q", second.Description)
	}

	want := "Found 3 candidates, selected top 3 based on semantic similarity and server context. Prioritized servers: github"
	if res.Reasoning != want {
		t.Errorf("unexpected reasoning:\n got %q\nwant %q", res.Reasoning, want)
	}
}

func TestSemantic_LimitAndSortOrder(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine(nil).Semantic(context.Background(), query(ModeSemantic, 2))
	if err != nil {
		t.Fatalf("Semantic failed: %v", err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(res.Candidates))
	}
	if res.Considered != 3 {
		t.Errorf("expected 3 considered, got %d", res.Considered)
	}
	for i := 1; i < len(res.Candidates); i++ {
		if res.Candidates[i].FinalScore > res.Candidates[i-1].FinalScore {
			t.Errorf("candidates not sorted at %d", i)
		}
	}
	if !strings.HasPrefix(res.Reasoning, "Found 3 candidates, selected top 2") {
		t.Errorf("unexpected reasoning %q", res.Reasoning)
	}
}

func TestSemantic_TiesKeepIndexOrder(t *testing.T) {
	tools := vectorindex.NewMemoryIndex()
	tools.UpsertBatch(context.Background(), []vectorindex.Record{
		toolRecord("b:tool", "x", 1, 0),
		toolRecord("a:tool", "x", 1, 0),
	})
	embed := &fakeEmbedder{vectors: map[string][]float32{"query": {1, 0}}}

	e := NewEngine(tools, vectorindex.NewMemoryIndex(), embed, nil, DefaultOptions(), nil, nil)
	res, err := e.Semantic(context.Background(), query(ModeSemantic, 5))
	if err != nil {
		t.Fatalf("Semantic failed: %v", err)
	}
	if res.Candidates[0].ToolName != "a:tool" || res.Candidates[1].ToolName != "b:tool" {
		t.Errorf("expected id order on equal scores, got %s, %s", res.Candidates[0].ToolName, res.Candidates[1].ToolName)
	}
}

func TestSemantic_EmptyToolIndex(t *testing.T) {
	embed := &fakeEmbedder{vectors: map[string][]float32{"query": {1, 0}}}
	e := NewEngine(vectorindex.NewMemoryIndex(), vectorindex.NewMemoryIndex(), embed, nil, DefaultOptions(), nil, nil)

	res, err := e.Semantic(context.Background(), query(ModeSemantic, 5))
	if err != nil {
		t.Fatalf("empty index should not be an error: %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Errorf("expected no candidates, got %d", len(res.Candidates))
	}
	if res.Reasoning != "No tools found matching the query" {
		t.Errorf("unexpected reasoning %q", res.Reasoning)
	}
}

func TestSemantic_Overfetch(t *testing.T) {
	f := newFixture(t)
	spy := &spyIndex{Index: f.tools}
	e := NewEngine(spy, f.servers, f.embed, nil, DefaultOptions(), nil, nil)

	e.Semantic(context.Background(), query(ModeSemantic, 4))
	if spy.lastK != 12 {
		t.Errorf("expected k=12 for limit 4, got %d", spy.lastK)
	}

	e.Semantic(context.Background(), query(ModeSemantic, 40))
	if spy.lastK != 50 {
		t.Errorf("expected k capped at 50, got %d", spy.lastK)
	}
}

func TestHugeLimitDoesNotOverflow(t *testing.T) {
	f := newFixture(t)
	spy := &spyIndex{Index: f.tools}
	e := NewEngine(spy, f.servers, f.embed, nil, DefaultOptions(), nil, nil)

	for _, limit := range []int{1 << 62, math.MaxInt} {
		res, err := e.Semantic(context.Background(), query(ModeSemantic, limit))
		if err != nil {
			t.Fatalf("Semantic(limit=%d) failed: %v", limit, err)
		}
		if spy.lastK != 50 {
			t.Errorf("limit %d: expected k capped at 50, got %d", limit, spy.lastK)
		}
		if len(res.Candidates) != 3 {
			t.Errorf("limit %d: expected all 3 tools, got %d", limit, len(res.Candidates))
		}

		res, err = e.ContextAware(context.Background(), query(ModeContextAware, limit))
		if err != nil {
			t.Fatalf("ContextAware(limit=%d) failed: %v", limit, err)
		}
		if len(res.Candidates) != 3 {
			t.Errorf("limit %d: expected all 3 tools, got %d", limit, len(res.Candidates))
		}
	}
}

func TestSemantic_Validation(t *testing.T) {
	e := newFixture(t).engine(nil)

	cases := []struct {
		name  string
		q     Query
		field string
	}{
		{"empty text", Query{Text: "  ", Limit: 5}, "query"},
		{"zero limit", Query{Text: "query", Limit: 0}, "limit"},
		{"weight above one", Query{Text: "query", Limit: 5, SemanticWeight: 1.5}, "semantic_weight"},
		{"NaN weight", Query{Text: "query", Limit: 5, SemanticWeight: math.NaN()}, "semantic_weight"},
		{"unknown mode", Query{Text: "query", Limit: 5, Mode: "fuzzy"}, "mode"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Semantic(context.Background(), tc.q)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Field != tc.field {
				t.Errorf("expected field %s, got %s", tc.field, verr.Field)
			}
		})
	}
}

func TestSemantic_EmbeddingFailure(t *testing.T) {
	e := newFixture(t).engine(nil)

	q := query(ModeSemantic, 5)
	q.Text = "not embeddable"
	_, err := e.Semantic(context.Background(), q)
	if !errors.Is(err, ErrRetrieval) || !errors.Is(err, embedding.ErrEmbeddingFailure) {
		t.Errorf("expected ErrRetrieval wrapping ErrEmbeddingFailure, got %v", err)
	}
}

func TestSemantic_IndexUnavailable(t *testing.T) {
	f := newFixture(t)
	f.tools.Close()

	_, err := f.engine(nil).Semantic(context.Background(), query(ModeSemantic, 5))
	if !errors.Is(err, vectorindex.ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable, got %v", err)
	}
}

func TestHybrid_MergesKeywordResults(t *testing.T) {
	f := newFixture(t)
	kw := &fakeKeyword{tools: []catalog.Tool{
		{Name: "fs:write_file", Server: "fs"},
		{Name: "jira:create_ticket", Server: "jira", Description: "Create a ticket"},
	}}

	res, err := f.engine(kw).Hybrid(context.Background(), query(ModeHybrid, 5))
	if err != nil {
		t.Fatalf("Hybrid failed: %v", err)
	}
	if len(res.Candidates) != 4 {
		t.Fatalf("expected 4 merged candidates, got %d", len(res.Candidates))
	}
	if res.Reasoning != "Hybrid search: 3 semantic + 2 keyword results" {
		t.Errorf("unexpected reasoning %q", res.Reasoning)
	}

	var jira *Candidate
	for i := range res.Candidates {
		if res.Candidates[i].ToolName == "jira:create_ticket" {
			jira = &res.Candidates[i]
		}
	}
	if jira == nil {
		t.Fatal("keyword-only tool missing")
	}
	if jira.SimilarityScore != 0 || jira.Description != "Create a ticket" {
		t.Errorf("unexpected keyword-only candidate %+v", jira)
	}
	// (1-0.6) * (1 - 1/2) = 0.2
	if math.Abs(jira.FinalScore-0.2) > eps {
		t.Errorf("expected keyword-only score 0.2, got %f", jira.FinalScore)
	}
	if !strings.HasPrefix(jira.Reasoning, "Hybrid: semantic=0.00, keyword=0.20") {
		t.Errorf("unexpected reasoning %q", jira.Reasoning)
	}

	for i := 1; i < len(res.Candidates); i++ {
		if res.Candidates[i].FinalScore > res.Candidates[i-1].FinalScore {
			t.Errorf("hybrid candidates not sorted at %d", i)
		}
	}
}

func TestHybrid_PureSemanticWeight(t *testing.T) {
	f := newFixture(t)
	kw := &fakeKeyword{tools: []catalog.Tool{
		{Name: "jira:create_ticket", Server: "jira"},
		{Name: "fs:write_file", Server: "fs"},
	}}

	semantic, _ := f.engine(nil).Semantic(context.Background(), query(ModeSemantic, 5))

	q := query(ModeHybrid, 5)
	q.SemanticWeight = 1.0
	res, err := f.engine(kw).Hybrid(context.Background(), q)
	if err != nil {
		t.Fatalf("Hybrid failed: %v", err)
	}

	for i, c := range semantic.Candidates {
		if res.Candidates[i].ToolName != c.ToolName {
			t.Errorf("position %d: expected semantic order %s, got %s", i, c.ToolName, res.Candidates[i].ToolName)
		}
	}
	last := res.Candidates[len(res.Candidates)-1]
	if last.ToolName != "jira:create_ticket" || last.FinalScore != 0 {
		t.Errorf("expected keyword-only tool last with score 0, got %+v", last)
	}
}

func TestHybrid_PureKeywordWeight(t *testing.T) {
	f := newFixture(t)
	kw := &fakeKeyword{tools: []catalog.Tool{
		{Name: "fs:write_file", Server: "fs"},
		{Name: "jira:create_ticket", Server: "jira"},
		{Name: "github:create_issue", Server: "github"},
	}}

	q := query(ModeHybrid, 5)
	q.SemanticWeight = 0.0
	res, err := f.engine(kw).Hybrid(context.Background(), q)
	if err != nil {
		t.Fatalf("Hybrid failed: %v", err)
	}

	want := []string{"fs:write_file", "jira:create_ticket", "github:create_issue"}
	for i, name := range want {
		if res.Candidates[i].ToolName != name {
			t.Errorf("position %d: expected %s, got %s", i, name, res.Candidates[i].ToolName)
		}
	}
}

func TestHybrid_KeywordFailureDegrades(t *testing.T) {
	f := newFixture(t)
	kw := &fakeKeyword{err: errors.New("connection refused")}

	res, err := f.engine(kw).Hybrid(context.Background(), query(ModeHybrid, 5))
	if err != nil {
		t.Fatalf("keyword failure must not fail hybrid search: %v", err)
	}
	if res.Degraded == "" || !strings.Contains(res.Degraded, "connection refused") {
		t.Errorf("expected degraded note, got %q", res.Degraded)
	}
	if len(res.Candidates) != 3 || res.Candidates[0].ToolName != "github:create_issue" {
		t.Errorf("expected semantic ranking, got %+v", res.Candidates)
	}
	if !strings.Contains(res.Reasoning, "semantic ranking only") {
		t.Errorf("expected reasoning to mention degradation, got %q", res.Reasoning)
	}
}

func TestHybrid_NoKeywordProvider(t *testing.T) {
	res, err := newFixture(t).engine(nil).Hybrid(context.Background(), query(ModeHybrid, 5))
	if err != nil {
		t.Fatalf("Hybrid failed: %v", err)
	}
	if res.Degraded == "" {
		t.Error("expected degraded result without a keyword provider")
	}
}

func TestHybrid_MinMaxFusion(t *testing.T) {
	f := newFixture(t)
	kw := &fakeKeyword{tools: []catalog.Tool{{Name: "fs:write_file", Server: "fs", Score: 9}}}

	opts := DefaultOptions()
	opts.Fusion = fusion.MethodMinMax
	e := NewEngine(f.tools, f.servers, f.embed, kw, opts, nil, nil)

	res, err := e.Hybrid(context.Background(), query(ModeHybrid, 5))
	if err != nil {
		t.Fatalf("Hybrid failed: %v", err)
	}
	// fs:write_file is both the lowest semantic score (0) and the only
	// keyword hit (1): 0.6*0 + 0.4*1.
	for _, c := range res.Candidates {
		if c.ToolName == "fs:write_file" && math.Abs(c.FinalScore-0.4) > eps {
			t.Errorf("expected min-max score 0.4, got %f", c.FinalScore)
		}
	}
}

func TestContextAware_RecommendsServer(t *testing.T) {
	f := newFixture(t)

	res, err := f.engine(nil).ContextAware(context.Background(), query(ModeContextAware, 1))
	if err != nil {
		t.Fatalf("ContextAware failed: %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(res.Candidates))
	}
	if res.Recommendation != "github" {
		t.Errorf("expected github recommendation, got %q", res.Recommendation)
	}
	for _, want := range []string{
		"\n\nServer Analysis:",
		"- github: 1 tools, avg relevance 1.00",
		"- fs: 1 tools, avg relevance 0.00",
		"Recommendation: github appears most relevant based on server context",
	} {
		if !strings.Contains(res.Reasoning, want) {
			t.Errorf("reasoning missing %q:\n%s", want, res.Reasoning)
		}
	}
}

func TestContextAware_SingleServerHasNoAnalysis(t *testing.T) {
	tools := vectorindex.NewMemoryIndex()
	tools.UpsertBatch(context.Background(), []vectorindex.Record{
		toolRecord("fs:read", "fs", 1, 0),
		toolRecord("fs:write", "fs", 0, 1),
	})
	embed := &fakeEmbedder{vectors: map[string][]float32{"query": {1, 0}}}
	e := NewEngine(tools, vectorindex.NewMemoryIndex(), embed, nil, DefaultOptions(), nil, nil)

	res, err := e.ContextAware(context.Background(), query(ModeContextAware, 5))
	if err != nil {
		t.Fatalf("ContextAware failed: %v", err)
	}
	if res.Recommendation != "" || strings.Contains(res.Reasoning, "Server Analysis") {
		t.Errorf("expected no server analysis for one server, got %q", res.Reasoning)
	}

	// Empty server index: every context score is 0.
	for _, c := range res.Candidates {
		if c.ContextScore != 0 || math.Abs(c.FinalScore-0.7*c.SimilarityScore) > eps {
			t.Errorf("expected final = 0.7*similarity, got %+v", c)
		}
	}
}

func TestRecommend_SumNotAverage(t *testing.T) {
	groups := []serverGroup{
		{name: "single", tools: 1, contextSum: 0.9},
		{name: "many", tools: 3, contextSum: 1.5},
	}
	if got := recommend(groups); got != "many" {
		t.Errorf("expected many (higher sum), got %s", got)
	}

	tie := []serverGroup{{name: "first", contextSum: 1}, {name: "second", contextSum: 1}}
	if got := recommend(tie); got != "first" {
		t.Errorf("expected first on tie, got %s", got)
	}
}

func TestSearch_DispatchesOnMode(t *testing.T) {
	e := newFixture(t).engine(nil)

	res, err := e.Search(context.Background(), query(ModeContextAware, 2))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if res.Recommendation == "" {
		t.Error("expected context-aware dispatch")
	}
}
