package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCosineSimilarity_Identical(t *testing.T) {
	a := []float32{1.0, 2.0, 3.0}

	if got := CosineSimilarity(a, a); math.Abs(got-1.0) > 1e-9 {
		t.Errorf("expected similarity 1.0 for identical vectors, got %f", got)
	}
}

func TestCosineSimilarity_Orthogonal(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); got != 0.0 {
		t.Errorf("expected similarity 0.0 for orthogonal vectors, got %f", got)
	}
}

func TestCosineSimilarity_DifferentLengths(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 2, 3}, []float32{1, 2}); got != 0.0 {
		t.Errorf("expected similarity 0.0 for different lengths, got %f", got)
	}
}

func TestCosineSimilarity_ZeroVector(t *testing.T) {
	if got := CosineSimilarity([]float32{0, 0, 0}, []float32{1, 2, 3}); got != 0.0 {
		t.Errorf("expected similarity 0.0 for zero vector, got %f", got)
	}
}

func TestHashProvider_Deterministic(t *testing.T) {
	p := NewHashProvider(0)
	ctx := context.Background()

	a, err := p.Embed(ctx, "Create an issue in a GitHub repository")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	b, err := p.Embed(ctx, "Create an issue in a GitHub repository")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(a) != DefaultDimension {
		t.Fatalf("expected dimension %d, got %d", DefaultDimension, len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("embedding differs at %d: %f vs %f", i, a[i], b[i])
		}
	}
}

func TestHashProvider_Normalized(t *testing.T) {
	vec, err := NewHashProvider(64).Embed(context.Background(), "read file contents from disk")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if math.Abs(sum-1.0) > 1e-5 {
		t.Errorf("expected unit length vector, got squared norm %f", sum)
	}
}

func TestHashProvider_RelatedTextScoresHigher(t *testing.T) {
	p := NewHashProvider(0)
	ctx := context.Background()

	query, _ := p.Embed(ctx, "create a bug report on github")
	issue, _ := p.Embed(ctx, "Tool: github:create_issue\nServer: github\nDescription: Create an issue in a GitHub repository")
	file, _ := p.Embed(ctx, "Tool: filesystem:write_file\nServer: filesystem\nDescription: Write content to a local file")

	if CosineSimilarity(query, issue) <= CosineSimilarity(query, file) {
		t.Errorf("expected github issue document to be closer to the query")
	}
}

func TestHashProvider_RejectsEmptyInput(t *testing.T) {
	p := NewHashProvider(0)

	for _, text := range []string{"", "   ", "?!..", "\xff\xfe"} {
		vec, err := p.Embed(context.Background(), text)
		if !errors.Is(err, ErrEmbeddingFailure) {
			t.Errorf("Embed(%q): expected ErrEmbeddingFailure, got %v", text, err)
		}
		if vec != nil {
			t.Errorf("Embed(%q): expected nil vector on failure", text)
		}
	}
}

func TestTokenize(t *testing.T) {
	got := Tokenize("GitHub:create_issue (v2)")
	want := []string{"github", "create", "issue", "v2"}

	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestTokenize_Unicode(t *testing.T) {
	tests := []struct {
		text string
		want []string
	}{
		{"Café crème", []string{"café", "crème"}},
		{"Łódź_Straße", []string{"łódź", "straße"}},
		{"搜索 工具", []string{"搜索", "工具"}},
		{"поиск-файлов", []string{"поиск", "файлов"}},
	}

	for _, tt := range tests {
		got := Tokenize(tt.text)
		if len(got) != len(tt.want) {
			t.Fatalf("Tokenize(%q) = %v, want %v", tt.text, got, tt.want)
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("Tokenize(%q)[%d] = %q, want %q", tt.text, i, got[i], tt.want[i])
			}
		}
	}
}

func TestHashEmbedding_NonASCIIText(t *testing.T) {
	p := NewHashProvider(DefaultDimension)

	zh, err := p.Embed(context.Background(), "搜索工具")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	ru, err := p.Embed(context.Background(), "поиск файлов")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if sim := CosineSimilarity(zh, ru); sim > 0.99 {
		t.Error("distinct non-ASCII texts embedded identically")
	}
}

func TestNew_Backends(t *testing.T) {
	p, err := New(DefaultConfig())
	if err != nil {
		t.Fatalf("New(default) failed: %v", err)
	}
	if p.Model() != "hash-blake3-384" {
		t.Errorf("unexpected model %q", p.Model())
	}

	p, err = New(Config{Backend: "ollama"})
	if err != nil {
		t.Fatalf("New(ollama) failed: %v", err)
	}
	if p.Model() != "ollama:nomic-embed-text" {
		t.Errorf("unexpected model %q", p.Model())
	}

	if _, err := New(Config{Backend: "word2vec"}); err == nil {
		t.Error("expected error for unknown backend")
	}

	t.Setenv("OPENAI_API_KEY", "")
	if _, err := New(Config{Backend: "openai"}); err == nil {
		t.Error("expected error for openai without key")
	}
}

func TestOllamaProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["model"] != "nomic-embed-text" || body["prompt"] != "hello" {
			t.Errorf("unexpected request body %v", body)
		}
		json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2}})
	}))
	defer srv.Close()

	vec, err := NewOllamaProvider(srv.URL, "nomic-embed-text").Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 2 || vec[1] != 0.2 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestOpenAIProvider_Embed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("missing bearer token")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{{"embedding": []float32{1, 0, 0}}},
		})
	}))
	defer srv.Close()

	vec, err := NewOpenAIProvider(srv.URL, "sk-test", "text-embedding-3-small").Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if len(vec) != 3 {
		t.Errorf("unexpected vector %v", vec)
	}
}

func TestHTTPProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "m").Embed(context.Background(), "hello")
	if !errors.Is(err, ErrEmbeddingFailure) {
		t.Fatalf("expected ErrEmbeddingFailure, got %v", err)
	}
}

type countingProvider struct {
	calls atomic.Int32
	model string
}

func (c *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	return []float32{float32(len(text)), 1}, nil
}

func (c *countingProvider) Model() string { return c.model }

type memCache struct {
	mu      sync.Mutex
	vectors map[string][]float32
	version map[string]string
}

func newMemCache() *memCache {
	return &memCache{vectors: map[string][]float32{}, version: map[string]string{}}
}

func (m *memCache) SaveEmbedding(key string, vector []float32, version string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vectors[key] = vector
	m.version[key] = version
	return nil
}

func (m *memCache) GetEmbedding(key string) ([]float32, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.vectors[key], m.version[key], nil
}

func TestCachedProvider_MemoizesInMemory(t *testing.T) {
	inner := &countingProvider{model: "v1"}
	c := NewCachedProvider(inner, nil, nil)

	for i := 0; i < 3; i++ {
		if _, err := c.Embed(context.Background(), "same text"); err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
	}

	if inner.calls.Load() != 1 {
		t.Errorf("expected 1 inner call, got %d", inner.calls.Load())
	}
	if c.Len() != 1 {
		t.Errorf("expected 1 cached vector, got %d", c.Len())
	}
}

func TestCachedProvider_PersistentCacheVersioned(t *testing.T) {
	store := newMemCache()

	first := NewCachedProvider(&countingProvider{model: "v1"}, store, nil)
	if _, err := first.Embed(context.Background(), "text"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	// Same model version: served from the store.
	sameModel := &countingProvider{model: "v1"}
	if _, err := NewCachedProvider(sameModel, store, nil).Embed(context.Background(), "text"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if sameModel.calls.Load() != 0 {
		t.Errorf("expected cached vector to be reused, got %d calls", sameModel.calls.Load())
	}

	// Different model version: recomputed.
	newModel := &countingProvider{model: "v2"}
	if _, err := NewCachedProvider(newModel, store, nil).Embed(context.Background(), "text"); err != nil {
		t.Fatalf("Embed failed: %v", err)
	}
	if newModel.calls.Load() != 1 {
		t.Errorf("expected recompute for new model version, got %d calls", newModel.calls.Load())
	}
}

type blockingProvider struct {
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (b *blockingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	n := b.inFlight.Add(1)
	for {
		old := b.maxSeen.Load()
		if n <= old || b.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(10 * time.Millisecond)
	b.inFlight.Add(-1)
	return []float32{1}, nil
}

func (b *blockingProvider) Model() string { return "blocking" }

func TestPool_BoundsConcurrency(t *testing.T) {
	inner := &blockingProvider{}
	pool := NewPool(inner, 2)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Embed(context.Background(), "x")
		}()
	}
	wg.Wait()

	if got := inner.maxSeen.Load(); got > 2 {
		t.Errorf("expected at most 2 concurrent calls, saw %d", got)
	}
}

func TestPool_CancelledWhileWaiting(t *testing.T) {
	pool := NewPool(&countingProvider{model: "m"}, 1)

	// Occupy the only slot.
	if err := pool.sem.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer pool.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := pool.Embed(ctx, "x"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}
