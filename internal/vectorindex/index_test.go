package vectorindex

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/khanglvm/tool-hub-search/internal/storage"
)

func backends() map[string]func(t *testing.T) Index {
	return map[string]func(t *testing.T) Index{
		"memory": func(t *testing.T) Index { return NewMemoryIndex() },
		"sqlite": func(t *testing.T) Index {
			store := storage.NewStorage(filepath.Join(t.TempDir(), "vec.db"), nil)
			if err := store.Init(); err != nil {
				t.Fatalf("storage Init failed: %v", err)
			}
			t.Cleanup(func() { store.Close() })

			idx, err := NewSQLiteIndex(store.DB(), "tools")
			if err != nil {
				t.Fatalf("NewSQLiteIndex failed: %v", err)
			}
			return idx
		},
	}
}

func TestIndex_QueryOrdering(t *testing.T) {
	ctx := context.Background()

	for name, newIndex := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			defer idx.Close()

			recs := []Record{
				{ID: "c", Document: "c", Embedding: []float32{1, 0}},
				{ID: "a", Document: "a", Embedding: []float32{0, 1}},
				{ID: "b", Document: "b", Embedding: []float32{1, 0}},
				{ID: "d", Document: "d", Embedding: []float32{1, 1}},
			}
			if err := idx.UpsertBatch(ctx, recs); err != nil {
				t.Fatalf("UpsertBatch failed: %v", err)
			}

			hits, err := idx.Query(ctx, []float32{1, 0}, 3)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if len(hits) != 3 {
				t.Fatalf("expected 3 hits, got %d", len(hits))
			}

			// b and c tie at distance 0; id order decides.
			want := []string{"b", "c", "d"}
			for i, id := range want {
				if hits[i].ID != id {
					t.Errorf("hit %d: expected %s, got %s", i, id, hits[i].ID)
				}
			}
			if hits[0].Distance > 1e-6 {
				t.Errorf("expected zero distance for identical vector, got %f", hits[0].Distance)
			}
		})
	}
}

func TestIndex_UpsertIdempotent(t *testing.T) {
	ctx := context.Background()

	for name, newIndex := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			defer idx.Close()

			rec := Record{
				ID:        "github:create_issue",
				Document:  "Tool: github:create_issue",
				Embedding: []float32{0.6, 0.8},
				Metadata:  map[string]any{"server_name": "github"},
			}
			for i := 0; i < 3; i++ {
				if err := idx.Upsert(ctx, rec); err != nil {
					t.Fatalf("Upsert failed: %v", err)
				}
			}

			n, err := idx.Count(ctx)
			if err != nil {
				t.Fatalf("Count failed: %v", err)
			}
			if n != 1 {
				t.Errorf("expected 1 record after repeated upsert, got %d", n)
			}

			got, err := idx.Get(ctx, []string{"github:create_issue", "missing"})
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if len(got) != 1 || got[0].Metadata["server_name"] != "github" {
				t.Errorf("unexpected records: %+v", got)
			}
		})
	}
}

func TestIndex_LastWriteWins(t *testing.T) {
	ctx := context.Background()

	for name, newIndex := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			defer idx.Close()

			idx.Upsert(ctx, Record{ID: "x", Document: "old", Embedding: []float32{1, 0}})
			idx.Upsert(ctx, Record{ID: "x", Document: "new", Embedding: []float32{0, 1}})

			all, err := idx.All(ctx)
			if err != nil {
				t.Fatalf("All failed: %v", err)
			}
			if len(all) != 1 || all[0].Document != "new" {
				t.Errorf("expected the second write to win, got %+v", all)
			}
		})
	}
}

func TestIndex_DeleteAndEmptyQuery(t *testing.T) {
	ctx := context.Background()

	for name, newIndex := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			defer idx.Close()

			hits, err := idx.Query(ctx, []float32{1, 0}, 5)
			if err != nil {
				t.Fatalf("Query on empty index failed: %v", err)
			}
			if len(hits) != 0 {
				t.Errorf("expected no hits on empty index, got %d", len(hits))
			}

			idx.UpsertBatch(ctx, []Record{
				{ID: "a", Embedding: []float32{1, 0}},
				{ID: "b", Embedding: []float32{0, 1}},
			})
			if err := idx.Delete(ctx, []string{"a", "zzz"}); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}

			all, _ := idx.All(ctx)
			if len(all) != 1 || all[0].ID != "b" {
				t.Errorf("expected only b to remain, got %+v", all)
			}
		})
	}
}

func TestIndex_DimensionMismatch(t *testing.T) {
	ctx := context.Background()

	for name, newIndex := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			defer idx.Close()

			if err := idx.Upsert(ctx, Record{ID: "a", Embedding: []float32{1, 0}}); err != nil {
				t.Fatalf("Upsert failed: %v", err)
			}

			err := idx.UpsertBatch(ctx, []Record{
				{ID: "b", Embedding: []float32{1, 0}},
				{ID: "c", Embedding: []float32{1, 0, 0}},
			})
			if !errors.Is(err, ErrDimensionMismatch) {
				t.Fatalf("expected ErrDimensionMismatch, got %v", err)
			}

			// The rejected batch must leave nothing behind.
			if n, _ := idx.Count(ctx); n != 1 {
				t.Errorf("expected batch to be rejected atomically, count=%d", n)
			}

			if _, err := idx.Query(ctx, []float32{1, 0, 0}, 1); !errors.Is(err, ErrDimensionMismatch) {
				t.Errorf("expected ErrDimensionMismatch on query, got %v", err)
			}
		})
	}
}

func TestIndex_ClosedIsUnavailable(t *testing.T) {
	ctx := context.Background()

	for name, newIndex := range backends() {
		t.Run(name, func(t *testing.T) {
			idx := newIndex(t)
			idx.Close()

			if _, err := idx.Query(ctx, []float32{1}, 1); !errors.Is(err, ErrIndexUnavailable) {
				t.Errorf("expected ErrIndexUnavailable from Query, got %v", err)
			}
			if err := idx.Upsert(ctx, Record{ID: "a", Embedding: []float32{1}}); !errors.Is(err, ErrIndexUnavailable) {
				t.Errorf("expected ErrIndexUnavailable from Upsert, got %v", err)
			}
		})
	}
}

func TestSQLiteIndex_MetadataListsRoundTrip(t *testing.T) {
	ctx := context.Background()
	idx := backends()["sqlite"](t)

	err := idx.Upsert(ctx, Record{
		ID:        "filesystem",
		Embedding: []float32{1, 0},
		Metadata: map[string]any{
			"capabilities": []string{"read files", "write files"},
		},
	})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, _ := idx.Get(ctx, []string{"filesystem"})
	caps, ok := got[0].Metadata["capabilities"].([]any)
	if !ok || len(caps) != 2 || caps[0] != "read files" {
		t.Errorf("unexpected capabilities %#v", got[0].Metadata["capabilities"])
	}
}

func TestNewSQLiteIndex_UnknownCollection(t *testing.T) {
	store := storage.NewStorage(filepath.Join(t.TempDir(), "vec.db"), nil)
	store.Init()
	defer store.Close()

	if _, err := NewSQLiteIndex(store.DB(), "prompts"); err == nil {
		t.Error("expected error for unknown collection")
	}
	if _, err := NewSQLiteIndex(nil, "tools"); !errors.Is(err, ErrIndexUnavailable) {
		t.Errorf("expected ErrIndexUnavailable for nil db, got %v", err)
	}
}

func TestSimilarity(t *testing.T) {
	cases := []struct {
		distance float64
		want     float64
	}{
		{0, 1},
		{0.25, 0.75},
		{1, 0},
		{1.7, 0},
		{-0.1, 1},
		{math.NaN(), 0},
	}

	for _, tc := range cases {
		if got := Similarity(tc.distance); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("Similarity(%v) = %v, want %v", tc.distance, got, tc.want)
		}
	}
}
