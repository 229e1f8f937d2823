/*
Package vectorindex stores embedded documents and answers nearest-neighbour
queries by cosine distance.

Two collections are used by the engine: the Tool Index (one record per
"server:tool") and the Server Index (one record per server summary). Both
share the same Index interface and backends.
*/
package vectorindex

import (
	"context"
	"errors"
	"math"
	"sort"

	"github.com/khanglvm/tool-hub-search/internal/embedding"
)

var (
	// ErrIndexUnavailable is returned when the index is closed or its
	// backing store fails.
	ErrIndexUnavailable = errors.New("vector index unavailable")

	// ErrDimensionMismatch is returned when a vector's length differs from
	// the vectors already stored.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Record is a stored document with its embedding and metadata.
type Record struct {
	ID        string         `json:"id"`
	Document  string         `json:"document"`
	Embedding []float32      `json:"-"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Hit is a query result.
type Hit struct {
	Record
	Distance float64 `json:"distance"`
}

// Index is a nearest-neighbour store keyed by record id.
type Index interface {
	// Upsert inserts or replaces a record by id.
	Upsert(ctx context.Context, rec Record) error

	// UpsertBatch applies all records atomically. Concurrent readers see
	// either none or all of the batch.
	UpsertBatch(ctx context.Context, recs []Record) error

	// Query returns at most k hits ordered by ascending distance, ties
	// broken by id.
	Query(ctx context.Context, vec []float32, k int) ([]Hit, error)

	// Get returns the records for the ids that exist.
	Get(ctx context.Context, ids []string) ([]Record, error)

	// Delete removes records by id. Missing ids are ignored.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	// All returns every record ordered by id.
	All(ctx context.Context) ([]Record, error)

	Close() error
}

// Distance returns the cosine distance 1 - cos(a, b).
func Distance(a, b []float32) float64 {
	return 1 - embedding.CosineSimilarity(a, b)
}

// Similarity converts a distance to a score clamped to [0, 1].
func Similarity(distance float64) float64 {
	if math.IsNaN(distance) {
		return 0
	}
	return math.Max(0, math.Min(1, 1-distance))
}

// rank scores recs against vec and returns the k nearest.
func rank(recs []Record, vec []float32, k int) []Hit {
	hits := make([]Hit, 0, len(recs))
	for _, rec := range recs {
		hits = append(hits, Hit{Record: rec, Distance: Distance(vec, rec.Embedding)})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

func checkDimension(dim int, vec []float32) error {
	if len(vec) == 0 {
		return ErrDimensionMismatch
	}
	if dim != 0 && len(vec) != dim {
		return ErrDimensionMismatch
	}
	return nil
}

// Metadata keys written for tool and server records.
const (
	MetaServerName   = "server_name"
	MetaDescription  = "description"
	MetaInputSchema  = "input_schema"
	MetaParameters   = "parameters"
	MetaSummary      = "summary"
	MetaCapabilities = "capabilities"
	MetaUseCases     = "typical_use_cases"
)

// MetaString returns the string stored under key, or "".
func (r Record) MetaString(key string) string {
	s, _ := r.Metadata[key].(string)
	return s
}

// MetaStrings returns the string list stored under key. Lists decoded from
// storage arrive as []any and are converted.
func (r Record) MetaStrings(key string) []string {
	switch v := r.Metadata[key].(type) {
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
