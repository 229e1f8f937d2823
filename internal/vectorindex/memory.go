package vectorindex

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryIndex is a brute-force in-process index.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]Record
	dim     int
	closed  bool
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: make(map[string]Record)}
}

// Upsert inserts or replaces a record.
func (m *MemoryIndex) Upsert(ctx context.Context, rec Record) error {
	return m.UpsertBatch(ctx, []Record{rec})
}

// UpsertBatch validates every record, then applies them under one lock.
func (m *MemoryIndex) UpsertBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrIndexUnavailable
	}

	dim := m.dim
	if len(m.records) == 0 {
		dim = 0
	}
	for _, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("record id is empty")
		}
		if err := checkDimension(dim, rec.Embedding); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		dim = len(rec.Embedding)
	}

	for _, rec := range recs {
		m.records[rec.ID] = copyRecord(rec)
	}
	m.dim = dim
	return nil
}

// Query returns the k nearest records.
func (m *MemoryIndex) Query(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrIndexUnavailable
	}
	if k <= 0 || len(m.records) == 0 {
		return []Hit{}, nil
	}
	if err := checkDimension(m.dim, vec); err != nil {
		return nil, err
	}

	recs := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		recs = append(recs, rec)
	}
	return rank(recs, vec, k), nil
}

// Get returns the records for the ids that exist, in request order.
func (m *MemoryIndex) Get(ctx context.Context, ids []string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrIndexUnavailable
	}

	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if rec, ok := m.records[id]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Delete removes records by id.
func (m *MemoryIndex) Delete(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrIndexUnavailable
	}
	for _, id := range ids {
		delete(m.records, id)
	}
	return nil
}

// Count returns the number of records.
func (m *MemoryIndex) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrIndexUnavailable
	}
	return len(m.records), nil
}

// All returns every record ordered by id.
func (m *MemoryIndex) All(ctx context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrIndexUnavailable
	}

	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Close marks the index unavailable.
func (m *MemoryIndex) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.records = nil
	return nil
}

func copyRecord(rec Record) Record {
	vec := make([]float32, len(rec.Embedding))
	copy(vec, rec.Embedding)
	rec.Embedding = vec

	if rec.Metadata != nil {
		meta := make(map[string]any, len(rec.Metadata))
		for k, v := range rec.Metadata {
			meta[k] = v
		}
		rec.Metadata = meta
	}
	return rec
}
