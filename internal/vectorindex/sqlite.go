package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/khanglvm/tool-hub-search/internal/codec"
	"github.com/khanglvm/tool-hub-search/internal/storage"
)

// SQLiteIndex persists a collection in the table created by the storage
// migrations. Queries scan the table and score in Go.
type SQLiteIndex struct {
	db     *sql.DB
	table  string
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteIndex opens a collection ("tools" or "servers") on db.
func NewSQLiteIndex(db *sql.DB, collection string) (*SQLiteIndex, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: database is not open", ErrIndexUnavailable)
	}

	known := false
	for _, c := range storage.Collections {
		if c == collection {
			known = true
			break
		}
	}
	if !known {
		return nil, fmt.Errorf("unknown collection: %s", collection)
	}

	return &SQLiteIndex{db: db, table: storage.CollectionTable(collection)}, nil
}

// Upsert inserts or replaces a record.
func (s *SQLiteIndex) Upsert(ctx context.Context, rec Record) error {
	return s.UpsertBatch(ctx, []Record{rec})
}

// UpsertBatch writes all records in one transaction.
func (s *SQLiteIndex) UpsertBatch(ctx context.Context, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrIndexUnavailable
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrIndexUnavailable, err)
	}
	defer tx.Rollback()

	dim, err := s.dimension(ctx, tx)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (id, document, vector, dimension, metadata, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, s.table))
	if err != nil {
		return fmt.Errorf("%w: prepare: %v", ErrIndexUnavailable, err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, rec := range recs {
		if rec.ID == "" {
			return fmt.Errorf("record id is empty")
		}
		if err := checkDimension(dim, rec.Embedding); err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		dim = len(rec.Embedding)

		vec, err := codec.Marshal(rec.Embedding)
		if err != nil {
			return fmt.Errorf("encode vector %s: %w", rec.ID, err)
		}
		var meta []byte
		if rec.Metadata != nil {
			if meta, err = codec.Marshal(rec.Metadata); err != nil {
				return fmt.Errorf("encode metadata %s: %w", rec.ID, err)
			}
		}

		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Document, vec, len(rec.Embedding), meta, now); err != nil {
			return fmt.Errorf("%w: upsert %s: %v", ErrIndexUnavailable, rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrIndexUnavailable, err)
	}
	return nil
}

func (s *SQLiteIndex) dimension(ctx context.Context, tx *sql.Tx) (int, error) {
	var dim int
	err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT dimension FROM %s LIMIT 1", s.table)).Scan(&dim)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return dim, nil
}

// Query returns the k nearest records.
func (s *SQLiteIndex) Query(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}

	recs, err := s.scan(ctx, "")
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return []Hit{}, nil
	}
	if err := checkDimension(len(recs[0].Embedding), vec); err != nil {
		return nil, err
	}
	return rank(recs, vec, k), nil
}

// Get returns the records for the ids that exist, in request order.
func (s *SQLiteIndex) Get(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return []Record{}, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	recs, err := s.scan(ctx, "WHERE id IN ("+placeholders+")", args...)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]Record, len(recs))
	for _, rec := range recs {
		byID[rec.ID] = rec
	}
	out := make([]Record, 0, len(recs))
	for _, id := range ids {
		if rec, ok := byID[id]; ok {
			out = append(out, rec)
			delete(byID, id)
		}
	}
	return out, nil
}

// Delete removes records by id in one transaction.
func (s *SQLiteIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrIndexUnavailable
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrIndexUnavailable, err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.table), id); err != nil {
			return fmt.Errorf("%w: delete %s: %v", ErrIndexUnavailable, id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", ErrIndexUnavailable, err)
	}
	return nil
}

// Count returns the number of records.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrIndexUnavailable
	}

	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return n, nil
}

// All returns every record ordered by id.
func (s *SQLiteIndex) All(ctx context.Context) ([]Record, error) {
	return s.scan(ctx, "")
}

// Close marks the index unavailable. The database is owned by storage.
func (s *SQLiteIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *SQLiteIndex) scan(ctx context.Context, where string, args ...any) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrIndexUnavailable
	}

	query := fmt.Sprintf("SELECT id, document, vector, metadata FROM %s %s ORDER BY id", s.table, where)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	defer rows.Close()

	recs := []Record{}
	for rows.Next() {
		var rec Record
		var vec, meta []byte
		if err := rows.Scan(&rec.ID, &rec.Document, &vec, &meta); err != nil {
			return nil, fmt.Errorf("%w: scan: %v", ErrIndexUnavailable, err)
		}
		if err := codec.Unmarshal(vec, &rec.Embedding); err != nil {
			return nil, fmt.Errorf("decode vector %s: %w", rec.ID, err)
		}
		if len(meta) > 0 {
			if err := codec.Unmarshal(meta, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata %s: %w", rec.ID, err)
			}
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return recs, nil
}
