package storage

import (
	"time"

	"github.com/khanglvm/tool-hub-search/internal/codec"
	"go.uber.org/zap"
)

// SaveEmbedding caches an embedding vector under a content key.
func (s *SQLiteStorage) SaveEmbedding(key string, vector []float32, version string) error {
	if !s.enabled || s.db == nil {
		return nil
	}

	blob, err := codec.Marshal(vector)
	if err != nil {
		s.log().Warn("failed to encode embedding", zap.Error(err))
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT OR REPLACE INTO embedding_cache (cache_key, vector, version, created_at)
		VALUES (?, ?, ?, ?)
	`

	if _, err := s.db.Exec(query, key, blob, version, time.Now().Format(time.RFC3339)); err != nil {
		s.log().Warn("failed to save embedding", zap.Error(err))
	}

	return nil
}

// GetEmbedding retrieves a cached embedding and its model version.
// A miss returns a nil vector and no error.
func (s *SQLiteStorage) GetEmbedding(key string) ([]float32, string, error) {
	if !s.enabled || s.db == nil {
		return nil, "", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT vector, version FROM embedding_cache WHERE cache_key = ?`, key)
	if err != nil {
		s.log().Warn("failed to query embedding", zap.Error(err))
		return nil, "", nil
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, "", nil
	}

	var blob []byte
	var version string
	if err := rows.Scan(&blob, &version); err != nil {
		s.log().Warn("failed to scan embedding", zap.Error(err))
		return nil, "", nil
	}

	var vector []float32
	if err := codec.Unmarshal(blob, &vector); err != nil {
		s.log().Warn("failed to decode embedding vector", zap.Error(err))
		return nil, "", nil
	}

	return vector, version, nil
}
