package storage

import (
	"time"

	"go.uber.org/zap"
)

// RecordSearch records a completed search for analytics.
func (s *SQLiteStorage) RecordSearch(search SearchRecord) error {
	if !s.enabled || s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO search_history (search_id, thread_id, query_hash, mode, timestamp, results_count, duration_ms, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	failed := 0
	if search.Failed {
		failed = 1
	}

	_, err := s.db.Exec(query,
		search.SearchID,
		search.ThreadID,
		search.QueryHash,
		search.Mode,
		search.Timestamp.UTC().Format(time.RFC3339),
		search.ResultsCount,
		search.Duration.Milliseconds(),
		failed,
	)

	if err != nil {
		s.log().Warn("failed to record search", zap.Error(err))
	}

	return nil
}

// GetSearchHistory retrieves searches recorded since a given time, newest first.
func (s *SQLiteStorage) GetSearchHistory(since time.Time) ([]SearchRecord, error) {
	if !s.enabled || s.db == nil {
		return []SearchRecord{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		SELECT search_id, thread_id, query_hash, mode, timestamp, results_count, duration_ms, failed
		FROM search_history
		WHERE timestamp >= ?
		ORDER BY timestamp DESC, id DESC
	`

	rows, err := s.db.Query(query, since.UTC().Format(time.RFC3339))
	if err != nil {
		s.log().Warn("failed to query search history", zap.Error(err))
		return []SearchRecord{}, nil
	}
	defer rows.Close()

	records := []SearchRecord{}
	for rows.Next() {
		var record SearchRecord
		var timestampStr string
		var durationMs int64
		var failed int

		if err := rows.Scan(
			&record.SearchID,
			&record.ThreadID,
			&record.QueryHash,
			&record.Mode,
			&timestampStr,
			&record.ResultsCount,
			&durationMs,
			&failed,
		); err != nil {
			s.log().Warn("failed to scan search record", zap.Error(err))
			continue
		}

		record.Timestamp, _ = time.Parse(time.RFC3339, timestampStr)
		record.Duration = time.Duration(durationMs) * time.Millisecond
		record.Failed = failed == 1
		records = append(records, record)
	}

	return records, nil
}

// Cleanup removes old records based on retention policy.
func (s *SQLiteStorage) Cleanup(retention time.Duration) error {
	if !s.enabled || s.db == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339)

	if _, err := s.db.Exec("DELETE FROM search_history WHERE timestamp < ?", cutoff); err != nil {
		s.log().Warn("failed to cleanup search_history", zap.Error(err))
	}

	if _, err := s.db.Exec("DELETE FROM embedding_cache WHERE created_at < ?", cutoff); err != nil {
		s.log().Warn("failed to cleanup embedding_cache", zap.Error(err))
	}

	if _, err := s.db.Exec("DELETE FROM checkpoints WHERE created_at < ?", cutoff); err != nil {
		s.log().Warn("failed to cleanup checkpoints", zap.Error(err))
	}

	if _, err := s.db.Exec("VACUUM"); err != nil {
		s.log().Warn("failed to vacuum database", zap.Error(err))
	}

	return nil
}
