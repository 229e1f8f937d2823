package storage

import "time"

// SearchRecord is one row of search history. The query text is never
// stored, only its hash.
type SearchRecord struct {
	SearchID     string        `json:"search_id"`
	ThreadID     string        `json:"thread_id,omitempty"`
	QueryHash    string        `json:"query_hash"`
	Mode         string        `json:"mode"`
	Timestamp    time.Time     `json:"timestamp"`
	ResultsCount int           `json:"results_count"`
	Duration     time.Duration `json:"duration_ns"`
	Failed       bool          `json:"failed"`
}
