package search

import (
	"encoding/json"
	"sort"
)

// Candidate is a ranked tool for one query. It is never persisted.
type Candidate struct {
	ToolName        string          `json:"tool_name"`
	ServerName      string          `json:"server_name"`
	Description     string          `json:"description"`
	InputSchema     json.RawMessage `json:"input_schema,omitempty"`
	SimilarityScore float64         `json:"similarity_score"`
	ContextScore    float64         `json:"context_score"`
	FinalScore      float64         `json:"final_score"`
	Reasoning       string          `json:"reasoning,omitempty"`
}

// Result is a strategy's output.
type Result struct {
	Candidates []Candidate `json:"tools"`
	Reasoning  string      `json:"reasoning"`

	// Considered counts candidates before truncation.
	Considered int `json:"considered"`

	// Recommendation is the server picked by context-aware search.
	Recommendation string `json:"recommendation,omitempty"`

	// Degraded describes a partial failure the strategy recovered from.
	Degraded string `json:"degraded,omitempty"`
}

// SortCandidates orders candidates by final score, descending. Equal
// scores keep their current order.
func SortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].FinalScore > candidates[j].FinalScore
	})
}

func truncate(candidates []Candidate, limit int) []Candidate {
	if limit >= 0 && len(candidates) > limit {
		return candidates[:limit]
	}
	return candidates
}
