/*
Package search implements the retrieval strategies over the tool and server
indices: pure semantic search, hybrid semantic plus keyword search, and
context-aware search that recommends a server.

Strategies are read-only and safe for concurrent use. The workflow package
chooses and sequences them per request.
*/
package search

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Mode selects a retrieval strategy.
type Mode string

const (
	ModeSemantic     Mode = "semantic"
	ModeHybrid       Mode = "hybrid"
	ModeContextAware Mode = "context_aware"
)

// Defaults applied to unset request fields.
const (
	DefaultLimit          = 15
	DefaultSemanticWeight = 0.6
	DefaultMode           = ModeHybrid
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeSemantic, ModeHybrid, ModeContextAware:
		return Mode(s), nil
	default:
		return "", &ValidationError{Field: "mode", Reason: fmt.Sprintf("unknown mode %q", s)}
	}
}

// ErrRetrieval marks a failed retrieval call: the keyword provider, the
// embedding of the query, an index lookup, or the request deadline.
var ErrRetrieval = errors.New("retrieval error")

// ValidationError reports an invalid search query.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Query is a fully specified search request.
type Query struct {
	Text             string  `json:"query"`
	Mode             Mode    `json:"mode"`
	Limit            int     `json:"limit"`
	SemanticWeight   float64 `json:"semantic_weight"`
	IncludeReasoning bool    `json:"include_reasoning"`
}

// Validate checks the query before any retrieval begins.
func (q Query) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return &ValidationError{Field: "query", Reason: "must not be empty"}
	}
	if q.Limit <= 0 {
		return &ValidationError{Field: "limit", Reason: fmt.Sprintf("must be > 0, got %d", q.Limit)}
	}
	if math.IsNaN(q.SemanticWeight) || q.SemanticWeight < 0 || q.SemanticWeight > 1 {
		return &ValidationError{Field: "semantic_weight", Reason: fmt.Sprintf("must be in [0,1], got %v", q.SemanticWeight)}
	}
	if q.Mode != "" {
		if _, err := ParseMode(string(q.Mode)); err != nil {
			return err
		}
	}
	return nil
}
