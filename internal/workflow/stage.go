package workflow

import (
	"fmt"

	"github.com/khanglvm/tool-hub-search/internal/search"
)

// Stage names one step of a search run.
type Stage string

const (
	StageAnalyzeQuery Stage = "analyze_query"
	StageSemantic     Stage = "semantic_search"
	StageHybrid       Stage = "hybrid_search"
	StageContextAware Stage = "context_aware_search"
	StageRerank       Stage = "rerank_results"
	StageFinalize     Stage = "finalize"
	StageError        Stage = "error"
	StageDone         Stage = "done"
)

// Outcome is the result class of a finished stage.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeFailed
)

// ErrorPolicy decides where a failed retrieval stage goes next.
type ErrorPolicy string

const (
	// PolicyFinalize skips reranking and finalizes the empty result.
	PolicyFinalize ErrorPolicy = "finalize"

	// PolicyDegrade continues through Rerank with whatever was retrieved.
	PolicyDegrade ErrorPolicy = "degrade"
)

// ParseErrorPolicy validates a policy name. Empty means PolicyFinalize.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch ErrorPolicy(s) {
	case "", PolicyFinalize:
		return PolicyFinalize, nil
	case PolicyDegrade:
		return PolicyDegrade, nil
	default:
		return "", fmt.Errorf("unknown error policy %q (want finalize or degrade)", s)
	}
}

type edge struct {
	from    Stage
	outcome Outcome
}

// transitionTable returns the stage graph for a policy. AnalyzeQuery's
// successful edge is resolved by mode through retrievalStage.
func transitionTable(policy ErrorPolicy) map[edge]Stage {
	onRetrievalError := StageFinalize
	if policy == PolicyDegrade {
		onRetrievalError = StageRerank
	}

	table := map[edge]Stage{
		{StageAnalyzeQuery, OutcomeFailed}: StageError,
		{StageRerank, OutcomeOK}:           StageFinalize,
		{StageFinalize, OutcomeOK}:         StageDone,
		{StageError, OutcomeOK}:            StageDone,
	}
	for _, s := range []Stage{StageSemantic, StageHybrid, StageContextAware} {
		table[edge{s, OutcomeOK}] = StageRerank
		table[edge{s, OutcomeFailed}] = onRetrievalError
	}
	return table
}

var retrievalStage = map[search.Mode]Stage{
	search.ModeSemantic:     StageSemantic,
	search.ModeHybrid:       StageHybrid,
	search.ModeContextAware: StageContextAware,
}

var stageLabel = map[Stage]string{
	StageSemantic:     "Semantic search",
	StageHybrid:       "Hybrid search",
	StageContextAware: "Context-aware search",
}
