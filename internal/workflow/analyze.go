package workflow

import (
	"regexp"
	"strings"

	"github.com/khanglvm/tool-hub-search/internal/search"
)

// contextIndicators are phrases that ask the engine to pick between servers.
var contextIndicators = []string{
	"which server",
	"which one",
	"best for",
	"recommend",
	"github or",
	"filesystem or",
	"database or",
}

var choicePattern = regexp.MustCompile(`([a-z0-9][a-z0-9_.-]*)\s+or\s+([a-z0-9][a-z0-9_.-]*)`)

// wantsContext reports whether a query asks for a server recommendation.
// Besides the fixed phrases, a choice "<a> or <b>" counts when either side
// names an indexed server.
func wantsContext(text string, servers []string) bool {
	lower := strings.ToLower(text)
	for _, indicator := range contextIndicators {
		if strings.Contains(lower, indicator) {
			return true
		}
	}

	if len(servers) == 0 {
		return false
	}
	known := make(map[string]bool, len(servers))
	for _, s := range servers {
		known[strings.ToLower(s)] = true
	}
	for _, m := range choicePattern.FindAllStringSubmatch(lower, -1) {
		if known[m[1]] || known[m[2]] {
			return true
		}
	}
	return false
}

// buildQuery applies request defaults and validates the result.
func buildQuery(req Request) (search.Query, error) {
	q := search.Query{
		Text:             req.Query,
		Mode:             search.DefaultMode,
		Limit:            req.Limit,
		SemanticWeight:   search.DefaultSemanticWeight,
		IncludeReasoning: true,
	}

	if req.Mode != "" {
		mode, err := search.ParseMode(req.Mode)
		if err != nil {
			return q, err
		}
		q.Mode = mode
	}
	if req.Limit == 0 {
		q.Limit = search.DefaultLimit
	}
	if req.SemanticWeight != nil {
		q.SemanticWeight = *req.SemanticWeight
	}
	if req.IncludeReasoning != nil {
		q.IncludeReasoning = *req.IncludeReasoning
	}

	return q, q.Validate()
}
