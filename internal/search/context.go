package search

import (
	"context"
	"fmt"
	"math"
	"strings"
)

type serverGroup struct {
	name       string
	tools      int
	contextSum float64
}

// ContextAware retrieves limit*2 semantic candidates, analyses them per
// server and recommends the server with the highest total context score.
// The returned candidates are the first limit of the semantic ranking.
func (e *Engine) ContextAware(ctx context.Context, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	wide := q
	wide.Limit = q.Limit
	if q.Limit <= math.MaxInt/2 {
		wide.Limit = q.Limit * 2
	}
	semantic, err := e.Semantic(ctx, wide)
	if err != nil {
		return Result{}, err
	}

	groups := groupByServer(semantic.Candidates)

	parts := []string{semantic.Reasoning}
	recommendation := ""
	if len(groups) > 1 {
		parts = append(parts, "\n\nServer Analysis:")
		for _, g := range groups {
			parts = append(parts, fmt.Sprintf("- %s: %d tools, avg relevance %.2f",
				g.name, g.tools, g.contextSum/float64(g.tools)))
		}

		recommendation = recommend(groups)
		parts = append(parts, fmt.Sprintf("\nRecommendation: %s appears most relevant based on server context", recommendation))
	}

	return Result{
		Candidates:     truncate(semantic.Candidates, q.Limit),
		Reasoning:      strings.Join(parts, "\n"),
		Considered:     semantic.Considered,
		Recommendation: recommendation,
	}, nil
}

// groupByServer groups candidates in order of first appearance.
func groupByServer(candidates []Candidate) []serverGroup {
	index := make(map[string]int)
	var groups []serverGroup

	for _, c := range candidates {
		i, ok := index[c.ServerName]
		if !ok {
			i = len(groups)
			index[c.ServerName] = i
			groups = append(groups, serverGroup{name: c.ServerName})
		}
		groups[i].tools++
		groups[i].contextSum += c.ContextScore
	}
	return groups
}

// recommend picks the group with the highest context sum; the first wins ties.
func recommend(groups []serverGroup) string {
	best := 0
	for i := 1; i < len(groups); i++ {
		if groups[i].contextSum > groups[best].contextSum {
			best = i
		}
	}
	return groups[best].name
}
