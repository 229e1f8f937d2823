/*
Package fusion combines scores from the tool index, the server index and the
keyword provider into single rankings.

All functions are pure. Sorting is stable, so equal scores keep the order in
which items were first seen.
*/
package fusion

import (
	"fmt"
	"math"
	"sort"
)

// Weights blends tool similarity with server context.
type Weights struct {
	Similarity float64 `json:"similarityWeight"`
	Context    float64 `json:"contextWeight"`
}

// DefaultWeights favours the tool's own similarity (70% tool, 30% server).
var DefaultWeights = Weights{
	Similarity: 0.7,
	Context:    0.3,
}

// Final returns Similarity*similarity + Context*context.
func (w Weights) Final(similarity, context float64) float64 {
	return w.Similarity*similarity + w.Context*context
}

// Validate checks that both weights are in [0, 1].
func (w Weights) Validate() error {
	if math.IsNaN(w.Similarity) || w.Similarity < 0 || w.Similarity > 1 {
		return fmt.Errorf("similarity weight must be in [0,1], got %v", w.Similarity)
	}
	if math.IsNaN(w.Context) || w.Context < 0 || w.Context > 1 {
		return fmt.Errorf("context weight must be in [0,1], got %v", w.Context)
	}
	return nil
}

// RankScore converts a 0-based rank in a list of n items to 1 - i/n.
func RankScore(i, n int) float64 {
	if n <= 0 {
		return 0
	}
	return 1 - float64(i)/float64(n)
}

// Entry is one item of a ranked list, best first.
type Entry struct {
	Key   string
	Score float64
}

// Fused is a merged item with each source's contribution.
type Fused struct {
	Key      string
	Semantic float64
	Keyword  float64
	Score    float64
}

// Method selects how hybrid lists are merged.
type Method string

const (
	// MethodRank weights each list by rank decay.
	MethodRank Method = "rank"
	// MethodMinMax min-max normalizes each list's own scores.
	MethodMinMax Method = "minmax"
)

// Combine dispatches to HybridRank or HybridMinMax.
func (m Method) Combine(semantic, keyword []Entry, semanticWeight float64) []Fused {
	if m == MethodMinMax {
		return HybridMinMax(semantic, keyword, semanticWeight)
	}
	return HybridRank(semantic, keyword, semanticWeight)
}

// ParseMethod returns the Method for name. Empty selects MethodRank.
func ParseMethod(name string) (Method, error) {
	switch Method(name) {
	case "", MethodRank:
		return MethodRank, nil
	case MethodMinMax:
		return MethodMinMax, nil
	default:
		return "", fmt.Errorf("unknown hybrid fusion method: %s", name)
	}
}

// HybridRank merges a semantic and a keyword list by rank decay.
//
// A semantic item at rank i of Ns contributes w*RankScore(i,Ns)*score; a
// keyword item at rank i of Nk contributes (1-w)*RankScore(i,Nk). Items
// in both lists sum their contributions; items in one list get nothing
// from the other. Only the first occurrence of a key in each list counts.
func HybridRank(semantic, keyword []Entry, w float64) []Fused {
	m := newMerger(len(semantic) + len(keyword))

	for i, e := range semantic {
		m.addSemantic(e.Key, w*RankScore(i, len(semantic))*e.Score)
	}
	for i, e := range keyword {
		m.addKeyword(e.Key, (1-w)*RankScore(i, len(keyword)))
	}

	return m.sorted()
}

// HybridMinMax normalizes each list's scores to [0,1] and adds
// w*semantic + (1-w)*keyword.
func HybridMinMax(semantic, keyword []Entry, w float64) []Fused {
	m := newMerger(len(semantic) + len(keyword))

	for _, e := range Normalize(semantic) {
		m.addSemantic(e.Key, w*e.Score)
	}
	for _, e := range Normalize(keyword) {
		m.addKeyword(e.Key, (1-w)*e.Score)
	}

	return m.sorted()
}

// Normalize scales scores to [0, 1]. When all scores are equal, every
// entry gets 1.0.
func Normalize(entries []Entry) []Entry {
	if len(entries) == 0 {
		return entries
	}

	minScore := entries[0].Score
	maxScore := entries[0].Score
	for _, e := range entries {
		if e.Score < minScore {
			minScore = e.Score
		}
		if e.Score > maxScore {
			maxScore = e.Score
		}
	}

	normalized := make([]Entry, len(entries))
	for i, e := range entries {
		normalized[i] = e
		if maxScore == minScore {
			normalized[i].Score = 1.0
		} else {
			normalized[i].Score = (e.Score - minScore) / (maxScore - minScore)
		}
	}
	return normalized
}

type merger struct {
	order      []string
	items      map[string]*Fused
	seenSem    map[string]bool
	seenKeywrd map[string]bool
}

func newMerger(capacity int) *merger {
	return &merger{
		order:      make([]string, 0, capacity),
		items:      make(map[string]*Fused, capacity),
		seenSem:    make(map[string]bool),
		seenKeywrd: make(map[string]bool),
	}
}

func (m *merger) get(key string) *Fused {
	f, ok := m.items[key]
	if !ok {
		f = &Fused{Key: key}
		m.items[key] = f
		m.order = append(m.order, key)
	}
	return f
}

func (m *merger) addSemantic(key string, score float64) {
	if m.seenSem[key] {
		return
	}
	m.seenSem[key] = true
	m.get(key).Semantic = score
}

func (m *merger) addKeyword(key string, score float64) {
	if m.seenKeywrd[key] {
		return
	}
	m.seenKeywrd[key] = true
	m.get(key).Keyword = score
}

func (m *merger) sorted() []Fused {
	out := make([]Fused, 0, len(m.order))
	for _, key := range m.order {
		f := *m.items[key]
		f.Score = f.Semantic + f.Keyword
		out = append(out, f)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
