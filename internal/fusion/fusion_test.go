package fusion

import (
	"math"
	"testing"
)

const eps = 1e-9

func TestWeights_Final(t *testing.T) {
	got := DefaultWeights.Final(0.8, 0.5)
	if math.Abs(got-0.71) > eps {
		t.Errorf("expected 0.71, got %f", got)
	}

	// No server summary means context 0: final is 0.7*similarity.
	if got := DefaultWeights.Final(0.5, 0); math.Abs(got-0.35) > eps {
		t.Errorf("expected 0.35, got %f", got)
	}
}

func TestWeights_Validate(t *testing.T) {
	if err := DefaultWeights.Validate(); err != nil {
		t.Errorf("default weights should be valid: %v", err)
	}
	if err := (Weights{Similarity: 1.2, Context: 0}).Validate(); err == nil {
		t.Error("expected error for similarity weight > 1")
	}
	if err := (Weights{Similarity: 0.5, Context: -0.1}).Validate(); err == nil {
		t.Error("expected error for negative context weight")
	}
	if err := (Weights{Similarity: math.NaN(), Context: 0.3}).Validate(); err == nil {
		t.Error("expected error for NaN similarity weight")
	}
	if err := (Weights{Similarity: 0.7, Context: math.NaN()}).Validate(); err == nil {
		t.Error("expected error for NaN context weight")
	}
}

func TestRankScore(t *testing.T) {
	if RankScore(0, 4) != 1.0 {
		t.Errorf("rank 0 should score 1.0")
	}
	if math.Abs(RankScore(3, 4)-0.25) > eps {
		t.Errorf("rank 3 of 4 should score 0.25, got %f", RankScore(3, 4))
	}
	if RankScore(0, 0) != 0 {
		t.Errorf("empty list should score 0")
	}
}

func TestHybridRank_Merges(t *testing.T) {
	semantic := []Entry{{Key: "A", Score: 0.8}, {Key: "B", Score: 0.6}}
	keyword := []Entry{{Key: "B"}, {Key: "C"}}

	fused := HybridRank(semantic, keyword, 0.6)
	if len(fused) != 3 {
		t.Fatalf("expected 3 fused items, got %d", len(fused))
	}

	scores := map[string]float64{}
	for _, f := range fused {
		scores[f.Key] = f.Score
	}

	// A: 0.6*1.0*0.8 = 0.48
	// B: 0.6*0.5*0.6 + 0.4*1.0 = 0.58
	// C: 0.4*0.5 = 0.20
	want := map[string]float64{"A": 0.48, "B": 0.58, "C": 0.20}
	for key, w := range want {
		if math.Abs(scores[key]-w) > eps {
			t.Errorf("%s: expected %f, got %f", key, w, scores[key])
		}
	}

	order := []string{"B", "A", "C"}
	for i, key := range order {
		if fused[i].Key != key {
			t.Errorf("position %d: expected %s, got %s", i, key, fused[i].Key)
		}
	}
}

func TestHybridRank_PureSemantic(t *testing.T) {
	semantic := []Entry{{Key: "A", Score: 0.9}, {Key: "B", Score: 0.4}}
	keyword := []Entry{{Key: "C"}, {Key: "A"}}

	fused := HybridRank(semantic, keyword, 1.0)

	// Keyword contributions vanish; semantic order is kept and C scores 0.
	if fused[0].Key != "A" || fused[1].Key != "B" || fused[2].Key != "C" {
		t.Errorf("unexpected order: %+v", fused)
	}
	if fused[2].Score != 0 {
		t.Errorf("keyword-only item should score 0 at weight 1.0, got %f", fused[2].Score)
	}
}

func TestHybridRank_PureKeyword(t *testing.T) {
	semantic := []Entry{{Key: "A", Score: 0.9}}
	keyword := []Entry{{Key: "B"}, {Key: "C"}, {Key: "A"}}

	fused := HybridRank(semantic, keyword, 0.0)

	// Order mirrors the keyword list.
	want := []string{"B", "C", "A"}
	for i, key := range want {
		if fused[i].Key != key {
			t.Errorf("position %d: expected %s, got %s", i, key, fused[i].Key)
		}
	}
}

func TestHybridRank_TiesKeepFirstAppearance(t *testing.T) {
	semantic := []Entry{{Key: "S1", Score: 1.0}}
	keyword := []Entry{{Key: "K1"}}

	// Both contribute 0.5; semantic items appear first.
	fused := HybridRank(semantic, keyword, 0.5)
	if fused[0].Key != "S1" || fused[1].Key != "K1" {
		t.Errorf("expected first-appearance order on tie, got %+v", fused)
	}
}

func TestHybridRank_DuplicateKeywordIgnored(t *testing.T) {
	fused := HybridRank(nil, []Entry{{Key: "A"}, {Key: "A"}}, 0)
	if len(fused) != 1 || math.Abs(fused[0].Score-1.0) > eps {
		t.Errorf("expected the first occurrence only, got %+v", fused)
	}
}

func TestHybridMinMax(t *testing.T) {
	semantic := []Entry{{Key: "A", Score: 0.9}, {Key: "B", Score: 0.3}}
	keyword := []Entry{{Key: "B", Score: 12}, {Key: "C", Score: 4}}

	fused := HybridMinMax(semantic, keyword, 0.5)

	scores := map[string]float64{}
	for _, f := range fused {
		scores[f.Key] = f.Score
	}
	// A: 0.5*1 ; B: 0.5*0 + 0.5*1 ; C: 0.5*0
	if math.Abs(scores["A"]-0.5) > eps || math.Abs(scores["B"]-0.5) > eps || scores["C"] != 0 {
		t.Errorf("unexpected scores %v", scores)
	}
	if fused[0].Key != "A" || fused[1].Key != "B" {
		t.Errorf("expected stable tie order A, B, got %+v", fused)
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize(nil); len(got) != 0 {
		t.Errorf("expected empty result, got %d items", len(got))
	}

	single := Normalize([]Entry{{Key: "a", Score: 0.5}})
	if single[0].Score != 1.0 {
		t.Errorf("expected score 1.0 for single entry, got %f", single[0].Score)
	}

	multi := Normalize([]Entry{{Score: 2}, {Score: 4}, {Score: 6}})
	if multi[0].Score != 0 || math.Abs(multi[1].Score-0.5) > eps || multi[2].Score != 1 {
		t.Errorf("unexpected normalization %+v", multi)
	}
}

func TestParseMethod(t *testing.T) {
	if m, err := ParseMethod(""); err != nil || m != MethodRank {
		t.Errorf("expected rank default, got %v, %v", m, err)
	}
	if m, err := ParseMethod("minmax"); err != nil || m != MethodMinMax {
		t.Errorf("expected minmax, got %v, %v", m, err)
	}
	if _, err := ParseMethod("rrf"); err == nil {
		t.Error("expected error for unknown method")
	}
}
