// Package scores turns raw classifier output into a ranked probability view.
package scores

import (
	"math"
	"sort"

	"github.com/example/skinai/internal/labels"
)

// Sums outside this band are treated as logits.
const (
	minDistributionSum = 0.9
	maxDistributionSum = 1.1
)

// Entry is one class in a ranking.
type Entry struct {
	Index int     `json:"index"`
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Analysis is a read-only view over a probability vector.
type Analysis struct {
	BestIndex  int
	BestLabel  string
	Confidence float64
	Gap        float64
	Top        []Entry
	Ranking    []Entry
}

// EnsureDistribution returns probs unchanged (as a copy) when it already sums
// to roughly one, and its softmax otherwise.
func EnsureDistribution(raw []float64) []float64 {
	out := make([]float64, len(raw))
	if len(raw) == 0 {
		return out
	}

	var sum float64
	for _, v := range raw {
		sum += v
	}
	if sum >= minDistributionSum && sum <= maxDistributionSum {
		copy(out, raw)
		return out
	}

	maxV := math.Inf(-1)
	for _, v := range raw {
		maxV = math.Max(maxV, v)
	}
	var total float64
	for i, v := range raw {
		out[i] = math.Exp(v - maxV)
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// Analyze ranks probs and extracts the top-k entries. Ties keep index order.
func Analyze(probs []float64, set labels.Set, k int) Analysis {
	ranking := make([]Entry, len(probs))
	for i, p := range probs {
		ranking[i] = Entry{Index: i, Label: set.LabelFor(i), Score: p}
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Score > ranking[j].Score
	})

	a := Analysis{BestIndex: -1, Ranking: ranking}
	if len(ranking) == 0 {
		a.Top = []Entry{}
		return a
	}

	best := ranking[0]
	a.BestIndex = best.Index
	a.BestLabel = best.Label
	a.Confidence = best.Score
	if len(ranking) >= 2 {
		a.Gap = best.Score - ranking[1].Score
	}

	if k < 0 || k > len(ranking) {
		k = len(ranking)
	}
	a.Top = append([]Entry(nil), ranking[:k]...)
	return a
}
