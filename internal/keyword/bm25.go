package keyword

import (
	"math"

	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/pkg/utils"
)

const (
	DefaultK1 = 1.5
	DefaultB  = 0.75
	MinK1     = 1.2
	MaxK1     = 2.0
)

// Scorer computes BM25 scores.
type Scorer struct {
	K1 float64
	B  float64
}

// NewScorer returns a scorer with k1 clamped to [MinK1, MaxK1] and b to [0, 1].
func NewScorer(k1, b float64) Scorer {
	if k1 == 0 {
		k1 = DefaultK1
	}
	k1 = math.Min(math.Max(k1, MinK1), MaxK1)
	b = math.Min(math.Max(b, 0), 1)
	return Scorer{K1: k1, B: b}
}

// IDF returns the inverse document frequency of a term that appears in df of
// n chunks. It is never negative, and zero for terms absent from the corpus.
func IDF(df, n int) float64 {
	if df <= 0 || n <= 0 {
		return 0
	}
	idf := math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
	return math.Max(0, idf)
}

// Score sums the BM25 contribution of each distinct query term found in the
// chunk tokens.
func (s Scorer) Score(queryTokens, chunkTokens []string, stats corpus.TermStats) float64 {
	if len(chunkTokens) == 0 || stats.TotalDocs == 0 {
		return 0
	}
	tf := utils.TermCounts(chunkTokens)
	avg := stats.AvgChunkLength
	if avg <= 0 {
		avg = float64(len(chunkTokens))
	}
	norm := s.K1 * (1 - s.B + s.B*float64(len(chunkTokens))/avg)

	seen := make(map[string]struct{}, len(queryTokens))
	var score float64
	for _, term := range queryTokens {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		f := float64(tf[term])
		if f == 0 {
			continue
		}
		idf := IDF(stats.DocumentFrequency[term], stats.TotalDocs)
		score += idf * (f * (s.K1 + 1)) / (f + norm)
	}
	return score
}
