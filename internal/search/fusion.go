package search

import (
	"slices"
	"strings"

	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/vector"
)

// Candidate is a chunk seen by at least one retrieval branch.
type Candidate struct {
	Chunk *models.Chunk
	// VectorScore is the raw cosine similarity, 0 when the vector branch did not return the chunk.
	VectorScore float64
	// VectorNorm is VectorScore mapped onto [0,1], 0 when the vector branch did not return the chunk.
	VectorNorm float64
	// KeywordScore is the raw BM25 score, 0 when the keyword branch did not return the chunk.
	KeywordScore float64
	// KeywordNorm is KeywordScore divided by the best keyword score in the set.
	KeywordNorm float64
}

// NormalizeKeywordScores normalizes keyword scores to [0,1] by max.
func NormalizeKeywordScores(results []*keyword.KeywordResult) map[string]float64 {
	normalized := make(map[string]float64, len(results))
	if len(results) == 0 {
		return normalized
	}
	maxScore := results[0].Score
	for _, r := range results {
		if r.Score > maxScore {
			maxScore = r.Score
		}
	}
	for _, r := range results {
		if maxScore > 0 {
			normalized[r.ID] = r.Score / maxScore
		} else {
			normalized[r.ID] = 0
		}
	}
	return normalized
}

// Merge joins both branches' hits by chunk id. The result is ordered by chunk
// id so later stable sorts are deterministic.
func Merge(vectorResults []*vector.VectorResult, keywordResults []*keyword.KeywordResult) []*Candidate {
	byID := make(map[string]*Candidate, len(vectorResults)+len(keywordResults))
	for _, r := range vectorResults {
		byID[r.ID] = &Candidate{Chunk: r.Chunk, VectorScore: r.Score, VectorNorm: NormalizeSimilarity(r.Score)}
	}
	norm := NormalizeKeywordScores(keywordResults)
	for _, r := range keywordResults {
		c, ok := byID[r.ID]
		if !ok {
			c = &Candidate{Chunk: r.Chunk}
			byID[r.ID] = c
		}
		c.KeywordScore = r.Score
		c.KeywordNorm = norm[r.ID]
	}
	out := make([]*Candidate, 0, len(byID))
	for _, c := range byID {
		if c.Chunk != nil {
			out = append(out, c)
		}
	}
	slices.SortFunc(out, func(a, b *Candidate) int { return strings.Compare(a.Chunk.ID, b.Chunk.ID) })
	return out
}

// NormalizeSimilarity maps a cosine similarity in [-1,1] onto [0,1]. The map is
// monotonic, so negative similarities keep their order.
func NormalizeSimilarity(cos float64) float64 {
	return (1 + min(max(cos, -1), 1)) / 2
}

// Fuse combines a normalized vector similarity and a normalized keyword score.
// ratio 0 is pure vector, 1 is pure keyword.
func Fuse(vectorNorm, keywordNorm, ratio float64) float64 {
	return vectorNorm*(1-ratio) + keywordNorm*ratio
}

// SortResults orders results by score descending, ties by chunk id ascending,
// and assigns ranks.
func SortResults(results []*models.SearchResult) {
	slices.SortStableFunc(results, func(a, b *models.SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.Chunk.ID, b.Chunk.ID)
		}
	})
	for i, r := range results {
		r.Rank = i + 1
	}
}
