package keyword

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
)

// DefaultCandidatePool is the minimum number of candidates pulled from the
// candidate index before BM25 rescoring.
const DefaultCandidatePool = 200

// ChunkLookup resolves chunk ids to stored chunks.
type ChunkLookup interface {
	Get(id string) (*models.Chunk, bool)
}

// StatsReader reads the corpus statistics a query needs.
type StatsReader interface {
	Lookup(terms []string) corpus.TermStats
}

// Searcher runs keyword search: candidates from the index, BM25 from the
// corpus statistics.
type Searcher struct {
	index         CandidateIndex
	chunks        ChunkLookup
	stats         StatsReader
	scorer        Scorer
	candidatePool int
}

// NewSearcher creates a keyword searcher.
func NewSearcher(index CandidateIndex, chunks ChunkLookup, stats StatsReader, scorer Scorer, candidatePool int) *Searcher {
	if candidatePool <= 0 {
		candidatePool = DefaultCandidatePool
	}
	return &Searcher{index: index, chunks: chunks, stats: stats, scorer: scorer, candidatePool: candidatePool}
}

// Search returns up to n chunks with a positive BM25 score for tokens, best
// first, ties broken by chunk id. When no chunk contains a query term exactly,
// candidates within one edit are scored against their indexed spelling. It
// returns ErrNoStatistics while the corpus statistics are empty.
func (s *Searcher) Search(ctx context.Context, tokens []string, n int) ([]*KeywordResult, error) {
	terms := unique(tokens)
	ts := s.stats.Lookup(terms)
	if ts.TotalDocs == 0 {
		return nil, models.ErrNoStatistics
	}
	if len(terms) == 0 || n <= 0 {
		return nil, nil
	}

	pool := max(n, s.candidatePool)
	ids, err := s.index.Candidates(ctx, terms, pool)
	if err != nil {
		return nil, fmt.Errorf("keyword candidates: %w", err)
	}
	if len(ids) == 0 {
		// No exact hit: retry with typo tolerance and score the spelling the
		// corpus actually uses.
		var corrected []string
		ids, corrected, err = s.index.FuzzyCandidates(ctx, terms, pool)
		if err != nil {
			return nil, fmt.Errorf("fuzzy keyword candidates: %w", err)
		}
		terms = unique(utils.Tokenize(strings.Join(corrected, " ")))
		ts = s.stats.Lookup(terms)
	}
	results := make([]*KeywordResult, 0, len(ids))
	for _, id := range ids {
		chunk, ok := s.chunks.Get(id)
		if !ok {
			continue
		}
		score := s.scorer.Score(terms, utils.Tokenize(chunk.Text), ts)
		if score <= 0 {
			continue
		}
		results = append(results, &KeywordResult{ID: id, Score: score, Chunk: chunk})
	}
	slices.SortFunc(results, func(a, b *KeywordResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return strings.Compare(a.ID, b.ID)
		}
	})
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

func unique(tokens []string) []string {
	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
