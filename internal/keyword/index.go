// Package keyword provides BM25 keyword scoring over a Bleve candidate index.
package keyword

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// CandidateIndex finds chunks that share terms with a query. It only selects
// candidates; ranking is done by Scorer against the corpus statistics.
type CandidateIndex interface {
	Index(ctx context.Context, chunk *models.Chunk) error
	Delete(ctx context.Context, id string) error
	Candidates(ctx context.Context, terms []string, limit int) ([]string, error)
	// FuzzyCandidates tolerates one edit per term and also returns the
	// indexed terms that matched.
	FuzzyCandidates(ctx context.Context, terms []string, limit int) ([]string, []string, error)
	// DocCount returns the number of indexed chunks.
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Score float64 // raw BM25
	Chunk *models.Chunk
}
