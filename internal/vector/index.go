// Package vector provides the sharded in-memory vector index.
package vector

import (
	"context"

	"github.com/hyperjump/kotae/internal/models"
)

// VectorIndex stores chunk embeddings with their chunks and answers top-k
// cosine similarity queries.
type VectorIndex interface {
	Add(ctx context.Context, chunk *models.Chunk) error
	Remove(ctx context.Context, id string) error
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)
	// Get returns the stored chunk for id.
	Get(id string) (*models.Chunk, bool)
	Size() int
	Dimensions() int
	Close() error
}

// VectorResult is a single vector search hit.
type VectorResult struct {
	ID    string
	Score float64 // cosine similarity in [-1, 1]
	Chunk *models.Chunk
}
