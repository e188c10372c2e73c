package embedding

import (
	"context"
	"errors"
	"hash/fnv"

	"github.com/hyperjump/kotae/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and local development.
// Each token is hashed into a bucket, so texts that share words get similar
// vectors and the same text always gets the same embedding.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns a MockEmbedder of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a unit-length feature-hashed embedding of text.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	emb := make([]float32, e.dimensions)
	tokens := utils.Tokenize(text)
	if len(tokens) == 0 {
		emb[0] = 1
		return emb, nil
	}
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		sign := float32(1)
		if sum&(1<<63) != 0 {
			sign = -1
		}
		emb[sum%uint64(e.dimensions)] += sign
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *MockEmbedder) Close() error {
	return nil
}

// ErrProviderDown is returned by FailingEmbedder.
var ErrProviderDown = errors.New("embedding provider down")

// FailingEmbedder always fails. It stands in for an unreachable provider.
type FailingEmbedder struct {
	dimensions int
}

// NewFailingEmbedder returns an embedder that always errors.
func NewFailingEmbedder(dimensions int) *FailingEmbedder {
	return &FailingEmbedder{dimensions: dimensions}
}

// Embed always returns ErrProviderDown.
func (e *FailingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, ErrProviderDown
}

// EmbedBatch always returns ErrProviderDown.
func (e *FailingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, ErrProviderDown
}

// Dimensions returns the configured dimension.
func (e *FailingEmbedder) Dimensions() int { return e.dimensions }

// Close is a no-op.
func (e *FailingEmbedder) Close() error { return nil }
