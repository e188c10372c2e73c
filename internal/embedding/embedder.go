// Package embedding provides text embedding providers: a deterministic mock,
// an HTTP client for OpenAI- or Ollama-style endpoints, and local ONNX models.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
