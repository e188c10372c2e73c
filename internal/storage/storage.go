// Package storage persists documents, chunks (with their embeddings) and
// corpus statistics. It is the source of truth the in-memory indexes are
// rebuilt from at startup.
package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/hyperjump/kotae/internal/models"
)

// Storage defines document, chunk and statistics persistence.
type Storage interface {
	// SaveDocument upserts doc and replaces its chunks in one transaction.
	SaveDocument(ctx context.Context, doc *models.Document, chunks []*models.Chunk) error
	// GetDocument returns models.ErrDocumentNotFound for unknown ids.
	GetDocument(ctx context.Context, id string) (*models.Document, error)
	// DeleteDocument removes a document and its chunks. Unknown ids return
	// models.ErrDocumentNotFound.
	DeleteDocument(ctx context.Context, id string) error
	ListDocuments(ctx context.Context, offset, limit int) ([]*models.Document, error)

	GetChunksByDocumentID(ctx context.Context, docID string) ([]*models.Chunk, error)
	// ListChunks pages through all chunks ordered by id, starting after
	// afterID ("" for the first page).
	ListChunks(ctx context.Context, afterID string, limit int) ([]*models.Chunk, error)

	CountDocuments(ctx context.Context) (int64, error)
	CountChunks(ctx context.Context) (int64, error)

	// SaveStatistics replaces the persisted snapshot. LoadStatistics returns
	// nil, nil when none was saved.
	SaveStatistics(ctx context.Context, stats *models.CorpusStatistics) error
	LoadStatistics(ctx context.Context) (*models.CorpusStatistics, error)

	Close() error
}

// EncodeVector packs v as little-endian float32s.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}

func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}
	return string(b), nil
}

func unmarshalJSON(s string, v any) error {
	if s == "" || s == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}
