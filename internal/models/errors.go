package models

import "errors"

var (
	// ErrEmbeddingUnavailable means the embedding provider failed or timed out.
	// Queries degrade to keyword-only; ingestion treats it as retryable.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrDimensionMismatch is a configuration error and is never recovered from.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrStatisticsInconsistency flags corpus statistics that need a rebuild.
	ErrStatisticsInconsistency = errors.New("corpus statistics inconsistent")

	// ErrChunkingFailure means section analysis failed; the chunker falls back
	// to whole-document chunking.
	ErrChunkingFailure = errors.New("section analysis failed")

	// ErrNoStatistics means the keyword scorer has no corpus statistics yet.
	ErrNoStatistics = errors.New("no corpus statistics")

	// ErrNoSignal means neither the vector nor the keyword signal was available.
	ErrNoSignal = errors.New("no retrieval signal available")

	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidQuery     = errors.New("invalid query")
	ErrInvalidDocument  = errors.New("invalid document")
)
