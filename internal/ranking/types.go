// Package ranking analyzes queries and applies metadata boosts to fused
// retrieval scores.
package ranking

import (
	"context"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// Analyzer derives a QueryAnalysis from raw query text.
type Analyzer interface {
	Analyze(ctx context.Context, query string) (*models.QueryAnalysis, error)
}

// ScoringContext carries what a multiplier may look at for one candidate.
type ScoringContext struct {
	Analysis *models.QueryAnalysis
	Metadata *models.ChunkMetadata
	Now      time.Time
}

// Multiplier scales a candidate's score. Returning the input unchanged means
// the boost does not apply.
type Multiplier interface {
	Name() string
	Multiply(ctx *ScoringContext, score float64) float64
}
