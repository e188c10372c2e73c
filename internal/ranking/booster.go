package ranking

import (
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// Booster applies a chain of multipliers to fused scores.
type Booster struct {
	multipliers []Multiplier
	now         func() time.Time
}

// BoosterOption configures a Booster.
type BoosterOption func(*Booster)

// WithMultipliers replaces the default multiplier chain.
func WithMultipliers(m ...Multiplier) BoosterOption {
	return func(b *Booster) { b.multipliers = m }
}

// WithClock overrides the time source used for recency.
func WithClock(now func() time.Time) BoosterOption {
	return func(b *Booster) { b.now = now }
}

// NewBooster creates a Booster with the topic, technical level, structure and
// recency multipliers.
func NewBooster(config *RankingConfig, opts ...BoosterOption) *Booster {
	if config == nil {
		config = DefaultRankingConfig()
	}
	b := &Booster{
		multipliers: []Multiplier{
			NewTopicMultiplier(config),
			NewTechnicalLevelMultiplier(config),
			NewStructureMultiplier(config),
			NewRecencyMultiplier(config),
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Apply multiplies score by every applicable boost and returns the result with
// the factor each boost contributed. Boosts that did not apply are omitted.
func (b *Booster) Apply(analysis *models.QueryAnalysis, meta *models.ChunkMetadata, score float64) (float64, map[string]float64) {
	if analysis == nil || meta == nil {
		return score, nil
	}
	ctx := &ScoringContext{Analysis: analysis, Metadata: meta, Now: b.now()}
	var breakdown map[string]float64
	for _, m := range b.multipliers {
		factor := m.Multiply(ctx, 1)
		if factor == 1 {
			continue
		}
		if breakdown == nil {
			breakdown = make(map[string]float64)
		}
		breakdown[m.Name()] = factor
		score *= factor
	}
	return score, breakdown
}
