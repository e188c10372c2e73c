package ranking

import (
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// TopicMultiplier boosts chunks whose topics overlap the query's topic hints,
// scaled by the fraction of hints matched.
type TopicMultiplier struct {
	weight float64
}

// NewTopicMultiplier creates a TopicMultiplier.
func NewTopicMultiplier(config *RankingConfig) *TopicMultiplier {
	return &TopicMultiplier{weight: config.TopicBoost}
}

// Name returns the multiplier name.
func (m *TopicMultiplier) Name() string { return "topic" }

// Multiply applies 1 + weight*fraction.
func (m *TopicMultiplier) Multiply(ctx *ScoringContext, score float64) float64 {
	hints := ctx.Analysis.Topics
	if len(hints) == 0 || len(ctx.Metadata.Topics) == 0 {
		return score
	}
	have := make(map[string]struct{}, len(ctx.Metadata.Topics))
	for _, t := range ctx.Metadata.Topics {
		have[strings.ToLower(t)] = struct{}{}
	}
	matched := 0
	for _, h := range hints {
		if _, ok := have[strings.ToLower(h)]; ok {
			matched++
		}
	}
	if matched == 0 {
		return score
	}
	return score * (1 + m.weight*float64(matched)/float64(len(hints)))
}

// TechnicalLevelMultiplier boosts chunks within one level of the query's
// estimated technical level. Chunks of unknown level are not boosted.
type TechnicalLevelMultiplier struct {
	boost float64
}

// NewTechnicalLevelMultiplier creates a TechnicalLevelMultiplier.
func NewTechnicalLevelMultiplier(config *RankingConfig) *TechnicalLevelMultiplier {
	return &TechnicalLevelMultiplier{boost: config.TechnicalLevelBoost}
}

// Name returns the multiplier name.
func (m *TechnicalLevelMultiplier) Name() string { return "technical_level" }

// Multiply applies the boost when |chunk level - query level| <= 1.
func (m *TechnicalLevelMultiplier) Multiply(ctx *ScoringContext, score float64) float64 {
	level := ctx.Metadata.TechnicalLevel
	want := ctx.Analysis.TechnicalLevel
	if level == models.TechnicalLevelUnknown || want == models.TechnicalLevelUnknown {
		return score
	}
	if diff := level - want; diff >= -1 && diff <= 1 {
		return score * m.boost
	}
	return score
}

// StructureMultiplier boosts chunks whose shape suits the expected answer
// format. A steps query also accepts list-shaped chunks.
type StructureMultiplier struct {
	boost float64
}

// NewStructureMultiplier creates a StructureMultiplier.
func NewStructureMultiplier(config *RankingConfig) *StructureMultiplier {
	return &StructureMultiplier{boost: config.StructureBoost}
}

// Name returns the multiplier name.
func (m *StructureMultiplier) Name() string { return "structure" }

// Multiply applies the boost on a format/structure match.
func (m *StructureMultiplier) Multiply(ctx *ScoringContext, score float64) float64 {
	s := ctx.Metadata.Structure
	var ok bool
	switch ctx.Analysis.Format {
	case models.FormatTable:
		ok = s == models.StructureTable
	case models.FormatSteps:
		ok = s == models.StructureSteps || s == models.StructureList
	case models.FormatList:
		ok = s == models.StructureList
	}
	if ok {
		return score * m.boost
	}
	return score
}

// RecencyMultiplier boosts chunks whose document changed within the window.
type RecencyMultiplier struct {
	boost  float64
	config *RankingConfig
}

// NewRecencyMultiplier creates a RecencyMultiplier.
func NewRecencyMultiplier(config *RankingConfig) *RecencyMultiplier {
	return &RecencyMultiplier{boost: config.RecencyBoost, config: config}
}

// Name returns the multiplier name.
func (m *RecencyMultiplier) Name() string { return "recency" }

// Multiply applies the boost when the chunk's document was updated recently.
func (m *RecencyMultiplier) Multiply(ctx *ScoringContext, score float64) float64 {
	updated := ctx.Metadata.UpdatedAt
	if updated.IsZero() || m.config.RecencyWindow <= 0 {
		return score
	}
	age := ctx.Now.Sub(updated)
	if age < 0 || age > m.config.RecencyWindow {
		return score
	}
	return score * m.boost
}
