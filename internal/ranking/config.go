package ranking

import "time"

// RankingConfig holds query-analysis and boost settings.
type RankingConfig struct {
	// Boost multipliers
	TopicBoost          float64       `yaml:"topic_boost"`           // default: 0.5 (scaled by topic overlap)
	TechnicalLevelBoost float64       `yaml:"technical_level_boost"` // default: 1.2
	StructureBoost      float64       `yaml:"structure_boost"`       // default: 1.15
	RecencyBoost        float64       `yaml:"recency_boost"`         // default: 1.1
	RecencyWindow       time.Duration `yaml:"recency_window"`        // default: 720h

	// Technical level bounds on the 1-10 scale
	TechnicalLevelMin int `yaml:"technical_level_min"` // default: 1
	TechnicalLevelMax int `yaml:"technical_level_max"` // default: 10

	// Analysis cache
	AnalysisCacheTTL  time.Duration `yaml:"analysis_cache_ttl"`  // default: 5m
	AnalysisCacheSize int           `yaml:"analysis_cache_size"` // default: 1024

	// Topics maps a topic hint to the substrings that trigger it.
	// Empty means the built-in vocabulary.
	Topics map[string][]string `yaml:"topics,omitempty"`
	// TechnicalTerms replaces the built-in technical vocabulary when set.
	TechnicalTerms []string `yaml:"technical_terms,omitempty"`
}

// DefaultRankingConfig returns the default configuration.
func DefaultRankingConfig() *RankingConfig {
	c := &RankingConfig{}
	c.ApplyDefaults()
	return c
}

// ApplyDefaults fills zero values with defaults.
func (c *RankingConfig) ApplyDefaults() {
	if c.TopicBoost == 0 {
		c.TopicBoost = 0.5
	}
	if c.TechnicalLevelBoost == 0 {
		c.TechnicalLevelBoost = 1.2
	}
	if c.StructureBoost == 0 {
		c.StructureBoost = 1.15
	}
	if c.RecencyBoost == 0 {
		c.RecencyBoost = 1.1
	}
	if c.RecencyWindow == 0 {
		c.RecencyWindow = 30 * 24 * time.Hour
	}
	if c.TechnicalLevelMin == 0 {
		c.TechnicalLevelMin = 1
	}
	if c.TechnicalLevelMax == 0 {
		c.TechnicalLevelMax = 10
	}
	if c.AnalysisCacheTTL == 0 {
		c.AnalysisCacheTTL = 5 * time.Minute
	}
	if c.AnalysisCacheSize == 0 {
		c.AnalysisCacheSize = 1024
	}
	if len(c.Topics) == 0 {
		c.Topics = defaultTopics()
	}
	if len(c.TechnicalTerms) == 0 {
		c.TechnicalTerms = defaultTechnicalTerms()
	}
}
