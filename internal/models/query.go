package models

import (
	"fmt"
	"slices"
	"strings"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100
)

// SearchRequest is a query against the retrieval engine.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	// HybridRatio overrides the configured default: 0 is pure vector, 1 is pure keyword.
	HybridRatio *float64 `json:"hybrid_ratio,omitempty"`
	Filter      *Filter  `json:"filter,omitempty"`
}

// Validate ensures the request has valid fields and sets defaults.
// maxLimit caps Limit; pass 0 to use MaxSearchLimit.
func (r *SearchRequest) Validate(defaultLimit, maxLimit int) error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidQuery)
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultSearchLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxSearchLimit
	}
	if r.Limit <= 0 {
		r.Limit = defaultLimit
	}
	if r.Limit > maxLimit {
		r.Limit = maxLimit
	}
	if r.HybridRatio != nil && (*r.HybridRatio < 0 || *r.HybridRatio > 1) {
		return fmt.Errorf("%w: hybrid_ratio %v outside [0,1]", ErrInvalidQuery, *r.HybridRatio)
	}
	if r.Filter != nil {
		return r.Filter.Validate()
	}
	return nil
}

// Filter drops candidates whose metadata does not match. Zero values mean
// "no constraint".
type Filter struct {
	Categories        []string `json:"categories,omitempty"`
	MinTechnicalLevel int      `json:"min_technical_level,omitempty"`
	MaxTechnicalLevel int      `json:"max_technical_level,omitempty"`
	Confidential      *bool    `json:"confidential,omitempty"`
	DocumentIDs       []string `json:"document_ids,omitempty"`
}

// Validate checks the technical-level range.
func (f *Filter) Validate() error {
	if f.MinTechnicalLevel < 0 || f.MaxTechnicalLevel < 0 {
		return fmt.Errorf("%w: negative technical level bound", ErrInvalidQuery)
	}
	if f.MaxTechnicalLevel > 0 && f.MinTechnicalLevel > f.MaxTechnicalLevel {
		return fmt.Errorf("%w: min_technical_level %d > max_technical_level %d",
			ErrInvalidQuery, f.MinTechnicalLevel, f.MaxTechnicalLevel)
	}
	return nil
}

// Matches reports whether a chunk with metadata m passes the filter.
func (f *Filter) Matches(documentID string, m *ChunkMetadata) bool {
	if f == nil {
		return true
	}
	if len(f.Categories) > 0 && !slices.ContainsFunc(f.Categories, func(c string) bool {
		return strings.EqualFold(c, m.Category)
	}) {
		return false
	}
	if f.MinTechnicalLevel > 0 || f.MaxTechnicalLevel > 0 {
		if m.TechnicalLevel == TechnicalLevelUnknown {
			return false
		}
		if f.MinTechnicalLevel > 0 && m.TechnicalLevel < f.MinTechnicalLevel {
			return false
		}
		if f.MaxTechnicalLevel > 0 && m.TechnicalLevel > f.MaxTechnicalLevel {
			return false
		}
	}
	if f.Confidential != nil && *f.Confidential != m.Confidential {
		return false
	}
	if len(f.DocumentIDs) > 0 && !slices.Contains(f.DocumentIDs, documentID) {
		return false
	}
	return true
}

// AnswerFormat is the answer shape a query appears to expect.
type AnswerFormat string

const (
	FormatFreeText AnswerFormat = "free_text"
	FormatSteps    AnswerFormat = "steps"
	FormatList     AnswerFormat = "list"
	FormatTable    AnswerFormat = "table"
)

// Urgency is how pressing a query sounds.
type Urgency string

const (
	UrgencyNormal   Urgency = "normal"
	UrgencyElevated Urgency = "elevated"
	UrgencyHigh     Urgency = "high"
)

// QueryAnalysis holds signals derived from a raw query. It is cacheable and
// never persisted.
type QueryAnalysis struct {
	TechnicalLevel int          `json:"technical_level"`
	Format         AnswerFormat `json:"format"`
	Complexity     float64      `json:"complexity"`
	Topics         []string     `json:"topics,omitempty"`
	Urgency        Urgency      `json:"urgency"`
	Source         string       `json:"source"`
}

// Clone returns a copy that shares no slices with a.
func (a *QueryAnalysis) Clone() *QueryAnalysis {
	if a == nil {
		return nil
	}
	c := *a
	c.Topics = slices.Clone(a.Topics)
	return &c
}
