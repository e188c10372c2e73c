// Package models defines core data structures for documents, chunks, queries, and search results.
package models

import (
	"fmt"
	"strings"
	"time"
)

// Document is a single approved source unit. The typed fields carry what the
// retrieval engine filters and boosts on; Extra holds provider-specific tags
// (entities, industry, source_path, ...).
type Document struct {
	ID             string         `json:"id" db:"id"`
	Title          string         `json:"title" db:"title"`
	Source         string         `json:"source,omitempty" db:"source"`
	Content        string         `json:"content" db:"content"`
	Category       string         `json:"category,omitempty" db:"category"`
	TechnicalLevel int            `json:"technical_level,omitempty" db:"technical_level"`
	Confidential   bool           `json:"confidential" db:"confidential"`
	ContentType    string         `json:"content_type,omitempty" db:"content_type"`
	Topics         []string       `json:"topics,omitempty" db:"topics"`
	Extra          map[string]any `json:"extra,omitempty" db:"extra"`
	CreatedAt      time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at" db:"updated_at"`
}

// ChunkType distinguishes summary chunks from content chunks.
type ChunkType string

const (
	ChunkDocumentSummary ChunkType = "document_summary"
	ChunkSectionSummary  ChunkType = "section_summary"
	ChunkSectionContent  ChunkType = "section_content"
)

// Structure is the detected shape of a chunk's text.
type Structure string

const (
	StructureProse Structure = "prose"
	StructureList  Structure = "list"
	StructureSteps Structure = "steps"
	StructureTable Structure = "table"
)

// ChunkMetadata is inherited from the owning document and section.
type ChunkMetadata struct {
	Title          string    `json:"title,omitempty"`
	Source         string    `json:"source,omitempty"`
	SectionTitle   string    `json:"section_title,omitempty"`
	Category       string    `json:"category,omitempty"`
	ContentType    string    `json:"content_type,omitempty"`
	TechnicalLevel int       `json:"technical_level,omitempty"`
	Confidential   bool      `json:"confidential"`
	Topics         []string  `json:"topics,omitempty"`
	Structure      Structure `json:"structure,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Chunk is the atomic unit of retrieval. Text is exactly the string that was
// embedded; nothing may rewrite it once Embedding is set.
type Chunk struct {
	ID         string        `json:"id" db:"id"`
	DocumentID string        `json:"document_id" db:"document_id"`
	Index      int           `json:"chunk_index" db:"chunk_index"`
	Type       ChunkType     `json:"type" db:"chunk_type"`
	Text       string        `json:"text" db:"text"`
	Embedding  []float32     `json:"-" db:"embedding"`
	Metadata   ChunkMetadata `json:"metadata" db:"metadata"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// DocumentInput is the input for indexing a document.
type DocumentInput struct {
	ID             string         `json:"id,omitempty"`
	Title          string         `json:"title,omitempty"`
	Source         string         `json:"source,omitempty"`
	Content        string         `json:"content"`
	Category       string         `json:"category,omitempty"`
	TechnicalLevel int            `json:"technical_level,omitempty"`
	Confidential   bool           `json:"confidential,omitempty"`
	ContentType    string         `json:"content_type,omitempty"`
	Topics         []string       `json:"topics,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
	UpdatedAt      time.Time      `json:"updated_at,omitempty"`
}

// Validate rejects inputs that cannot produce a document.
func (in *DocumentInput) Validate() error {
	if strings.TrimSpace(in.Content) == "" {
		return fmt.Errorf("%w: content cannot be empty", ErrInvalidDocument)
	}
	if in.TechnicalLevel < 0 || in.TechnicalLevel > TechnicalLevelMax {
		return fmt.Errorf("%w: technical_level %d out of range", ErrInvalidDocument, in.TechnicalLevel)
	}
	return nil
}

// ToDocument builds a Document from the input. Timestamps default to now.
func (in *DocumentInput) ToDocument(now time.Time) *Document {
	updated := in.UpdatedAt
	if updated.IsZero() {
		updated = now
	}
	return &Document{
		ID:             in.ID,
		Title:          in.Title,
		Source:         in.Source,
		Content:        in.Content,
		Category:       in.Category,
		TechnicalLevel: in.TechnicalLevel,
		Confidential:   in.Confidential,
		ContentType:    in.ContentType,
		Topics:         in.Topics,
		Extra:          in.Extra,
		CreatedAt:      now,
		UpdatedAt:      updated,
	}
}

// InheritedMetadata returns the chunk metadata every chunk of d starts from.
func (d *Document) InheritedMetadata() ChunkMetadata {
	return ChunkMetadata{
		Title:          d.Title,
		Source:         d.Source,
		Category:       d.Category,
		ContentType:    d.ContentType,
		TechnicalLevel: d.TechnicalLevel,
		Confidential:   d.Confidential,
		Topics:         d.Topics,
		UpdatedAt:      d.UpdatedAt,
	}
}
