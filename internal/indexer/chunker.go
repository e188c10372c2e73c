// Package indexer provides document chunking and the ingestion pipeline.
package indexer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

const (
	paragraphBreakMinRatio = 0.5
	sentenceBreakMinRatio  = 0.3
)

// Chunker splits a document into a document summary, one summary per section,
// and bounded-size content chunks per section.
type Chunker struct {
	targetSize      int
	overlapCeiling  float64
	summaryMaxChars int
	analyzer        SectionAnalyzer
	analyzerTimeout time.Duration
	logger          *zap.Logger
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithAnalyzer replaces the default heading analyzer. timeout bounds
// each call; zero means no timeout beyond the caller's context.
func WithAnalyzer(a SectionAnalyzer, timeout time.Duration) ChunkerOption {
	return func(c *Chunker) {
		c.analyzer = a
		c.analyzerTimeout = timeout
	}
}

// WithSummaryMaxChars bounds summary chunk length.
func WithSummaryMaxChars(n int) ChunkerOption {
	return func(c *Chunker) {
		if n > 0 {
			c.summaryMaxChars = n
		}
	}
}

// WithChunkerLogger sets a logger for fallback warnings.
func WithChunkerLogger(l *zap.Logger) ChunkerOption {
	return func(c *Chunker) { c.logger = l }
}

// NewChunker creates a chunker with the given target size (in characters) and
// overlap ceiling (fraction of the target below which a trailing sentence is
// carried into the next chunk).
func NewChunker(targetSize int, overlapCeiling float64, opts ...ChunkerOption) *Chunker {
	if targetSize <= 0 {
		targetSize = 1000
	}
	if overlapCeiling < 0 {
		overlapCeiling = 0
	}
	c := &Chunker{
		targetSize:      targetSize,
		overlapCeiling:  overlapCeiling,
		summaryMaxChars: 300,
		analyzer:        HeadingAnalyzer{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = utils.OrNop(c.logger)
	return c
}

// Chunk derives the chunks of doc from its current text. It never fails because
// of section analysis; see ErrChunkingFailure.
func (c *Chunker) Chunk(ctx context.Context, doc *models.Document) []*models.Chunk {
	base := doc.InheritedMetadata()
	title := doc.Title
	if title == "" {
		title = "Untitled"
	}

	sections, err := c.sections(ctx, doc)
	if err != nil {
		c.logger.Warn("section analysis failed, chunking whole document",
			zap.String("doc_id", doc.ID), zap.Error(err))
		meta := base
		meta.SectionTitle = title
		out := []*models.Chunk{c.newChunk(doc.ID, models.ChunkSectionSummary,
			utils.Truncate(strings.Join(strings.Fields(doc.Content), " "), c.summaryMaxChars), meta)}
		for _, text := range c.Split(doc.Content) {
			out = append(out, c.newChunk(doc.ID, models.ChunkSectionContent, text, meta))
		}
		return number(out)
	}

	docMeta := base
	docMeta.SectionTitle = title
	out := []*models.Chunk{c.newChunk(doc.ID, models.ChunkDocumentSummary,
		c.summaryText(title, doc.Content, 3), docMeta)}

	for _, sec := range sections {
		meta := base
		meta.SectionTitle = sec.Title
		if meta.SectionTitle == "" {
			meta.SectionTitle = title
		}
		out = append(out, c.newChunk(doc.ID, models.ChunkSectionSummary,
			c.summaryText(meta.SectionTitle, sec.Text, 2), meta))
		for _, text := range c.Split(sec.Text) {
			out = append(out, c.newChunk(doc.ID, models.ChunkSectionContent, text, meta))
		}
	}
	return number(out)
}

func (c *Chunker) sections(ctx context.Context, doc *models.Document) ([]Section, error) {
	if c.analyzer == nil {
		return nil, fmt.Errorf("%w: no section analyzer", models.ErrChunkingFailure)
	}
	if c.analyzerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.analyzerTimeout)
		defer cancel()
	}
	sections, err := c.analyzer.Sections(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrChunkingFailure, err)
	}
	if len(sections) == 0 {
		return nil, fmt.Errorf("%w: analyzer returned no sections", models.ErrChunkingFailure)
	}
	return sections, nil
}

func (c *Chunker) summaryText(title, text string, sentences int) string {
	summary := summarize(text, sentences)
	if summary == "" {
		return utils.Truncate(title, c.summaryMaxChars)
	}
	return utils.Truncate(title+": "+summary, c.summaryMaxChars)
}

func (c *Chunker) newChunk(docID string, typ models.ChunkType, text string, meta models.ChunkMetadata) *models.Chunk {
	meta.Structure = DetectStructure(text)
	return &models.Chunk{
		ID:         fmt.Sprintf("%s_%s", docID, uuid.New().String()),
		DocumentID: docID,
		Type:       typ,
		Text:       text,
		Metadata:   meta,
	}
}

func number(chunks []*models.Chunk) []*models.Chunk {
	for i, ch := range chunks {
		ch.Index = i
	}
	return chunks
}

// Split cuts text into pieces of at most the target size plus any carried
// overlap. Cuts prefer a paragraph break in the back half of the window, then
// the last sentence end past 30% of it, then a hard cut at the target.
func (c *Chunker) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}
	target := c.targetSize
	ceiling := c.overlapCeiling * float64(target)

	var out []string
	var carry []rune
	pos := 0
	for pos < len(runes) {
		end := pos + target
		if end >= len(runes) {
			out = appendPiece(out, carry, runes[pos:])
			break
		}
		cut, paragraph := findBreak(runes, pos, end, target)
		piece := runes[pos:cut]
		out = appendPiece(out, carry, piece)

		carry = nil
		if !paragraph {
			if frag := trailingSentence(piece); len(frag) > 0 && float64(len(frag)) < ceiling {
				carry = append(append([]rune{}, frag...), ' ')
			}
		}
		pos = cut
		for pos < len(runes) && unicode.IsSpace(runes[pos]) {
			pos++
		}
	}
	return out
}

func appendPiece(out []string, carry, piece []rune) []string {
	s := strings.TrimSpace(string(carry) + string(piece))
	if s == "" {
		return out
	}
	return append(out, s)
}

// findBreak returns the cut position in runes[pos:end] and whether it falls on
// a paragraph break.
func findBreak(runes []rune, pos, end, target int) (int, bool) {
	minPara := pos + int(paragraphBreakMinRatio*float64(target))
	for i := end - 2; i >= minPara; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i, true
		}
	}
	minSentence := pos + int(sentenceBreakMinRatio*float64(target))
	for i := end - 1; i >= minSentence; i-- {
		if isSentenceEnd(runes, i) {
			return i + 1, false
		}
	}
	return end, false
}

func isSentenceEnd(runes []rune, i int) bool {
	switch runes[i] {
	case '.', '!', '?':
	default:
		return false
	}
	return i+1 == len(runes) || unicode.IsSpace(runes[i+1])
}

// trailingSentence returns the text after the last sentence end that precedes
// the final character of piece: the final sentence, complete or not.
func trailingSentence(piece []rune) []rune {
	trimmed := []rune(strings.TrimRightFunc(string(piece), unicode.IsSpace))
	for i := len(trimmed) - 2; i >= 0; i-- {
		if isSentenceEnd(trimmed, i) {
			return []rune(strings.TrimSpace(string(trimmed[i+1:])))
		}
	}
	return trimmed
}

var (
	bulletLine   = regexp.MustCompile(`^\s*[-*•]\s+\S`)
	numberedLine = regexp.MustCompile(`^\s*(\d+[.)]|step\s+\d+)\s*\S`)
)

// DetectStructure classifies text by shape: pipe tables, numbered steps,
// bullet lists, or prose.
func DetectStructure(text string) models.Structure {
	var bullets, numbered, tableRows int
	for _, line := range strings.Split(text, "\n") {
		l := strings.ToLower(line)
		switch {
		case isTableLine(l):
			tableRows++
		case numberedLine.MatchString(l):
			numbered++
		case bulletLine.MatchString(l):
			bullets++
		}
	}
	switch {
	case tableRows >= 2:
		return models.StructureTable
	case numbered >= 2:
		return models.StructureSteps
	case bullets >= 2:
		return models.StructureList
	default:
		return models.StructureProse
	}
}
