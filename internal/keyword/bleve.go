package keyword

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/kotae/internal/models"
)

// BleveIndex implements CandidateIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

type bleveChunk struct {
	Text    string `json:"text"`
	Section string `json:"section"`
}

func chunkMapping() mapping.IndexMapping {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer: lowercase and tokenize without stemming, so candidate
	// terms line up with the corpus statistics vocabulary.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("text", textFieldMapping)
	docMapping.AddFieldMappingsAt("section", textFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping
	return im
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path gives an
// in-memory index, which callers repopulate from storage on startup.
// If you change the index mapping in code, remove the index directory to force a full re-index.
func NewBleveIndex(path string) (*BleveIndex, error) {
	if path == "" {
		index, err := bleve.NewMemOnly(chunkMapping())
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}
	index, err := bleve.New(path, chunkMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces a chunk.
func (b *BleveIndex) Index(_ context.Context, chunk *models.Chunk) error {
	return b.index.Index(chunk.ID, bleveChunk{Text: chunk.Text, Section: chunk.Metadata.SectionTitle})
}

// Delete removes a chunk. Deleting an unknown id is not an error.
func (b *BleveIndex) Delete(_ context.Context, id string) error {
	return b.index.Delete(id)
}

// Candidates returns up to limit chunk ids matching any of terms, best
// Bleve match first.
func (b *BleveIndex) Candidates(ctx context.Context, terms []string, limit int) ([]string, error) {
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(strings.Join(terms, " ")))
	req.Size = limit
	results, err := b.search(ctx, req)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(results.Hits))
	for i, hit := range results.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

// FuzzyCandidates matches terms within edit distance 1 of the indexed text and
// section titles. Besides the chunk ids it returns the indexed terms that
// matched, sorted, so callers can score the corrected spelling.
func (b *BleveIndex) FuzzyCandidates(ctx context.Context, terms []string, limit int) ([]string, []string, error) {
	if len(terms) == 0 || limit <= 0 {
		return nil, nil, nil
	}
	queries := make([]blevequery.Query, 0, 2*len(terms))
	for _, term := range terms {
		for _, field := range []string{"text", "section"} {
			q := bleve.NewMatchQuery(term)
			q.SetField(field)
			q.SetFuzziness(1)
			queries = append(queries, q)
		}
	}
	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(queries...))
	req.Size = limit
	req.IncludeLocations = true
	results, err := b.search(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	ids := make([]string, len(results.Hits))
	matched := map[string]struct{}{}
	for i, hit := range results.Hits {
		ids[i] = hit.ID
		for _, byTerm := range hit.Locations {
			for term := range byTerm {
				matched[term] = struct{}{}
			}
		}
	}
	corrected := make([]string, 0, len(matched))
	for term := range matched {
		corrected = append(corrected, term)
	}
	slices.Sort(corrected)
	return ids, corrected, nil
}

func (b *BleveIndex) search(ctx context.Context, req *bleve.SearchRequest) (*bleve.SearchResult, error) {
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	return results, nil
}

// DocCount returns the number of indexed chunks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}
