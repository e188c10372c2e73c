package mcp

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/pkg/utils"
)

// passageChars bounds each returned passage.
const passageChars = 600

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Query       string   `json:"query" jsonschema:"the customer question to retrieve passages for"`
	Limit       int      `json:"limit,omitempty" jsonschema:"maximum number of passages to return (default 10)"`
	HybridRatio *float64 `json:"hybrid_ratio,omitempty" jsonschema:"0 ranks by meaning only, 1 by exact terms only; omit for the server default"`
	Categories  []string `json:"categories,omitempty" jsonschema:"only return passages from these document categories"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Passages []Passage `json:"passages"`
	Total    int       `json:"total"`
	Degraded string    `json:"degraded,omitempty"`
}

// Passage is one ranked chunk, trimmed around the query terms.
type Passage struct {
	DocumentID   string  `json:"document_id"`
	ChunkID      string  `json:"chunk_id"`
	Title        string  `json:"title,omitempty"`
	Section      string  `json:"section,omitempty"`
	Source       string  `json:"source,omitempty"`
	Category     string  `json:"category,omitempty"`
	Text         string  `json:"text"`
	Score        float64 `json:"score"`
	VectorScore  float64 `json:"vector_score"`
	KeywordScore float64 `json:"keyword_score"`
	Rank         int     `json:"rank"`
}

// StatisticsInput takes no arguments.
type StatisticsInput struct{}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Retrieve the knowledge-base passages most relevant to a customer question, best first",
	}, s.handleSearch)

	if s.ports.Statistics != nil {
		mcp.AddTool(s.server, &mcp.Tool{
			Name:        "statistics",
			Description: "Report the size of the indexed corpus and whether its statistics need a rebuild",
		}, s.handleStatistics)
	}
}

func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	req := &models.SearchRequest{
		Query:       input.Query,
		Limit:       input.Limit,
		HybridRatio: input.HybridRatio,
	}
	if len(input.Categories) > 0 {
		req.Filter = &models.Filter{Categories: input.Categories}
	}
	resp, err := s.ports.Search.Search(ctx, req)
	if err != nil {
		s.logger.Debug("mcp search failed", zap.String("query", input.Query), zap.Error(err))
		return nil, SearchOutput{}, err
	}

	terms := utils.Tokenize(input.Query)
	out := SearchOutput{
		Passages: make([]Passage, len(resp.Results)),
		Total:    resp.Total,
		Degraded: string(resp.Degraded),
	}
	for i, r := range resp.Results {
		meta := r.Chunk.Metadata
		out.Passages[i] = Passage{
			DocumentID:   r.Chunk.DocumentID,
			ChunkID:      r.Chunk.ID,
			Title:        meta.Title,
			Section:      meta.SectionTitle,
			Source:       meta.Source,
			Category:     meta.Category,
			Text:         search.Highlight(r.Chunk.Text, terms, passageChars),
			Score:        r.Score,
			VectorScore:  r.VectorScore,
			KeywordScore: r.KeywordScore,
			Rank:         r.Rank,
		}
	}
	return nil, out, nil
}

func (s *Server) handleStatistics(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ StatisticsInput,
) (*mcp.CallToolResult, models.StatisticsSummary, error) {
	return nil, s.ports.Statistics.Statistics(), nil
}
