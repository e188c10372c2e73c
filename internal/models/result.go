package models

// SearchResult is a single ranked chunk with the scores that produced its rank.
type SearchResult struct {
	Chunk *Chunk `json:"chunk"`
	// Score is the fused score after boosts.
	Score float64 `json:"score"`
	// VectorScore is the cosine similarity with the query embedding.
	VectorScore float64 `json:"vector_score"`
	// KeywordScore is the raw BM25 score.
	KeywordScore float64            `json:"keyword_score"`
	Boosts       map[string]float64 `json:"boosts,omitempty"`
	Rank         int                `json:"rank"`
}

// Degradation records which signal a query fell back to.
type Degradation string

const (
	DegradedNone        Degradation = ""
	DegradedKeywordOnly Degradation = "keyword_only"
	DegradedVectorOnly  Degradation = "vector_only"
)

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results     []*SearchResult `json:"results"`
	Total       int             `json:"total"`
	Query       string          `json:"query"`
	Analysis    *QueryAnalysis  `json:"analysis,omitempty"`
	HybridRatio float64         `json:"hybrid_ratio"`
	Degraded    Degradation     `json:"degraded,omitempty"`
	QueryTime   int64           `json:"query_time_ms"`
}

// IndexResult reports the outcome of indexing one document.
type IndexResult struct {
	ID     string `json:"id"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// BatchResult reports a batch ingest. Failed documents do not abort the batch.
type BatchResult struct {
	Indexed []IndexResult `json:"indexed"`
	Failed  []IndexResult `json:"failed,omitempty"`
}
