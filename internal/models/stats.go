package models

import "time"

// CorpusStatistics is the aggregate term data BM25 needs. DocumentFrequency
// counts chunks, so no entry may exceed TotalDocs.
type CorpusStatistics struct {
	TermFrequency     map[string]int `json:"term_frequency"`
	DocumentFrequency map[string]int `json:"document_frequency"`
	TotalDocs         int            `json:"total_docs"`
	TotalTerms        int            `json:"total_terms"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// StatisticsSummary is the reportable part of the corpus statistics.
type StatisticsSummary struct {
	TotalDocs      int  `json:"total_docs"`
	TotalTerms     int  `json:"total_terms"`
	VocabularySize int  `json:"vocabulary_size"`
	NeedsRebuild   bool `json:"needs_rebuild"`
}

// IndexStatus reports the size of every index and whether queries would
// currently run degraded.
type IndexStatus struct {
	Documents   int64             `json:"documents"`
	Chunks      int64             `json:"chunks"`
	VectorSize  int               `json:"vector_index_size"`
	KeywordSize uint64            `json:"keyword_index_size"`
	Statistics  StatisticsSummary `json:"statistics"`
	// KeywordDegraded is set while BM25 has no usable statistics.
	KeywordDegraded bool `json:"keyword_degraded"`
	// OutOfSync is set when the in-memory indexes disagree with storage.
	OutOfSync      bool   `json:"out_of_sync"`
	DiskUsageBytes *int64 `json:"disk_usage_bytes,omitempty"`
}
