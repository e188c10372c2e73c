// Package cli renders command output for Kotae as text or JSON.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Format is the output format of a command.
type Format string

const (
	// OutputText is human-readable text (default).
	OutputText Format = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON Format = "json"
)

// previewChars bounds the passage shown per result in text output.
const previewChars = 240

const rule = "─────────────────────────────────────────────────────────"

// ParseFormat validates a --output flag value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", OutputText:
		return OutputText, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
// Unknown formats are written as text.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format Format) error {
	if format == OutputJSON {
		return writeJSON(w, response)
	}
	fmt.Fprintf(w, "\nFound %d results in %dms (hybrid ratio %.2f)\n", response.Total, response.QueryTime, response.HybridRatio)
	if response.Degraded != models.DegradedNone {
		fmt.Fprintf(w, "Degraded: %s\n", response.Degraded)
	}
	if a := response.Analysis; a != nil {
		fmt.Fprintf(w, "Analysis: level %d, %s, urgency %s", a.TechnicalLevel, a.Format, a.Urgency)
		if len(a.Topics) > 0 {
			fmt.Fprintf(w, ", topics %s", strings.Join(a.Topics, ", "))
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)
	terms := utils.Tokenize(response.Query)
	for _, r := range response.Results {
		writeOneResult(w, r, terms)
	}
	return nil
}

func writeOneResult(w io.Writer, r *models.SearchResult, terms []string) {
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Rank: %d | Score: %.4f (Vector: %.4f, Keyword: %.4f)\n",
		r.Rank, r.Score, r.VectorScore, r.KeywordScore)
	fmt.Fprintf(w, "Document: %s  Chunk: %s\n", r.Chunk.DocumentID, r.Chunk.ID)
	meta := r.Chunk.Metadata
	if meta.Title != "" {
		title := meta.Title
		if meta.SectionTitle != "" {
			title += " › " + meta.SectionTitle
		}
		fmt.Fprintf(w, "Title: %s\n", title)
	}
	if meta.Category != "" {
		fmt.Fprintf(w, "Category: %s\n", meta.Category)
	}
	if len(r.Boosts) > 0 {
		fmt.Fprintf(w, "Boosts: %s\n", formatBoosts(r.Boosts))
	}
	fmt.Fprintf(w, "\n%s\n\n", search.Highlight(r.Chunk.Text, terms, previewChars))
}

func formatBoosts(boosts map[string]float64) string {
	keys := slices.Sorted(maps.Keys(boosts))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s×%.2f", k, boosts[k])
	}
	return strings.Join(parts, " ")
}

// WriteIndexResult reports one ingested document.
func WriteIndexResult(w io.Writer, res models.IndexResult, format Format) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	if res.Error != "" {
		fmt.Fprintf(w, "failed  %s: %s\n", res.ID, res.Error)
		return nil
	}
	fmt.Fprintf(w, "indexed %s (%d chunks)\n", res.ID, res.Chunks)
	return nil
}

// WriteBatchResult reports a batch ingest.
func WriteBatchResult(w io.Writer, res *models.BatchResult, format Format) error {
	if format == OutputJSON {
		return writeJSON(w, res)
	}
	for _, r := range res.Indexed {
		_ = WriteIndexResult(w, r, format)
	}
	for _, r := range res.Failed {
		_ = WriteIndexResult(w, r, format)
	}
	fmt.Fprintf(w, "%d indexed, %d failed\n", len(res.Indexed), len(res.Failed))
	return nil
}

// WriteStatistics reports the corpus statistics.
func WriteStatistics(w io.Writer, s models.StatisticsSummary, format Format) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Chunks counted:   %d\n", s.TotalDocs)
	fmt.Fprintf(w, "Terms counted:    %d\n", s.TotalTerms)
	fmt.Fprintf(w, "Vocabulary size:  %d\n", s.VocabularySize)
	fmt.Fprintf(w, "Needs rebuild:    %t\n", s.NeedsRebuild)
	return nil
}

// WriteStatus reports index sizes and health.
func WriteStatus(w io.Writer, s *models.IndexStatus, format Format) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Documents:        %d\n", s.Documents)
	fmt.Fprintf(w, "Chunks:           %d\n", s.Chunks)
	fmt.Fprintf(w, "Vector index:     %d\n", s.VectorSize)
	fmt.Fprintf(w, "Keyword index:    %d\n", s.KeywordSize)
	if s.DiskUsageBytes != nil {
		fmt.Fprintf(w, "Disk usage:       %s\n", humanBytes(*s.DiskUsageBytes))
	}
	_ = WriteStatistics(w, s.Statistics, format)
	if s.KeywordDegraded {
		fmt.Fprintln(w, "warning: keyword search is unavailable until statistics are rebuilt")
	}
	if s.OutOfSync {
		fmt.Fprintln(w, "warning: indexes disagree with storage; run rebuild-stats or restart")
	}
	return nil
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
