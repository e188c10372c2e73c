package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

func testDocument(id string) (*models.Document, []*models.Chunk) {
	doc := &models.Document{
		ID:             id,
		Title:          "Pricing",
		Content:        "Plans and tiers.",
		Category:       "billing",
		TechnicalLevel: 4,
		Confidential:   true,
		Topics:         []string{"pricing"},
		Extra:          map[string]any{"source_path": "/inbox/pricing.md"},
	}
	chunks := make([]*models.Chunk, 3)
	for i := range chunks {
		chunks[i] = &models.Chunk{
			ID:         fmt.Sprintf("%s_%d", id, i),
			DocumentID: id,
			Index:      i,
			Type:       models.ChunkSectionContent,
			Text:       fmt.Sprintf("chunk %d", i),
			Embedding:  []float32{float32(i), 0.5, -1},
			Metadata:   models.ChunkMetadata{Title: "Pricing", Category: "billing", Structure: models.StructureList},
		}
	}
	return doc, chunks
}

// storageContract exercises behavior every Storage implementation shares.
func storageContract(t *testing.T, store Storage) {
	t.Helper()
	ctx := context.Background()

	doc, chunks := testDocument("doc1")
	if err := store.SaveDocument(ctx, doc, chunks); err != nil {
		t.Fatal(err)
	}
	if doc.CreatedAt.IsZero() {
		t.Error("CreatedAt should be set")
	}

	got, err := store.GetDocument(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "Pricing" || got.Category != "billing" || got.TechnicalLevel != 4 || !got.Confidential {
		t.Errorf("got %+v", got)
	}
	if len(got.Topics) != 1 || got.Topics[0] != "pricing" {
		t.Errorf("Topics = %v", got.Topics)
	}
	if got.Extra["source_path"] != "/inbox/pricing.md" {
		t.Errorf("Extra = %v", got.Extra)
	}

	stored, err := store.GetChunksByDocumentID(ctx, "doc1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(stored))
	}
	if stored[2].Embedding[0] != 2 || stored[2].Embedding[2] != -1 {
		t.Errorf("embedding round trip: %v", stored[2].Embedding)
	}
	if stored[1].Metadata.Structure != models.StructureList || stored[1].Type != models.ChunkSectionContent {
		t.Errorf("chunk metadata round trip: %+v", stored[1])
	}

	// Re-save replaces chunks.
	doc.Title = "Pricing v2"
	if err := store.SaveDocument(ctx, doc, chunks[:1]); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountChunks(ctx); n != 1 {
		t.Errorf("CountChunks after re-save = %d, want 1", n)
	}
	got, _ = store.GetDocument(ctx, "doc1")
	if got.Title != "Pricing v2" {
		t.Errorf("expected updated title, got %s", got.Title)
	}

	doc2, chunks2 := testDocument("doc2")
	if err := store.SaveDocument(ctx, doc2, chunks2); err != nil {
		t.Fatal(err)
	}
	if n, _ := store.CountDocuments(ctx); n != 2 {
		t.Errorf("CountDocuments = %d, want 2", n)
	}
	list, err := store.ListDocuments(ctx, 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Errorf("expected 2 docs, got %d", len(list))
	}

	// Paging visits every chunk exactly once.
	seen := map[string]bool{}
	after := ""
	for {
		page, err := store.ListChunks(ctx, after, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(page) == 0 {
			break
		}
		for _, ch := range page {
			if seen[ch.ID] {
				t.Fatalf("chunk %s returned twice", ch.ID)
			}
			seen[ch.ID] = true
		}
		after = page[len(page)-1].ID
	}
	if len(seen) != 4 {
		t.Errorf("paged %d chunks, want 4", len(seen))
	}

	if err := store.DeleteDocument(ctx, "doc1"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetDocument(ctx, "doc1"); !errors.Is(err, models.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
	if err := store.DeleteDocument(ctx, "doc1"); !errors.Is(err, models.ErrDocumentNotFound) {
		t.Errorf("second delete: expected ErrDocumentNotFound, got %v", err)
	}
	if n, _ := store.CountChunks(ctx); n != 3 {
		t.Errorf("CountChunks after delete = %d, want 3", n)
	}
}

func statisticsContract(t *testing.T, store Storage) {
	t.Helper()
	ctx := context.Background()

	none, err := store.LoadStatistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if none != nil {
		t.Fatalf("expected nil statistics before first save, got %+v", none)
	}

	stats := &models.CorpusStatistics{
		TermFrequency:     map[string]int{"pricing": 3, "tier": 1},
		DocumentFrequency: map[string]int{"pricing": 2, "tier": 1},
		TotalDocs:         2,
		TotalTerms:        9,
		UpdatedAt:         time.Now().UTC().Truncate(time.Second),
	}
	if err := store.SaveStatistics(ctx, stats); err != nil {
		t.Fatal(err)
	}
	stats.DocumentFrequency = map[string]int{"pricing": 2}
	stats.TermFrequency = map[string]int{"pricing": 3}
	if err := store.SaveStatistics(ctx, stats); err != nil {
		t.Fatal(err)
	}

	got, err := store.LoadStatistics(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalDocs != 2 || got.TotalTerms != 9 {
		t.Errorf("totals = %d/%d", got.TotalDocs, got.TotalTerms)
	}
	if len(got.DocumentFrequency) != 1 || got.DocumentFrequency["pricing"] != 2 || got.TermFrequency["pricing"] != 3 {
		t.Errorf("terms = %v / %v", got.DocumentFrequency, got.TermFrequency)
	}
}

func TestSQLiteStorage_Documents(t *testing.T) {
	store, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "data", "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	storageContract(t, store)
}

func TestSQLiteStorage_Statistics(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	statisticsContract(t, store)
}

func TestSQLiteStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	doc, chunks := testDocument("doc1")
	if err := store.SaveDocument(context.Background(), doc, chunks); err != nil {
		t.Fatal(err)
	}
	store.Close()

	store, err = NewSQLiteStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if n, _ := store.CountChunks(context.Background()); n != 3 {
		t.Errorf("CountChunks after reopen = %d, want 3", n)
	}
}

func TestVectorCodec(t *testing.T) {
	in := []float32{0, 1.5, -2.25, 3e-7}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatal(err)
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("index %d: %v != %v", i, in[i], out[i])
		}
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
