package indexer

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

const testDims = 8

func TestExtensionAllowed(t *testing.T) {
	tests := []struct {
		ext     string
		allowed []string
		want    bool
	}{
		{".txt", []string{".txt", ".md"}, true},
		{".TXT", []string{".txt"}, true},
		{".md", []string{".txt", ".md"}, true},
		{".go", []string{".txt"}, false},
		{"", []string{".txt"}, false},
		{".rst", []string{"txt", "md", "rst"}, true},
	}
	for _, tt := range tests {
		got := extensionAllowed(tt.ext, tt.allowed)
		if got != tt.want {
			t.Errorf("extensionAllowed(%q, %v) = %v, want %v", tt.ext, tt.allowed, got, tt.want)
		}
	}
}

func TestTitleFromPath(t *testing.T) {
	tests := map[string]string{
		"/inbox/employee_handbook-2024.pdf": "employee handbook 2024",
		"/inbox/doc.txt":                    "doc",
		"/inbox/Pricing FAQ.md":             "Pricing FAQ",
	}
	for path, want := range tests {
		if got := titleFromPath(path); got != want {
			t.Errorf("titleFromPath(%q) = %q, want %q", path, got, want)
		}
	}
}

// failingKeywordIndex fails to index chunks whose text contains failOn.
type failingKeywordIndex struct {
	keyword.CandidateIndex
	failOn string
}

func (f *failingKeywordIndex) Index(ctx context.Context, chunk *models.Chunk) error {
	if f.failOn != "" && strings.Contains(chunk.Text, f.failOn) {
		return errors.New("keyword index unavailable")
	}
	return f.CandidateIndex.Index(ctx, chunk)
}

// flakyEmbedder fails the first n EmbedBatch calls.
type flakyEmbedder struct {
	*embedding.MockEmbedder
	remaining atomic.Int32
}

func (f *flakyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.remaining.Add(-1) >= 0 {
		return nil, embedding.ErrProviderDown
	}
	return f.MockEmbedder.EmbedBatch(ctx, texts)
}

// recordingEmbedder remembers every text it was asked to embed.
type recordingEmbedder struct {
	*embedding.MockEmbedder
	mu    sync.Mutex
	texts []string
}

func (r *recordingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	r.mu.Lock()
	r.texts = append(r.texts, text)
	r.mu.Unlock()
	return r.MockEmbedder.Embed(ctx, text)
}

func (r *recordingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	r.mu.Lock()
	r.texts = append(r.texts, texts...)
	r.mu.Unlock()
	return r.MockEmbedder.EmbedBatch(ctx, texts)
}

type harness struct {
	idx     *Indexer
	store   storage.Storage
	vectors *vector.ShardedIndex
	keyword *failingKeywordIndex
	stats   *corpus.Store
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Chunking.TargetSize = 120
	cfg.Retrieval.ShardCapacity = 3
	cfg.Embedding.Dimensions = testDims
	return cfg
}

func newHarness(t *testing.T, store storage.Storage, embedder embedding.Embedder, opts ...IndexerOption) *harness {
	t.Helper()
	vecIndex, err := vector.NewShardedIndex(testDims, 3)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = vecIndex.Close() })
	bleveIndex, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = bleveIndex.Close() })
	kw := &failingKeywordIndex{CandidateIndex: bleveIndex}
	stats := corpus.NewStore(corpus.WithRepository(store))
	idx := NewIndexer(store, embedder, vecIndex, kw, stats, testConfig(), extract.NewExtractor(), opts...)
	return &harness{idx: idx, store: store, vectors: vecIndex, keyword: kw, stats: stats}
}

func newStorage(t *testing.T, dir string) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(filepath.Join(dir, "db.sqlite"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testIndexerWithStorage(t *testing.T, dir string) (*Indexer, storage.Storage) {
	t.Helper()
	h := newHarness(t, newStorage(t, dir), embedding.NewMockEmbedder(testDims))
	return h.idx, h.store
}

const handbook = `# Pricing
Plans start at $50 per month. Enterprise pricing is negotiated.

# Scheduling
Managers publish shifts weekly. Employees can swap shifts in the app.`

func TestIndexDocument(t *testing.T) {
	h := newHarness(t, newStorage(t, t.TempDir()), embedding.NewMockEmbedder(testDims))
	ctx := context.Background()

	id, n, err := h.idx.IndexDocument(ctx, &models.DocumentInput{Title: "Handbook", Content: handbook, Category: "hr"})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}
	// document summary + 2 × (section summary + content)
	if n != 5 {
		t.Errorf("chunks = %d, want 5", n)
	}
	chunks, err := h.store.GetChunksByDocumentID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != n || h.vectors.Size() != n || h.stats.TotalDocs() != n {
		t.Errorf("stored=%d vectors=%d stats=%d, want %d each", len(chunks), h.vectors.Size(), h.stats.TotalDocs(), n)
	}
	for _, ch := range chunks {
		if ch.Metadata.Category != "hr" {
			t.Errorf("chunk %s did not inherit category", ch.ID)
		}
		if len(ch.Embedding) != testDims {
			t.Errorf("chunk %s embedding has %d dims", ch.ID, len(ch.Embedding))
		}
	}
	if count, _ := h.keyword.DocCount(); int(count) != n {
		t.Errorf("keyword index holds %d chunks, want %d", count, n)
	}
}

func TestIndexDocument_invalid(t *testing.T) {
	h := newHarness(t, newStorage(t, t.TempDir()), embedding.NewMockEmbedder(testDims))
	_, _, err := h.idx.IndexDocument(context.Background(), &models.DocumentInput{Content: "  \n\t"})
	if !errors.Is(err, models.ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestIndexDocument_storedTextIsEmbeddedText(t *testing.T) {
	rec := &recordingEmbedder{MockEmbedder: embedding.NewMockEmbedder(testDims)}
	h := newHarness(t, newStorage(t, t.TempDir()), rec)
	ctx := context.Background()

	content := "# Pricing  \r\nPlans start at $50.\x00 Enterprise   pricing is negotiated.   \r\n\r\n\r\n\r\n" +
		"# Scheduling\r\n\tManagers publish shifts weekly.\x07\r\n- swap shifts\r\n- drop shifts   \r\n"
	id, n, err := h.idx.IndexDocument(ctx, &models.DocumentInput{Title: "Handbook", Content: content})
	if err != nil {
		t.Fatal(err)
	}
	embedded := map[string]bool{}
	for _, text := range rec.texts {
		embedded[text] = true
	}
	chunks, err := h.store.GetChunksByDocumentID(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != n || n == 0 {
		t.Fatalf("stored %d chunks, indexed %d", len(chunks), n)
	}
	for _, ch := range chunks {
		if !embedded[ch.Text] {
			t.Errorf("stored text of chunk %s was never embedded: %q", ch.ID, ch.Text)
		}
		if strings.ContainsAny(ch.Text, "\r\x00\x07") {
			t.Errorf("chunk %s kept control characters: %q", ch.ID, ch.Text)
		}
		want, _ := rec.MockEmbedder.Embed(ctx, ch.Text)
		if len(ch.Embedding) != len(want) {
			t.Fatalf("chunk %s embedding has %d dims, want %d", ch.ID, len(ch.Embedding), len(want))
		}
		for i := range want {
			if math.Abs(float64(ch.Embedding[i]-want[i])) > 1e-6 {
				t.Errorf("chunk %s embedding does not belong to its text", ch.ID)
				break
			}
		}
		if cached, ok := h.vectors.Get(ch.ID); !ok || cached.Text != ch.Text {
			t.Errorf("vector index text of chunk %s differs from storage", ch.ID)
		}
	}
}

func TestIndexDocument_reindexReplaces(t *testing.T) {
	h := newHarness(t, newStorage(t, t.TempDir()), embedding.NewMockEmbedder(testDims))
	ctx := context.Background()

	if _, _, err := h.idx.IndexDocument(ctx, &models.DocumentInput{ID: "doc", Content: handbook}); err != nil {
		t.Fatal(err)
	}
	first, _ := h.store.GetDocument(ctx, "doc")
	_, n, err := h.idx.IndexDocument(ctx, &models.DocumentInput{ID: "doc", Content: "Payroll runs every other Friday."})
	if err != nil {
		t.Fatal(err)
	}
	if h.vectors.Size() != n || h.stats.TotalDocs() != n {
		t.Errorf("vectors=%d stats=%d after re-index, want %d", h.vectors.Size(), h.stats.TotalDocs(), n)
	}
	doc, err := h.store.GetDocument(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc.Content, "Payroll") {
		t.Errorf("content not replaced: %q", doc.Content)
	}
	if !doc.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed on re-index: %v -> %v", first.CreatedAt, doc.CreatedAt)
	}
}

func TestIndexDocument_embeddingFailureWritesNothing(t *testing.T) {
	h := newHarness(t, newStorage(t, t.TempDir()), embedding.NewFailingEmbedder(testDims))
	ctx := context.Background()

	_, _, err := h.idx.IndexDocument(ctx, &models.DocumentInput{ID: "doc", Content: handbook})
	if !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if _, err := h.store.GetDocument(ctx, "doc"); !errors.Is(err, models.ErrDocumentNotFound) {
		t.Errorf("document should not be stored, got %v", err)
	}
	if h.vectors.Size() != 0 || h.stats.TotalDocs() != 0 {
		t.Errorf("indexes should be empty: vectors=%d stats=%d", h.vectors.Size(), h.stats.TotalDocs())
	}
}

func TestIndexDocument_rollbackOnIndexFailure(t *testing.T) {
	h := newHarness(t, newStorage(t, t.TempDir()), embedding.NewMockEmbedder(testDims))
	ctx := context.Background()

	h.keyword.failOn = "Enterprise"
	if _, _, err := h.idx.IndexDocument(ctx, &models.DocumentInput{ID: "doc", Content: handbook}); err == nil {
		t.Fatal("expected error")
	}
	if _, err := h.store.GetDocument(ctx, "doc"); !errors.Is(err, models.ErrDocumentNotFound) {
		t.Errorf("document should be rolled back, got %v", err)
	}
	if h.vectors.Size() != 0 || h.stats.TotalDocs() != 0 {
		t.Errorf("indexes should be empty: vectors=%d stats=%d", h.vectors.Size(), h.stats.TotalDocs())
	}
}

func TestIndexDocument_rollbackKeepsPreviousVersion(t *testing.T) {
	h := newHarness(t, newStorage(t, t.TempDir()), embedding.NewMockEmbedder(testDims))
	ctx := context.Background()

	_, n, err := h.idx.IndexDocument(ctx, &models.DocumentInput{ID: "doc", Content: handbook})
	if err != nil {
		t.Fatal(err)
	}
	h.keyword.failOn = "Replacement"
	if _, _, err := h.idx.IndexDocument(ctx, &models.DocumentInput{ID: "doc", Content: "Replacement text."}); err == nil {
		t.Fatal("expected error")
	}

	doc, err := h.store.GetDocument(ctx, "doc")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc.Content, "Enterprise pricing") {
		t.Errorf("previous content should survive, got %q", doc.Content)
	}
	chunks, _ := h.store.GetChunksByDocumentID(ctx, "doc")
	if len(chunks) != n || h.vectors.Size() != n || h.stats.TotalDocs() != n {
		t.Errorf("stored=%d vectors=%d stats=%d, want %d each", len(chunks), h.vectors.Size(), h.stats.TotalDocs(), n)
	}
	if count, _ := h.keyword.DocCount(); int(count) != n {
		t.Errorf("keyword index holds %d chunks, want %d", count, n)
	}
	if h.stats.NeedsRebuild() {
		t.Error("rollback should leave statistics consistent")
	}
}

func TestRemoveDocument(t *testing.T) {
	h := newHarness(t, newStorage(t, t.TempDir()), embedding.NewMockEmbedder(testDims))
	ctx := context.Background()

	if err := h.idx.RemoveDocument(ctx, "missing"); !errors.Is(err, models.ErrDocumentNotFound) {
		t.Errorf("expected ErrDocumentNotFound, got %v", err)
	}
	if _, _, err := h.idx.IndexDocument(ctx, &models.DocumentInput{ID: "doc", Content: handbook}); err != nil {
		t.Fatal(err)
	}
	if err := h.idx.RemoveDocument(ctx, "doc"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.store.GetDocument(ctx, "doc"); !errors.Is(err, models.ErrDocumentNotFound) {
		t.Errorf("document should be deleted, got %v", err)
	}
	if h.vectors.Size() != 0 || h.stats.TotalDocs() != 0 || h.stats.VocabularySize() != 0 {
		t.Errorf("indexes should be empty: vectors=%d stats=%d vocab=%d",
			h.vectors.Size(), h.stats.TotalDocs(), h.stats.VocabularySize())
	}
	if count, _ := h.keyword.DocCount(); count != 0 {
		t.Errorf("keyword index holds %d chunks", count)
	}
}

func TestIndexDocuments_retriesAndIsolatesFailures(t *testing.T) {
	emb := &flakyEmbedder{MockEmbedder: embedding.NewMockEmbedder(testDims)}
	emb.remaining.Store(2)
	h := newHarness(t, newStorage(t, t.TempDir()), emb, WithRetry(3, time.Millisecond))

	res := h.idx.IndexDocuments(context.Background(), []*models.DocumentInput{
		{ID: "good", Content: "Overtime is paid at 1.5x."},
		{ID: "empty", Content: ""},
	})
	if len(res.Indexed) != 1 || res.Indexed[0].ID != "good" || res.Indexed[0].Chunks == 0 {
		t.Errorf("indexed = %+v", res.Indexed)
	}
	if len(res.Failed) != 1 || res.Failed[0].ID != "empty" || res.Failed[0].Error == "" {
		t.Errorf("failed = %+v", res.Failed)
	}
}

func TestIndexDocuments_givesUpAfterRetries(t *testing.T) {
	h := newHarness(t, newStorage(t, t.TempDir()), embedding.NewFailingEmbedder(testDims), WithRetry(1, time.Millisecond))

	res := h.idx.IndexDocuments(context.Background(), []*models.DocumentInput{{ID: "doc", Content: handbook}})
	if len(res.Failed) != 1 || len(res.Indexed) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if !strings.Contains(res.Failed[0].Error, models.ErrEmbeddingUnavailable.Error()) {
		t.Errorf("error = %q", res.Failed[0].Error)
	}
}

func TestLoad_restoresIndexesFromStorage(t *testing.T) {
	dir := t.TempDir()
	store := newStorage(t, dir)
	ctx := context.Background()

	first := newHarness(t, store, embedding.NewMockEmbedder(testDims))
	var total int
	for _, id := range []string{"a", "b", "c"} {
		_, n, err := first.idx.IndexDocument(ctx, &models.DocumentInput{ID: id, Content: handbook})
		if err != nil {
			t.Fatal(err)
		}
		total += n
	}
	if err := first.idx.FlushStatistics(ctx); err != nil {
		t.Fatal(err)
	}

	second := newHarness(t, store, embedding.NewMockEmbedder(testDims))
	if err := second.idx.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if second.vectors.Size() != total {
		t.Errorf("vectors = %d, want %d", second.vectors.Size(), total)
	}
	if count, _ := second.keyword.DocCount(); int(count) != total {
		t.Errorf("keyword = %d, want %d", count, total)
	}
	if second.stats.TotalDocs() != total || second.stats.NeedsRebuild() {
		t.Errorf("stats total=%d needsRebuild=%v", second.stats.TotalDocs(), second.stats.NeedsRebuild())
	}
	if second.stats.VocabularySize() != first.stats.VocabularySize() {
		t.Errorf("vocabulary = %d, want %d", second.stats.VocabularySize(), first.stats.VocabularySize())
	}
}

func TestLoad_rebuildsMissingStatistics(t *testing.T) {
	store := newStorage(t, t.TempDir())
	ctx := context.Background()

	first := newHarness(t, store, embedding.NewMockEmbedder(testDims))
	_, n, err := first.idx.IndexDocument(ctx, &models.DocumentInput{ID: "doc", Content: handbook})
	if err != nil {
		t.Fatal(err)
	}
	// never flushed

	second := newHarness(t, store, embedding.NewMockEmbedder(testDims))
	if err := second.idx.Load(ctx); err != nil {
		t.Fatal(err)
	}
	if second.stats.TotalDocs() != n {
		t.Errorf("stats total = %d, want %d", second.stats.TotalDocs(), n)
	}
	saved, err := store.LoadStatistics(ctx)
	if err != nil || saved == nil {
		t.Fatalf("rebuild should save statistics: %v %v", saved, err)
	}
}

func TestCheckIntegrity_repairsDrift(t *testing.T) {
	h := newHarness(t, newStorage(t, t.TempDir()), embedding.NewMockEmbedder(testDims))
	ctx := context.Background()

	_, n, err := h.idx.IndexDocument(ctx, &models.DocumentInput{ID: "doc", Content: handbook})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.idx.CheckIntegrity(ctx); err != nil {
		t.Fatal(err)
	}
	h.stats.AddChunk("ghost", []string{"phantom", "term"})
	if h.stats.TotalDocs() != n+1 {
		t.Fatal("drift not injected")
	}
	if err := h.idx.CheckIntegrity(ctx); err != nil {
		t.Fatal(err)
	}
	if h.stats.TotalDocs() != n || h.stats.NeedsRebuild() {
		t.Errorf("total=%d needsRebuild=%v after repair", h.stats.TotalDocs(), h.stats.NeedsRebuild())
	}
}

func TestRebuildStatistics(t *testing.T) {
	h := newHarness(t, newStorage(t, t.TempDir()), embedding.NewMockEmbedder(testDims))
	ctx := context.Background()

	_, n, err := h.idx.IndexDocument(ctx, &models.DocumentInput{ID: "doc", Content: handbook})
	if err != nil {
		t.Fatal(err)
	}
	h.stats.Rebuild(nil)
	if err := h.idx.RebuildStatistics(ctx); err != nil {
		t.Fatal(err)
	}
	if h.stats.TotalDocs() != n || h.stats.Dirty() {
		t.Errorf("total=%d dirty=%v", h.stats.TotalDocs(), h.stats.Dirty())
	}
}

func TestFlushStatistics(t *testing.T) {
	h := newHarness(t, newStorage(t, t.TempDir()), embedding.NewMockEmbedder(testDims))
	ctx := context.Background()

	if err := h.idx.FlushStatistics(ctx); err != nil {
		t.Fatal(err)
	}
	if saved, _ := h.store.LoadStatistics(ctx); saved != nil {
		t.Error("clean statistics should not be written")
	}
	if _, _, err := h.idx.IndexDocument(ctx, &models.DocumentInput{ID: "doc", Content: handbook}); err != nil {
		t.Fatal(err)
	}
	if !h.stats.Dirty() {
		t.Fatal("indexing should dirty the statistics")
	}
	if err := h.idx.FlushStatistics(ctx); err != nil {
		t.Fatal(err)
	}
	saved, err := h.store.LoadStatistics(ctx)
	if err != nil || saved == nil || saved.TotalDocs != h.stats.TotalDocs() {
		t.Errorf("saved = %+v, err = %v", saved, err)
	}
	if h.stats.Dirty() {
		t.Error("flush should clear the dirty flag")
	}
}

func mustAbs(path string) string {
	a, err := filepath.Abs(path)
	if err != nil {
		panic(err)
	}
	return a
}

func TestIndexFile_createAndUpdate(t *testing.T) {
	dir := t.TempDir()
	idx, store := testIndexerWithStorage(t, dir)
	ctx := context.Background()

	fPath := filepath.Join(dir, "doc.txt")
	if err := os.WriteFile(fPath, []byte("Hello world content."), 0600); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(ctx, fPath, []string{".txt", ".md"}); err != nil {
		t.Fatal(err)
	}
	docID := fileid.FileDocID(mustAbs(fPath))
	doc, err := store.GetDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "doc" || doc.Content != "Hello world content." {
		t.Errorf("unexpected doc: title=%q content=%q", doc.Title, doc.Content)
	}
	if doc.Extra["source_path"] != mustAbs(fPath) || doc.Source != mustAbs(fPath) {
		t.Errorf("source_path: got %v / %s", doc.Extra["source_path"], doc.Source)
	}

	if err := os.WriteFile(fPath, []byte("Updated content."), 0600); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(ctx, fPath, []string{".txt"}); err != nil {
		t.Fatal(err)
	}
	doc2, err := store.GetDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	if doc2.Content != "Updated content." {
		t.Errorf("after update: content=%q", doc2.Content)
	}
}

func TestIndexFile_skipsUnchanged(t *testing.T) {
	dir := t.TempDir()
	idx, store := testIndexerWithStorage(t, dir)
	ctx := context.Background()

	fPath := filepath.Join(dir, "policy.md")
	if err := os.WriteFile(fPath, []byte("Refunds are issued within 14 days."), 0600); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(ctx, fPath, nil); err != nil {
		t.Fatal(err)
	}
	docID := fileid.FileDocID(mustAbs(fPath))
	before, _ := store.GetChunksByDocumentID(ctx, docID)
	if err := idx.IndexFile(ctx, fPath, nil); err != nil {
		t.Fatal(err)
	}
	after, _ := store.GetChunksByDocumentID(ctx, docID)
	if len(before) == 0 || len(before) != len(after) || before[0].ID != after[0].ID {
		t.Error("unchanged file should not be re-chunked")
	}
}

func TestIndexFile_sidecarMetadata(t *testing.T) {
	dir := t.TempDir()
	idx, store := testIndexerWithStorage(t, dir)
	ctx := context.Background()

	fPath := filepath.Join(dir, "sso.md")
	if err := os.WriteFile(fPath, []byte("Configure SAML single sign-on in the admin console."), 0600); err != nil {
		t.Fatal(err)
	}
	sidecar := "title: SSO setup\ncategory: security\ntechnical_level: 8\nconfidential: true\ntopics: [security, integrations]\n"
	if err := os.WriteFile(fPath+SidecarSuffix, []byte(sidecar), 0600); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(ctx, fPath, nil); err != nil {
		t.Fatal(err)
	}
	docID := fileid.FileDocID(mustAbs(fPath))
	doc, err := store.GetDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "SSO setup" || doc.Category != "security" || doc.TechnicalLevel != 8 || !doc.Confidential {
		t.Errorf("sidecar not applied: %+v", doc)
	}
	chunks, _ := store.GetChunksByDocumentID(ctx, docID)
	for _, ch := range chunks {
		if !ch.Metadata.Confidential || len(ch.Metadata.Topics) != 2 {
			t.Errorf("chunk %s metadata = %+v", ch.ID, ch.Metadata)
		}
	}
}

func TestIndexFile_rejectsSidecar(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexerWithStorage(t, dir)
	fPath := filepath.Join(dir, "a.md"+SidecarSuffix)
	if err := os.WriteFile(fPath, []byte("category: x\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(context.Background(), fPath, nil); err == nil {
		t.Error("expected error for sidecar file")
	}
}

func TestIndexFile_extensionFiltered(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexerWithStorage(t, dir)
	ctx := context.Background()

	fPath := filepath.Join(dir, "script.sh")
	if err := os.WriteFile(fPath, []byte("#!/bin/bash"), 0600); err != nil {
		t.Fatal(err)
	}
	err := idx.IndexFile(ctx, fPath, []string{".txt", ".md"})
	if err == nil {
		t.Error("expected error for disallowed extension")
	}
}

func TestRemoveFile(t *testing.T) {
	dir := t.TempDir()
	idx, store := testIndexerWithStorage(t, dir)
	ctx := context.Background()

	fPath := filepath.Join(dir, "note.md")
	if err := os.WriteFile(fPath, []byte("Note content."), 0600); err != nil {
		t.Fatal(err)
	}
	if err := idx.IndexFile(ctx, fPath, nil); err != nil {
		t.Fatal(err)
	}
	docID := fileid.FileDocID(mustAbs(fPath))
	if _, err := store.GetDocument(ctx, docID); err != nil {
		t.Fatal(err)
	}
	if err := idx.RemoveFile(ctx, fPath); err != nil {
		t.Fatal(err)
	}
	if _, err := store.GetDocument(ctx, docID); err == nil {
		t.Error("document should be deleted")
	}
}

func TestIndexFile_notRegularFile(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexerWithStorage(t, dir)
	ctx := context.Background()

	err := idx.IndexFile(ctx, dir, []string{".txt"})
	if err == nil {
		t.Error("expected error for directory")
	}
}

func TestIndexFile_nonexistent(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexerWithStorage(t, dir)
	ctx := context.Background()

	err := idx.IndexFile(ctx, filepath.Join(dir, "missing.txt"), nil)
	if err == nil {
		t.Error("expected error for missing file")
	}
}

func TestIndexFile_excelWithExtractor(t *testing.T) {
	dir := t.TempDir()
	idx, store := testIndexerWithStorage(t, dir)

	fPath := filepath.Join(dir, "rates.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Excel searchable content")
	if err := f.SaveAs(fPath); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	ctx := context.Background()
	if err := idx.IndexFile(ctx, fPath, []string{".xlsx", ".txt"}); err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	docID := fileid.FileDocID(mustAbs(fPath))
	doc, err := store.GetDocument(ctx, docID)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "rates" || !strings.Contains(doc.Content, "Excel searchable content") {
		t.Errorf("unexpected doc: title=%q content=%q", doc.Title, doc.Content)
	}
}

func TestIndexDirectory(t *testing.T) {
	dir := t.TempDir()
	idx, _ := testIndexerWithStorage(t, t.TempDir())
	ctx := context.Background()

	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		filepath.Join(dir, "a.txt"):               "file a",
		filepath.Join(dir, "b.txt"):               "file b",
		filepath.Join(sub, "c.txt"):               "file c",
		filepath.Join(dir, "skip.xyz"):            "skip",
		filepath.Join(dir, "a.txt"+SidecarSuffix): "category: x\n",
		filepath.Join(dir, "empty.txt"):           "   ",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}

	n, err := idx.IndexDirectory(ctx, dir, []string{".txt", ".yaml"}, true)
	if n != 3 {
		t.Errorf("IndexDirectory: indexed %d files, want 3", n)
	}
	if !errors.Is(err, models.ErrInvalidDocument) {
		t.Errorf("the empty file should be reported, got %v", err)
	}

	n, _ = idx.IndexDirectory(ctx, dir, []string{".txt"}, false)
	if n != 2 {
		t.Errorf("non-recursive: indexed %d files, want 2", n)
	}
}
