package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/ranking"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
)

const testDims = 8

type mockInbox struct {
	dirs []string
}

func (m *mockInbox) Directories() []string {
	return append([]string(nil), m.dirs...)
}

func (m *mockInbox) AddDirectory(path string, _ bool) error {
	for _, d := range m.dirs {
		if d == path {
			return nil
		}
	}
	m.dirs = append(m.dirs, path)
	return nil
}

func (m *mockInbox) RemoveDirectory(path string) error {
	for i, d := range m.dirs {
		if d == path {
			m.dirs = append(m.dirs[:i], m.dirs[i+1:]...)
			return nil
		}
	}
	return nil
}

type fixture struct {
	srv     *Server
	handler http.Handler
	idx     *indexer.Indexer
	cfg     *config.Config
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Storage.DatabasePath = filepath.Join(dir, "kotae.db")
	cfg.Storage.KeywordIndexPath = ""
	cfg.Embedding.Dimensions = testDims
	cfg.Chunking.TargetSize = 200

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })
	embedder := embedding.NewMockEmbedder(testDims)
	vecIdx, err := vector.NewShardedIndex(testDims, cfg.Retrieval.ShardCapacity)
	if err != nil {
		t.Fatal(err)
	}
	kwIdx, err := keyword.NewBleveIndex("")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = kwIdx.Close() })
	stats := corpus.NewStore(corpus.WithRepository(store))

	idx := indexer.NewIndexer(store, embedder, vecIdx, kwIdx, stats, cfg, extract.NewExtractor())
	searcher := keyword.NewSearcher(kwIdx, vecIdx, stats,
		keyword.NewScorer(cfg.Retrieval.K1, cfg.Retrieval.B), cfg.Retrieval.CandidatePool)
	engine := search.NewEngine(embedder, vecIdx, searcher,
		ranking.NewRuleAnalyzer(&cfg.Ranking), ranking.NewBooster(&cfg.Ranking), &cfg.Retrieval)

	srv := NewServer(engine, idx, cfg, opts...)
	return &fixture{srv: srv, handler: srv.Router(), idx: idx, cfg: cfg}
}

func (f *fixture) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func (f *fixture) index(t *testing.T, in *models.DocumentInput) string {
	t.Helper()
	id, _, err := f.idx.IndexDocument(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHandleHealth(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestHandleSearch(t *testing.T) {
	f := newFixture(t)
	f.index(t, &models.DocumentInput{ID: "pricing", Title: "Pricing", Content: "Plans start at $50 per month.", Category: "billing"})
	f.index(t, &models.DocumentInput{ID: "shifts", Title: "Shifts", Content: "Managers publish shifts weekly.", Category: "product"})

	w := f.do(t, http.MethodPost, "/api/v1/search", map[string]any{"query": "pricing plans", "limit": 3})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	decode(t, w, &resp)
	if len(resp.Results) == 0 {
		t.Fatal("expected results")
	}
	if len(resp.Results) > 3 {
		t.Errorf("results: got %d, want at most 3", len(resp.Results))
	}
	if resp.Analysis == nil {
		t.Error("expected query analysis in response")
	}
}

func TestHandleSearchQuery(t *testing.T) {
	f := newFixture(t)
	f.index(t, &models.DocumentInput{ID: "pricing", Title: "Pricing", Content: "Plans start at $50 per month.", Category: "billing"})
	f.index(t, &models.DocumentInput{ID: "shifts", Title: "Shifts", Content: "Managers publish shifts weekly.", Category: "product"})

	w := f.do(t, http.MethodGet, "/api/v1/search?q=plans&ratio=1&category=product", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var resp models.SearchResponse
	decode(t, w, &resp)
	for _, r := range resp.Results {
		if r.Chunk.DocumentID != "shifts" {
			t.Errorf("category filter let %s through", r.Chunk.DocumentID)
		}
	}
	if resp.HybridRatio != 1 {
		t.Errorf("hybrid_ratio: got %v, want 1", resp.HybridRatio)
	}
}

func TestHandleSearch_BadRequests(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name   string
		method string
		target string
		body   any
	}{
		{"empty query", http.MethodPost, "/api/v1/search", map[string]any{"query": " "}},
		{"ratio out of range", http.MethodPost, "/api/v1/search", map[string]any{"query": "x", "hybrid_ratio": 2}},
		{"bad limit", http.MethodGet, "/api/v1/search?q=x&limit=ten", nil},
		{"bad ratio", http.MethodGet, "/api/v1/search?q=x&ratio=half", nil},
		{"missing q", http.MethodGet, "/api/v1/search", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, tt.method, tt.target, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status: got %d, want 400 (body %s)", w.Code, w.Body.String())
			}
		})
	}
}

func TestHandleIndexDocument(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodPost, "/api/v1/documents", models.DocumentInput{Title: "Guide", Content: "Reset your password from the login page."})
	if w.Code != http.StatusCreated {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var res models.IndexResult
	decode(t, w, &res)
	if res.ID == "" || res.Chunks < 1 {
		t.Errorf("got %+v, want an id and at least one chunk", res)
	}

	w = f.do(t, http.MethodPost, "/api/v1/documents", models.DocumentInput{Title: "Empty"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid document status: got %d, want 400", w.Code)
	}
}

func TestHandleIndexBatch(t *testing.T) {
	f := newFixture(t)
	body := map[string]any{"documents": []models.DocumentInput{
		{ID: "ok", Title: "Ok", Content: "Payroll runs every second Friday."},
		{ID: "bad", Title: "Bad"},
	}}
	w := f.do(t, http.MethodPost, "/api/v1/documents/batch", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var res models.BatchResult
	decode(t, w, &res)
	if len(res.Indexed) != 1 || res.Indexed[0].ID != "ok" {
		t.Errorf("indexed: got %+v", res.Indexed)
	}
	if len(res.Failed) != 1 || res.Failed[0].ID != "bad" || res.Failed[0].Error == "" {
		t.Errorf("failed: got %+v", res.Failed)
	}

	w = f.do(t, http.MethodPost, "/api/v1/documents/batch", map[string]any{"documents": []any{}})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty batch status: got %d, want 400", w.Code)
	}
}

func TestHandleGetAndDeleteDocument(t *testing.T) {
	f := newFixture(t)
	f.index(t, &models.DocumentInput{ID: "d1", Title: "T", Content: "hello world"})

	w := f.do(t, http.MethodGet, "/api/v1/documents/d1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status: got %d", w.Code)
	}
	var doc models.Document
	decode(t, w, &doc)
	if doc.ID != "d1" || doc.Title != "T" {
		t.Errorf("document: got %+v", doc)
	}

	if w := f.do(t, http.MethodDelete, "/api/v1/documents/d1", nil); w.Code != http.StatusOK {
		t.Errorf("delete status: got %d", w.Code)
	}
	if w := f.do(t, http.MethodGet, "/api/v1/documents/d1", nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %d, want 404", w.Code)
	}
	if w := f.do(t, http.MethodDelete, "/api/v1/documents/d1", nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want 404", w.Code)
	}
}

func TestHandleStatistics(t *testing.T) {
	f := newFixture(t)
	f.index(t, &models.DocumentInput{ID: "d1", Title: "T", Content: "hello world"})

	w := f.do(t, http.MethodGet, "/api/v1/statistics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var before models.StatisticsSummary
	decode(t, w, &before)
	if before.TotalDocs < 1 || before.VocabularySize < 1 {
		t.Errorf("statistics: got %+v", before)
	}

	w = f.do(t, http.MethodPost, "/api/v1/statistics/rebuild", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("rebuild status: got %d", w.Code)
	}
	var after models.StatisticsSummary
	decode(t, w, &after)
	if after != before {
		t.Errorf("rebuild changed consistent statistics: %+v -> %+v", before, after)
	}
}

func TestHandleStatus(t *testing.T) {
	f := newFixture(t)
	f.index(t, &models.DocumentInput{ID: "d1", Title: "T", Content: "hello world"})

	w := f.do(t, http.MethodGet, "/api/v1/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out struct {
		Index models.IndexStatus `json:"index"`
	}
	decode(t, w, &out)
	st := out.Index
	if st.Documents != 1 {
		t.Errorf("documents: got %d, want 1", st.Documents)
	}
	if st.Chunks < 1 || int64(st.VectorSize) != st.Chunks || int64(st.KeywordSize) != st.Chunks {
		t.Errorf("sizes: chunks=%d vector=%d keyword=%d", st.Chunks, st.VectorSize, st.KeywordSize)
	}
	if st.OutOfSync || st.KeywordDegraded {
		t.Errorf("unexpected degraded flags: %+v", st)
	}
	if st.DiskUsageBytes == nil || *st.DiskUsageBytes < 1 {
		t.Errorf("disk_usage_bytes: got %v", st.DiskUsageBytes)
	}
}

func TestHandleInbox_NotEnabled(t *testing.T) {
	f := newFixture(t)
	w := f.do(t, http.MethodGet, "/api/v1/inbox/directories", nil)
	if w.Code != http.StatusNotImplemented {
		t.Errorf("status: got %d, want 501", w.Code)
	}
}

func TestHandleInbox_AddListRemove(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	inbox := &mockInbox{}
	f := newFixture(t, WithInbox(inbox, cfgPath))
	approved := t.TempDir()

	w := f.do(t, http.MethodPost, "/api/v1/inbox/directories", map[string]any{"path": approved, "sync": false})
	if w.Code != http.StatusCreated {
		t.Fatalf("add status: got %d, body: %s", w.Code, w.Body.String())
	}
	w = f.do(t, http.MethodGet, "/api/v1/inbox/directories", nil)
	var out struct {
		Directories []string `json:"directories"`
	}
	decode(t, w, &out)
	if len(out.Directories) != 1 || out.Directories[0] != approved {
		t.Errorf("directories: got %v", out.Directories)
	}
	saved, err := config.Load(cfgPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(saved.Inbox.Directories) != 1 {
		t.Errorf("persisted directories: got %v", saved.Inbox.Directories)
	}

	w = f.do(t, http.MethodDelete, "/api/v1/inbox/directories?path="+approved, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("remove status: got %d", w.Code)
	}
	if len(inbox.dirs) != 0 {
		t.Errorf("after remove: %v", inbox.dirs)
	}
}

func TestHandleInbox_AddRejectsBadPaths(t *testing.T) {
	f := newFixture(t, WithInbox(&mockInbox{}, ""))
	file := filepath.Join(t.TempDir(), "note.txt")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		path string
		want int
	}{
		{"", http.StatusBadRequest},
		{filepath.Join(t.TempDir(), "missing"), http.StatusNotFound},
		{file, http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := f.do(t, http.MethodPost, "/api/v1/inbox/directories", map[string]any{"path": tt.path})
		if w.Code != tt.want {
			t.Errorf("path %q: got %d, want %d", tt.path, w.Code, tt.want)
		}
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: empty", models.ErrInvalidQuery), http.StatusBadRequest},
		{models.ErrInvalidDocument, http.StatusBadRequest},
		{models.ErrDocumentNotFound, http.StatusNotFound},
		{fmt.Errorf("embed: %w", models.ErrDimensionMismatch), http.StatusInternalServerError},
		{fmt.Errorf("%w: vector: %w", models.ErrNoSignal, models.ErrEmbeddingUnavailable), http.StatusServiceUnavailable},
		{models.ErrEmbeddingUnavailable, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
