package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// batchConcurrency bounds how many documents of a batch are chunked and
// embedded at once. Commits are still serialized.
const batchConcurrency = 4

// Indexer keeps storage, the vector index, the keyword index and the corpus
// statistics in step. Storage is the source of truth; Load rebuilds the
// in-memory side from it.
type Indexer struct {
	storage      storage.Storage
	embedder     embedding.Embedder
	vectorIndex  vector.VectorIndex
	keywordIndex keyword.CandidateIndex
	stats        *corpus.Store
	chunker      *Chunker
	extractor    *extract.Extractor

	embedTimeout time.Duration
	maxRetries   int
	retryBackoff time.Duration
	pageSize     int

	analyzer        SectionAnalyzer
	analyzerTimeout time.Duration
	summaryMaxChars int

	// mu serializes every mutation of the indexes and the statistics.
	mu     sync.Mutex
	now    func() time.Time
	logger *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for ingestion events.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithSectionAnalyzer replaces the heading-based section analyzer.
func WithSectionAnalyzer(a SectionAnalyzer) IndexerOption {
	return func(idx *Indexer) { idx.analyzer = a }
}

// WithRetry sets how often a batch retries a document whose embedding failed,
// and the initial backoff, which doubles per attempt.
func WithRetry(maxRetries int, backoff time.Duration) IndexerOption {
	return func(idx *Indexer) {
		idx.maxRetries = maxRetries
		idx.retryBackoff = backoff
	}
}

// WithClock overrides the time source for document timestamps.
func WithClock(now func() time.Time) IndexerOption {
	return func(idx *Indexer) { idx.now = now }
}

// NewIndexer creates an indexer with the given dependencies.
// extractor may be nil; when nil, IndexFile treats all files as plain text.
func NewIndexer(
	store storage.Storage,
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	keywordIndex keyword.CandidateIndex,
	stats *corpus.Store,
	cfg *config.Config,
	extractor *extract.Extractor,
	opts ...IndexerOption,
) *Indexer {
	idx := &Indexer{
		storage:         store,
		embedder:        embedder,
		vectorIndex:     vectorIndex,
		keywordIndex:    keywordIndex,
		stats:           stats,
		extractor:       extractor,
		embedTimeout:    cfg.Embedding.Timeout,
		maxRetries:      cfg.Ingest.MaxRetries,
		retryBackoff:    cfg.Ingest.RetryBackoff,
		pageSize:        cfg.Retrieval.ShardCapacity,
		analyzer:        HeadingAnalyzer{},
		analyzerTimeout: cfg.Chunking.AnalyzerTimeout,
		summaryMaxChars: cfg.Chunking.SummaryMaxChars,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	if idx.pageSize <= 0 {
		idx.pageSize = vector.DefaultShardCapacity
	}
	idx.chunker = NewChunker(cfg.Chunking.TargetSize, cfg.Chunking.OverlapCeiling,
		WithAnalyzer(idx.analyzer, idx.analyzerTimeout),
		WithSummaryMaxChars(idx.summaryMaxChars),
		WithChunkerLogger(idx.logger),
	)
	return idx
}

// IndexDocument chunks, embeds and indexes a document, replacing any previous
// version with the same id, and returns the number of chunks. Nothing is
// visible unless every step succeeds.
func (idx *Indexer) IndexDocument(ctx context.Context, input *models.DocumentInput) (string, int, error) {
	doc, chunks, err := idx.prepare(ctx, input)
	if err != nil {
		return "", 0, err
	}
	if err := idx.commit(ctx, doc, chunks); err != nil {
		return "", 0, err
	}
	idx.logger.Debug("document indexed",
		zap.String("doc_id", doc.ID), zap.Int("chunks", len(chunks)))
	return doc.ID, len(chunks), nil
}

// prepare validates, chunks and embeds without touching any index.
func (idx *Indexer) prepare(ctx context.Context, input *models.DocumentInput) (*models.Document, []*models.Chunk, error) {
	if input == nil {
		return nil, nil, fmt.Errorf("%w: nil input", models.ErrInvalidDocument)
	}
	if err := input.Validate(); err != nil {
		return nil, nil, err
	}
	in := *input
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	in.Content = Preprocess(in.Content)
	if in.Content == "" {
		return nil, nil, fmt.Errorf("%w: content is empty after preprocessing", models.ErrInvalidDocument)
	}
	doc := in.ToDocument(idx.now().UTC())

	chunks := idx.chunker.Chunk(ctx, doc)
	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("%w: document produced no chunks", models.ErrInvalidDocument)
	}
	if err := idx.embed(ctx, chunks); err != nil {
		return nil, nil, err
	}
	return doc, chunks, nil
}

func (idx *Indexer) embed(ctx context.Context, chunks []*models.Chunk) error {
	if idx.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, idx.embedTimeout)
		defer cancel()
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if errors.Is(err, models.ErrDimensionMismatch) {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks",
			models.ErrEmbeddingUnavailable, len(embeddings), len(chunks))
	}
	dims := idx.vectorIndex.Dimensions()
	for i, ch := range chunks {
		if len(embeddings[i]) != dims {
			return fmt.Errorf("%w: embedding has %d dimensions, index has %d",
				models.ErrDimensionMismatch, len(embeddings[i]), dims)
		}
		ch.Embedding = embeddings[i]
	}
	return nil
}

// commit writes doc and chunks to storage and every index. A failure undoes
// what was applied, newest first.
func (idx *Indexer) commit(ctx context.Context, doc *models.Document, chunks []*models.Chunk) (err error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	var old *models.Document
	var oldChunks []*models.Chunk
	switch existing, getErr := idx.storage.GetDocument(ctx, doc.ID); {
	case getErr == nil:
		old = existing
		doc.CreatedAt = existing.CreatedAt
		if oldChunks, err = idx.storage.GetChunksByDocumentID(ctx, doc.ID); err != nil {
			return fmt.Errorf("failed to load previous chunks: %w", err)
		}
	case !errors.Is(getErr, models.ErrDocumentNotFound):
		return fmt.Errorf("failed to look up document: %w", getErr)
	}

	rb := &rollback{logger: idx.logger}
	defer func() {
		if err != nil {
			rb.run(ctx)
		}
	}()

	if err := idx.storage.SaveDocument(ctx, doc, chunks); err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	rb.push("storage", func(ctx context.Context) error {
		if old != nil {
			return idx.storage.SaveDocument(ctx, old, oldChunks)
		}
		return idx.storage.DeleteDocument(ctx, doc.ID)
	})

	for _, ch := range oldChunks {
		if err := idx.unindexChunk(ctx, rb, ch); err != nil {
			return err
		}
	}

	for _, ch := range chunks {
		if err := idx.vectorIndex.Add(ctx, ch); err != nil {
			return fmt.Errorf("failed to index vector: %w", err)
		}
		rb.push("vector", func(ctx context.Context) error { return idx.vectorIndex.Remove(ctx, ch.ID) })
	}
	for _, ch := range chunks {
		if err := idx.keywordIndex.Index(ctx, ch); err != nil {
			return fmt.Errorf("failed to index keywords: %w", err)
		}
		rb.push("keyword", func(ctx context.Context) error { return idx.keywordIndex.Delete(ctx, ch.ID) })
	}
	for _, ch := range chunks {
		tokens := utils.Tokenize(ch.Text)
		idx.stats.AddChunk(ch.ID, tokens)
		rb.push("statistics", func(context.Context) error {
			idx.stats.RemoveChunk(ch.ID, tokens)
			return nil
		})
	}
	return nil
}

// unindexChunk removes one chunk from the in-memory side and records how to
// put it back.
func (idx *Indexer) unindexChunk(ctx context.Context, rb *rollback, ch *models.Chunk) error {
	if err := idx.keywordIndex.Delete(ctx, ch.ID); err != nil {
		return fmt.Errorf("failed to delete from keyword index: %w", err)
	}
	rb.push("keyword", func(ctx context.Context) error { return idx.keywordIndex.Index(ctx, ch) })

	if err := idx.vectorIndex.Remove(ctx, ch.ID); err != nil {
		return fmt.Errorf("failed to delete from vector index: %w", err)
	}
	rb.push("vector", func(ctx context.Context) error { return idx.vectorIndex.Add(ctx, ch) })

	tokens := utils.Tokenize(ch.Text)
	idx.stats.RemoveChunk(ch.ID, tokens)
	rb.push("statistics", func(context.Context) error {
		idx.stats.AddChunk(ch.ID, tokens)
		return nil
	})
	return nil
}

// RemoveDocument deletes a document from storage and every index.
func (idx *Indexer) RemoveDocument(ctx context.Context, id string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	chunks, err := idx.storage.GetChunksByDocumentID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	if err := idx.storage.DeleteDocument(ctx, id); err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}
	var errs []error
	for _, ch := range chunks {
		if err := idx.keywordIndex.Delete(ctx, ch.ID); err != nil {
			errs = append(errs, fmt.Errorf("keyword index: %w", err))
		}
		if err := idx.vectorIndex.Remove(ctx, ch.ID); err != nil {
			errs = append(errs, fmt.Errorf("vector index: %w", err))
		}
		idx.stats.RemoveChunk(ch.ID, utils.Tokenize(ch.Text))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("document %s deleted but indexes disagree: %w", id, err)
	}
	idx.logger.Debug("document removed", zap.String("doc_id", id), zap.Int("chunks", len(chunks)))
	return nil
}

// GetDocument returns a stored document.
func (idx *Indexer) GetDocument(ctx context.Context, id string) (*models.Document, error) {
	return idx.storage.GetDocument(ctx, id)
}

// IndexDocuments indexes a batch. A failed document never aborts the batch;
// embedding failures are retried with exponential backoff.
func (idx *Indexer) IndexDocuments(ctx context.Context, inputs []*models.DocumentInput) *models.BatchResult {
	outcomes := make([]models.IndexResult, len(inputs))
	failed := make([]bool, len(inputs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)
	for i, in := range inputs {
		g.Go(func() error {
			id, n, err := idx.indexWithRetry(gctx, in)
			outcomes[i] = models.IndexResult{ID: id, Chunks: n}
			if err != nil {
				failed[i] = true
				outcomes[i].Error = err.Error()
				if in != nil && outcomes[i].ID == "" {
					outcomes[i].ID = in.ID
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	res := &models.BatchResult{Indexed: []models.IndexResult{}}
	for i, o := range outcomes {
		if failed[i] {
			res.Failed = append(res.Failed, o)
		} else {
			res.Indexed = append(res.Indexed, o)
		}
	}
	idx.logger.Debug("batch indexed",
		zap.Int("indexed", len(res.Indexed)), zap.Int("failed", len(res.Failed)))
	return res
}

func (idx *Indexer) indexWithRetry(ctx context.Context, in *models.DocumentInput) (string, int, error) {
	backoff := idx.retryBackoff
	for attempt := 0; ; attempt++ {
		id, n, err := idx.IndexDocument(ctx, in)
		if err == nil || !errors.Is(err, models.ErrEmbeddingUnavailable) || attempt >= idx.maxRetries {
			return id, n, err
		}
		idx.logger.Warn("embedding failed, retrying document",
			zap.Int("attempt", attempt+1), zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-ctx.Done():
			return "", 0, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

// scanChunks pages through every stored chunk.
func (idx *Indexer) scanChunks(ctx context.Context, fn func([]*models.Chunk) error) error {
	after := ""
	for {
		page, err := idx.storage.ListChunks(ctx, after, idx.pageSize)
		if err != nil {
			return fmt.Errorf("failed to list chunks: %w", err)
		}
		if len(page) == 0 {
			return nil
		}
		if err := fn(page); err != nil {
			return err
		}
		if len(page) < idx.pageSize {
			return nil
		}
		after = page[len(page)-1].ID
	}
}

func (idx *Indexer) statisticsEntries(ctx context.Context) ([]corpus.Entry, error) {
	var entries []corpus.Entry
	err := idx.scanChunks(ctx, func(page []*models.Chunk) error {
		for _, ch := range page {
			entries = append(entries, corpus.Entry{ID: ch.ID, Tokens: utils.Tokenize(ch.Text)})
		}
		return nil
	})
	return entries, err
}

// Load repopulates the vector and keyword indexes from storage and restores
// the corpus statistics, rebuilding them when none were saved or they do not
// match the stored chunks.
func (idx *Indexer) Load(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	start := time.Now()
	var ids []string
	err := idx.scanChunks(ctx, func(page []*models.Chunk) error {
		for _, ch := range page {
			if err := idx.vectorIndex.Add(ctx, ch); err != nil {
				return fmt.Errorf("failed to load vector for %s: %w", ch.ID, err)
			}
			if err := idx.keywordIndex.Index(ctx, ch); err != nil {
				return fmt.Errorf("failed to load keywords for %s: %w", ch.ID, err)
			}
			ids = append(ids, ch.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	restored, err := idx.stats.Load(ctx, ids)
	if err != nil {
		return err
	}
	if !restored || idx.stats.NeedsRebuild() {
		if restored {
			idx.logger.Warn("persisted corpus statistics are stale, rebuilding")
		}
		if err := idx.rebuildLocked(ctx); err != nil {
			return err
		}
	}
	idx.logger.Info("indexes loaded",
		zap.Int("chunks", len(ids)),
		zap.Int("vocabulary", idx.stats.VocabularySize()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// RebuildStatistics recounts the corpus statistics from storage and saves them.
func (idx *Indexer) RebuildStatistics(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.rebuildLocked(ctx)
}

func (idx *Indexer) rebuildLocked(ctx context.Context) error {
	entries, err := idx.statisticsEntries(ctx)
	if err != nil {
		return err
	}
	idx.stats.Rebuild(entries)
	if err := idx.stats.Save(ctx); err != nil {
		return err
	}
	idx.logger.Debug("corpus statistics rebuilt", zap.Int("chunks", len(entries)))
	return nil
}

// CheckIntegrity recounts the statistics from storage and rebuilds them when
// they have drifted.
func (idx *Indexer) CheckIntegrity(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	entries, err := idx.statisticsEntries(ctx)
	if err != nil {
		return err
	}
	verr := idx.stats.Verify(entries)
	if verr == nil && !idx.stats.NeedsRebuild() {
		return nil
	}
	idx.logger.Warn("corpus statistics drifted, rebuilding", zap.Error(verr))
	idx.stats.Rebuild(entries)
	return idx.stats.Save(ctx)
}

// FlushStatistics persists the statistics if they changed since the last save.
func (idx *Indexer) FlushStatistics(ctx context.Context) error {
	if !idx.stats.Dirty() {
		return nil
	}
	return idx.stats.Save(ctx)
}

// Statistics summarizes the corpus statistics.
func (idx *Indexer) Statistics() models.StatisticsSummary {
	st := idx.stats.Get()
	return models.StatisticsSummary{
		TotalDocs:      st.TotalDocs,
		TotalTerms:     st.TotalTerms,
		VocabularySize: len(st.DocumentFrequency),
		NeedsRebuild:   idx.stats.NeedsRebuild(),
	}
}

// Status reports index sizes against storage.
func (idx *Indexer) Status(ctx context.Context) (*models.IndexStatus, error) {
	docs, err := idx.storage.CountDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	chunks, err := idx.storage.CountChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	kw, err := idx.keywordIndex.DocCount()
	if err != nil {
		return nil, fmt.Errorf("keyword index count: %w", err)
	}
	st := &models.IndexStatus{
		Documents:   docs,
		Chunks:      chunks,
		VectorSize:  idx.vectorIndex.Size(),
		KeywordSize: kw,
		Statistics:  idx.Statistics(),
	}
	st.KeywordDegraded = st.Statistics.TotalDocs == 0 && chunks > 0
	st.OutOfSync = int64(st.VectorSize) != chunks || int64(kw) != chunks ||
		int64(st.Statistics.TotalDocs) != chunks
	return st, nil
}

type undoStep struct {
	what string
	fn   func(context.Context) error
}

// rollback collects compensating actions and runs them newest first.
type rollback struct {
	steps  []undoStep
	logger *zap.Logger
}

func (r *rollback) push(what string, fn func(context.Context) error) {
	r.steps = append(r.steps, undoStep{what: what, fn: fn})
}

func (r *rollback) run(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	for i := len(r.steps) - 1; i >= 0; i-- {
		if err := r.steps[i].fn(ctx); err != nil {
			r.logger.Error("rollback step failed", zap.String("step", r.steps[i].what), zap.Error(err))
		}
	}
}
