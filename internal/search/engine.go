// Package search provides the hybrid retrieval engine: vector and keyword
// branches fused by a per-query ratio, then filtered and boosted.
package search

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/ranking"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// KeywordSearcher returns BM25-ranked chunks for query tokens.
type KeywordSearcher interface {
	Search(ctx context.Context, tokens []string, n int) ([]*keyword.KeywordResult, error)
}

// Engine runs hybrid (vector + keyword) search.
type Engine struct {
	embedder     embedding.Embedder
	vectorIndex  vector.VectorIndex
	keyword      KeywordSearcher
	analyzer     ranking.Analyzer
	booster      *ranking.Booster
	config       *config.RetrievalConfig
	embedTimeout time.Duration
	logger       *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithEmbedTimeout bounds the query embedding call. Zero means no bound beyond
// the request context.
func WithEmbedTimeout(d time.Duration) Option {
	return func(e *Engine) { e.embedTimeout = d }
}

// NewEngine creates a search engine with the given dependencies.
func NewEngine(
	embedder embedding.Embedder,
	vectorIndex vector.VectorIndex,
	keywordSearcher KeywordSearcher,
	analyzer ranking.Analyzer,
	booster *ranking.Booster,
	cfg *config.RetrievalConfig,
	opts ...Option,
) *Engine {
	e := &Engine{
		embedder:    embedder,
		vectorIndex: vectorIndex,
		keyword:     keywordSearcher,
		analyzer:    analyzer,
		booster:     booster,
		config:      cfg,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// branches holds what each retrieval branch produced. A non-nil cause means
// the branch was unavailable.
type branches struct {
	vector       []*vector.VectorResult
	vectorCause  error
	keyword      []*keyword.KeywordResult
	keywordCause error
}

// Search runs hybrid search and returns ranked chunks.
func (e *Engine) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	startTime := time.Now()
	ratio, err := ProcessRequest(req, e.config)
	if err != nil {
		return nil, err
	}

	analysis, err := e.analyzer.Analyze(ctx, req.Query)
	if err != nil {
		e.logger.Warn("query analysis failed, ranking without boosts", zap.Error(err))
		analysis = nil
	}
	tokens := utils.Tokenize(req.Query)

	b, err := e.retrieve(ctx, req.Query, tokens, candidateDepth(req, e.config))
	if err != nil {
		return nil, err
	}

	response := &models.SearchResponse{
		Results:  []*models.SearchResult{},
		Query:    req.Query,
		Analysis: analysis,
	}
	switch {
	case b.vectorCause != nil && b.keywordCause != nil:
		if e.vectorIndex.Size() == 0 {
			response.HybridRatio = ratio
			response.QueryTime = time.Since(startTime).Milliseconds()
			return response, nil
		}
		return nil, fmt.Errorf("%w: vector: %w; keyword: %w", models.ErrNoSignal, b.vectorCause, b.keywordCause)
	case b.vectorCause != nil:
		e.logger.Warn("vector branch unavailable, falling back to keyword only", zap.Error(b.vectorCause))
		ratio = 1
		response.Degraded = models.DegradedKeywordOnly
	case b.keywordCause != nil:
		e.logger.Warn("keyword branch unavailable, falling back to vector only", zap.Error(b.keywordCause))
		ratio = 0
		response.Degraded = models.DegradedVectorOnly
	}
	response.HybridRatio = ratio

	results := make([]*models.SearchResult, 0, len(b.vector)+len(b.keyword))
	for _, c := range Merge(b.vector, b.keyword) {
		if !req.Filter.Matches(c.Chunk.DocumentID, &c.Chunk.Metadata) {
			continue
		}
		score, boosts := e.booster.Apply(analysis, &c.Chunk.Metadata, Fuse(c.VectorNorm, c.KeywordNorm, ratio))
		results = append(results, &models.SearchResult{
			Chunk:        c.Chunk,
			Score:        score,
			VectorScore:  c.VectorScore,
			KeywordScore: c.KeywordScore,
			Boosts:       boosts,
		})
	}
	SortResults(results)
	response.Total = len(results)
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	response.Results = results
	response.QueryTime = time.Since(startTime).Milliseconds()

	e.logger.Debug("search completed",
		zap.String("query", req.Query),
		zap.Int("results", len(results)),
		zap.Float64("hybrid_ratio", ratio),
		zap.String("degraded", string(response.Degraded)),
		zap.Int64("query_time_ms", response.QueryTime))
	return response, nil
}

// retrieve runs both branches concurrently. Only fatal errors and caller
// cancellation are returned; an unavailable branch is recorded in branches.
func (e *Engine) retrieve(ctx context.Context, query string, tokens []string, depth int) (*branches, error) {
	b := &branches{}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		results, err := e.vectorBranch(gctx, query, depth)
		switch {
		case errors.Is(err, models.ErrEmbeddingUnavailable):
			b.vectorCause = err
		case err != nil:
			return err
		default:
			b.vector = results
		}
		return nil
	})

	g.Go(func() error {
		results, err := e.keyword.Search(gctx, tokens, depth)
		switch {
		case err == nil:
			b.keyword = results
		case errors.Is(err, models.ErrDimensionMismatch):
			return err
		case ctx.Err() != nil:
			return ctx.Err()
		case errors.Is(err, models.ErrNoStatistics):
			b.keywordCause = err
		default:
			b.keywordCause = fmt.Errorf("keyword search failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return b, nil
}

// vectorBranch embeds the query and searches the vector index. An embedding
// failure is returned wrapped in ErrEmbeddingUnavailable; anything else is fatal.
func (e *Engine) vectorBranch(ctx context.Context, query string, depth int) ([]*vector.VectorResult, error) {
	embedCtx := ctx
	if e.embedTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, e.embedTimeout)
		defer cancel()
	}
	queryEmbedding, err := e.embedder.Embed(embedCtx, query)
	if err != nil {
		if errors.Is(err, models.ErrDimensionMismatch) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
	}
	results, err := e.vectorIndex.Search(ctx, queryEmbedding, depth)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}
	return results, nil
}
