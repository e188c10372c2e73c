package main

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/corpus"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/keyword"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/ranking"
	"github.com/hyperjump/kotae/internal/search"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/pkg/utils"
)

// Components holds initialized services.
type Components struct {
	Storage      storage.Storage
	Embedder     embedding.Embedder
	VectorIndex  *vector.ShardedIndex
	KeywordIndex *keyword.BleveIndex
	Stats        *corpus.Store
	Engine       *search.Engine
	Indexer      *indexer.Indexer
}

// Close releases every component that holds a resource, in reverse order of
// creation.
func (c *Components) Close() {
	if c.KeywordIndex != nil {
		_ = c.KeywordIndex.Close()
	}
	if c.VectorIndex != nil {
		_ = c.VectorIndex.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func openStorage(ctx context.Context, cfg *config.StorageConfig) (storage.Storage, error) {
	if cfg.Driver == config.DriverPostgres {
		s, err := storage.NewPostgresStorage(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	s, err := storage.NewSQLiteStorage(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// newAnalyzer builds the query analyzer chain: rules, optionally refined by a
// chat model, behind a TTL cache.
func newAnalyzer(cfg *config.Config, logger *zap.Logger) ranking.Analyzer {
	var analyzer ranking.Analyzer = ranking.NewRuleAnalyzer(&cfg.Ranking)
	if m := cfg.Analysis.Model; m.Enabled {
		client := llm.NewOllamaClient(m.BaseURL, m.Model, m.Timeout)
		topics := slices.Sorted(maps.Keys(cfg.Ranking.Topics))
		analyzer = ranking.NewModelAnalyzer(&cfg.Ranking, analyzer, llm.NewQueryClassifier(client, topics),
			ranking.WithClassifierTimeout(m.Timeout),
			ranking.WithAnalyzerLogger(logger),
		)
		logger.Info("model query analysis enabled", zap.String("model", m.Model), zap.String("base_url", m.BaseURL))
	}
	return ranking.NewCachingAnalyzer(analyzer, cfg.Ranking.AnalysisCacheTTL, cfg.Ranking.AnalysisCacheSize)
}

// initializeComponents opens storage, builds the indexes and repopulates them
// from storage.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (_ *Components, err error) {
	c := &Components{}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if c.Storage, err = openStorage(ctx, &cfg.Storage); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if c.Embedder, err = embedding.New(cfg.Embedding.Options(), logger); err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	if c.VectorIndex, err = vector.NewShardedIndex(cfg.Embedding.Dimensions, cfg.Retrieval.ShardCapacity); err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if c.KeywordIndex, err = keyword.NewBleveIndex(cfg.Storage.KeywordIndexPath); err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}
	c.Stats = corpus.NewStore(corpus.WithRepository(c.Storage), corpus.WithLogger(logger))

	c.Indexer = indexer.NewIndexer(c.Storage, c.Embedder, c.VectorIndex, c.KeywordIndex, c.Stats, cfg,
		extract.NewExtractor(),
		indexer.WithLogger(logger),
		indexer.WithRetry(cfg.Ingest.MaxRetries, cfg.Ingest.RetryBackoff),
	)
	if err = c.Indexer.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load indexes: %w", err)
	}

	searcher := keyword.NewSearcher(c.KeywordIndex, c.VectorIndex, c.Stats,
		keyword.NewScorer(cfg.Retrieval.K1, cfg.Retrieval.B), cfg.Retrieval.CandidatePool)
	c.Engine = search.NewEngine(c.Embedder, c.VectorIndex, searcher,
		newAnalyzer(cfg, logger), ranking.NewBooster(&cfg.Ranking), &cfg.Retrieval,
		search.WithLogger(logger),
		search.WithEmbedTimeout(cfg.Embedding.Timeout),
	)

	logger.Info("components initialized",
		zap.String("storage", cfg.Storage.Driver),
		zap.String("embedding", cfg.Embedding.Provider),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
		zap.Int("chunks", c.VectorIndex.Size()))
	return c, nil
}

// app is what every command that touches the index needs.
type app struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	components *Components
}

func (a *app) Close() {
	a.components.Close()
	_ = a.logger.Sync()
}

// bootstrap loads the config from --config, builds the logger and initializes
// the components.
func bootstrap(ctx context.Context) (*app, error) {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger, err := utils.NewLogger(debugEnabled(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	logger.Debug("config loaded", zap.String("path", path))
	c, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	return &app{cfg: cfg, configPath: path, logger: logger, components: c}, nil
}
