package config

import (
	"time"

	"github.com/hyperjump/kotae/internal/embedding"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const defaultHybridRatio = 0.5

// DefaultExtensions are the inbox file types the extractor understands.
var DefaultExtensions = []string{".txt", ".md", ".rst", ".pdf", ".docx", ".odt", ".rtf", ".xlsx"}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverSQLite
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/kotae.db"
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = embedding.ProviderMock
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "KOTAE_EMBEDDING_API_KEY"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 10 * time.Second
	}
	if cfg.Embedding.RequestsPerSecond == 0 {
		cfg.Embedding.RequestsPerSecond = 10
	}
	if cfg.Embedding.Burst == 0 {
		cfg.Embedding.Burst = 5
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 3
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 64
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.MaxSeqLen == 0 {
		cfg.Embedding.MaxSeqLen = 256
	}

	if cfg.Chunking.TargetSize == 0 {
		cfg.Chunking.TargetSize = 1000
	}
	if cfg.Chunking.OverlapCeiling == 0 {
		cfg.Chunking.OverlapCeiling = 0.2
	}
	if cfg.Chunking.SummaryMaxChars == 0 {
		cfg.Chunking.SummaryMaxChars = 300
	}
	if cfg.Chunking.AnalyzerTimeout == 0 {
		cfg.Chunking.AnalyzerTimeout = 5 * time.Second
	}

	if cfg.Retrieval.K1 == 0 {
		cfg.Retrieval.K1 = 1.5
	}
	if cfg.Retrieval.B == 0 {
		cfg.Retrieval.B = 0.75
	}
	if cfg.Retrieval.DefaultHybridRatio == nil {
		r := defaultHybridRatio
		cfg.Retrieval.DefaultHybridRatio = &r
	}
	if cfg.Retrieval.DefaultLimit == 0 {
		cfg.Retrieval.DefaultLimit = 10
	}
	if cfg.Retrieval.MaxLimit == 0 {
		cfg.Retrieval.MaxLimit = 100
	}
	if cfg.Retrieval.CandidatePool == 0 {
		cfg.Retrieval.CandidatePool = 200
	}
	if cfg.Retrieval.ShardCapacity == 0 {
		cfg.Retrieval.ShardCapacity = 4096
	}

	cfg.Ranking.ApplyDefaults()

	if cfg.Analysis.Model.BaseURL == "" {
		cfg.Analysis.Model.BaseURL = "http://localhost:11434"
	}
	if cfg.Analysis.Model.Model == "" {
		cfg.Analysis.Model.Model = "llama3.2"
	}
	if cfg.Analysis.Model.Timeout == 0 {
		cfg.Analysis.Model.Timeout = 5 * time.Second
	}

	if cfg.Statistics.FlushInterval == 0 {
		cfg.Statistics.FlushInterval = 30 * time.Second
	}
	if cfg.Statistics.IntegrityInterval == 0 {
		cfg.Statistics.IntegrityInterval = time.Hour
	}

	if cfg.Inbox.Extensions == nil {
		cfg.Inbox.Extensions = append([]string(nil), DefaultExtensions...)
	}
	if cfg.Inbox.Debounce == 0 {
		cfg.Inbox.Debounce = 500 * time.Millisecond
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Inbox.Directories) > 0 && cfg.Inbox.Recursive == nil {
		t := true
		cfg.Inbox.Recursive = &t
	}

	if cfg.Ingest.MaxRetries == 0 {
		cfg.Ingest.MaxRetries = 3
	}
	if cfg.Ingest.RetryBackoff == 0 {
		cfg.Ingest.RetryBackoff = 500 * time.Millisecond
	}
}
