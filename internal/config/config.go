package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/ranking"
)

// Config represents the application configuration.
type Config struct {
	Debug      bool                  `yaml:"debug"` // when true, log at debug level
	Server     ServerConfig          `yaml:"server"`
	Storage    StorageConfig         `yaml:"storage"`
	Embedding  EmbeddingConfig       `yaml:"embedding"`
	Chunking   ChunkingConfig        `yaml:"chunking"`
	Retrieval  RetrievalConfig       `yaml:"retrieval"`
	Ranking    ranking.RankingConfig `yaml:"ranking"`
	Analysis   AnalysisConfig        `yaml:"analysis"`
	Statistics StatisticsConfig      `yaml:"statistics"`
	Inbox      InboxConfig           `yaml:"inbox"`
	Ingest     IngestConfig          `yaml:"ingest"`
}

type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// MCPAddress serves the MCP streamable HTTP transport when set.
	MCPAddress string `yaml:"mcp_address,omitempty"`
}

// Address returns host:port.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type StorageConfig struct {
	Driver           string `yaml:"driver"` // sqlite or postgres
	DatabasePath     string `yaml:"database_path"`
	PostgresDSN      string `yaml:"postgres_dsn,omitempty"`
	KeywordIndexPath string `yaml:"keyword_index_path"` // empty keeps the keyword index in memory
}

// DiskPaths lists the on-disk locations that count toward disk usage.
func (s *StorageConfig) DiskPaths() []string {
	var paths []string
	if s.Driver == DriverSQLite {
		paths = append(paths, s.DatabasePath)
	}
	if s.KeywordIndexPath != "" {
		paths = append(paths, s.KeywordIndexPath)
	}
	return paths
}

type EmbeddingConfig struct {
	Provider   string `yaml:"provider"` // mock, http or onnx
	Dimensions int    `yaml:"dimensions"`

	// http provider
	BaseURL           string        `yaml:"base_url,omitempty"`
	Model             string        `yaml:"model,omitempty"`
	APIKeyEnv         string        `yaml:"api_key_env,omitempty"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
	MaxRetries        int           `yaml:"max_retries"`
	BatchSize         int           `yaml:"batch_size"`

	CacheSize int `yaml:"cache_size"`

	// onnx provider
	ModelPath string `yaml:"model_path,omitempty"`
	MaxSeqLen int    `yaml:"max_seq_len"`
}

// APIKey reads the provider key from the environment variable named by
// APIKeyEnv.
func (e *EmbeddingConfig) APIKey() string {
	if e.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(e.APIKeyEnv)
}

// Options converts the section into embedding factory options.
func (e *EmbeddingConfig) Options() embedding.Options {
	return embedding.Options{
		Provider:   e.Provider,
		Dimensions: e.Dimensions,
		HTTP: embedding.HTTPConfig{
			URL:               e.BaseURL,
			Model:             e.Model,
			APIKey:            e.APIKey(),
			Timeout:           e.Timeout,
			RequestsPerSecond: e.RequestsPerSecond,
			Burst:             e.Burst,
			MaxRetries:        e.MaxRetries,
			BatchSize:         e.BatchSize,
		},
		ONNX: embedding.ONNXConfig{
			ModelPath: e.ModelPath,
			MaxSeqLen: e.MaxSeqLen,
		},
		CacheSize: e.CacheSize,
	}
}

type ChunkingConfig struct {
	TargetSize      int           `yaml:"target_size"`
	OverlapCeiling  float64       `yaml:"overlap_ceiling"`
	SummaryMaxChars int           `yaml:"summary_max_chars"`
	AnalyzerTimeout time.Duration `yaml:"analyzer_timeout"`
}

type RetrievalConfig struct {
	K1 float64 `yaml:"k1"`
	B  float64 `yaml:"b"`
	// DefaultHybridRatio is a pointer so that an explicit 0 (pure vector)
	// survives defaulting.
	DefaultHybridRatio *float64 `yaml:"default_hybrid_ratio"`
	DefaultLimit       int      `yaml:"default_limit"`
	MaxLimit           int      `yaml:"max_limit"`
	CandidatePool      int      `yaml:"candidate_pool"`
	ShardCapacity      int      `yaml:"shard_capacity"`
}

// HybridRatio returns DefaultHybridRatio, or 0.5 if unset.
func (r *RetrievalConfig) HybridRatio() float64 {
	if r.DefaultHybridRatio == nil {
		return defaultHybridRatio
	}
	return *r.DefaultHybridRatio
}

// AnalysisConfig configures the optional model-backed query analyzer.
type AnalysisConfig struct {
	Model ModelAnalysisConfig `yaml:"model"`
}

type ModelAnalysisConfig struct {
	Enabled bool          `yaml:"enabled"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

type StatisticsConfig struct {
	FlushInterval     time.Duration `yaml:"flush_interval"`
	IntegrityInterval time.Duration `yaml:"integrity_interval"`
}

// InboxConfig lists the approved-documents directories to index and watch.
type InboxConfig struct {
	Directories []string      `yaml:"directories"`
	Extensions  []string      `yaml:"extensions"`
	Recursive   *bool         `yaml:"recursive,omitempty"` // default true when omitted
	Debounce    time.Duration `yaml:"debounce"`
}

// RecursiveOrDefault returns whether to watch subdirectories (default true when unset).
func (i *InboxConfig) RecursiveOrDefault() bool {
	if i.Recursive == nil {
		return true
	}
	return *i.Recursive
}

type IngestConfig struct {
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.KeywordIndexPath = expandPath(cfg.Storage.KeywordIndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Inbox.Directories {
		cfg.Inbox.Directories[i] = expandPath(cfg.Inbox.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes configuration to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("invalid config: storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid config: unknown storage.driver %q", c.Storage.Driver)
	}
	switch c.Embedding.Provider {
	case embedding.ProviderMock, embedding.ProviderONNX:
	case embedding.ProviderHTTP:
		if c.Embedding.BaseURL == "" {
			return fmt.Errorf("invalid config: embedding.base_url is required for the http provider")
		}
	default:
		return fmt.Errorf("invalid config: unknown embedding.provider %q", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("invalid config: embedding.dimensions must be positive")
	}
	if r := c.Retrieval.HybridRatio(); r < 0 || r > 1 {
		return fmt.Errorf("invalid config: retrieval.default_hybrid_ratio %v outside [0,1]", r)
	}
	if c.Retrieval.DefaultLimit > c.Retrieval.MaxLimit {
		return fmt.Errorf("invalid config: retrieval.default_limit %d exceeds max_limit %d",
			c.Retrieval.DefaultLimit, c.Retrieval.MaxLimit)
	}
	if c.Chunking.OverlapCeiling < 0 || c.Chunking.OverlapCeiling >= 1 {
		return fmt.Errorf("invalid config: chunking.overlap_ceiling must be in [0,1)")
	}
	if c.Ranking.TechnicalLevelMin > c.Ranking.TechnicalLevelMax {
		return fmt.Errorf("invalid config: ranking.technical_level_min exceeds technical_level_max")
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the user's home directory. Empty paths and
// ":memory:" are returned unchanged.
func expandPath(path string, configDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
