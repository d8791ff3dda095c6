package kenny

import (
	"os"
	"path/filepath"
)

// Config holds all configuration for the kenny engine. It mirrors the
// per-environment configuration surface (development, testing, staging,
// production) as nested sections; loading it from a file or environment
// variables is the caller's responsibility (see cmd/kennyd).
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.kenny/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. Options: "home" (default) uses ~/.kenny/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	Database   DatabaseConfig   `json:"database" yaml:"database"`
	Performance PerformanceConfig `json:"performance" yaml:"performance"`
	Cache      CacheConfig      `json:"cache" yaml:"cache"`
	Monitoring MonitoringConfig `json:"monitoring" yaml:"monitoring"`
	Features   FeaturesConfig   `json:"features" yaml:"features"`

	// LLM providers
	Chat      LLMConfig `json:"chat" yaml:"chat"`
	Embedding LLMConfig `json:"embedding" yaml:"embedding"`

	// Hybrid search fusion weights (must sum to 1; see retrieval.Fuse).
	WeightBM25      float64 `json:"weight_bm25" yaml:"weight_bm25"`
	WeightEmbedding float64 `json:"weight_embedding" yaml:"weight_embedding"`

	// Chunking (character-based; see chunker.Config).
	MaxChunkSize int `json:"max_chunk_size" yaml:"max_chunk_size"`
	ChunkOverlap int `json:"chunk_overlap" yaml:"chunk_overlap"`

	// Ingest
	IngestBatchSize int `json:"ingest_batch_size" yaml:"ingest_batch_size"`

	// Reasoning Loop (tool selection)
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// Embedding dimensions (must match model)
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// FilesRoot, when non-empty, registers the "files" ingest source
	// rooted at this directory — every file under it whose extension
	// parser.Registry recognizes (.txt/.pdf/.docx/.pptx/.xlsx) becomes a
	// document. Left empty, no filesystem directory is watched.
	FilesRoot string `json:"files_root" yaml:"files_root"`
}

// DatabaseConfig mirrors spec §6's "database" configuration section.
type DatabaseConfig struct {
	Path              string `json:"path,omitempty" yaml:"path,omitempty"`
	ConnectionPoolSize int    `json:"connection_pool_size" yaml:"connection_pool_size"`
	QueryTimeoutMS    int    `json:"query_timeout_ms" yaml:"query_timeout_ms"`
	EnableWAL         bool   `json:"enable_wal" yaml:"enable_wal"`
	EnableFTS         bool   `json:"enable_fts" yaml:"enable_fts"`
}

// PerformanceConfig mirrors spec §6's "performance" configuration section.
type PerformanceConfig struct {
	EnableMetrics   bool `json:"enable_metrics" yaml:"enable_metrics"`
	RetentionDays   int  `json:"retention_days" yaml:"retention_days"`
	SlowQueryMS     int  `json:"slow_query_ms" yaml:"slow_query_ms"`
	CriticalOpMS    int  `json:"critical_op_ms" yaml:"critical_op_ms"`
	EnableTracing   bool `json:"enable_tracing" yaml:"enable_tracing"`
	MemoryWarningMB int  `json:"memory_warning_mb" yaml:"memory_warning_mb"`
	MaxDatapoints   int  `json:"max_datapoints" yaml:"max_datapoints"`
}

// CacheConfig mirrors spec §6's "cache" configuration section.
type CacheConfig struct {
	Enabled       bool `json:"enabled" yaml:"enabled"`
	MaxMemoryMB   int  `json:"max_memory_mb" yaml:"max_memory_mb"`
	DefaultTTLSec int  `json:"default_ttl_s" yaml:"default_ttl_s"`
	MaxEntries    int  `json:"max_entries" yaml:"max_entries"`
}

// MonitoringConfig mirrors spec §6's "monitoring" configuration section.
type MonitoringConfig struct {
	Enabled           bool   `json:"enabled" yaml:"enabled"`
	LogLevel          string `json:"log_level" yaml:"log_level"` // debug, info, warning, error
	StructuredLogging bool   `json:"structured_logging" yaml:"structured_logging"`
	MetricsEndpoint   string `json:"metrics_endpoint,omitempty" yaml:"metrics_endpoint,omitempty"`
}

// FeaturesConfig mirrors spec §6's "features" configuration section.
type FeaturesConfig struct {
	HybridSearch      bool   `json:"hybrid_search" yaml:"hybrid_search"`
	Embeddings        bool   `json:"embeddings" yaml:"embeddings"`
	RealTimeSync      bool   `json:"real_time_sync" yaml:"real_time_sync"`
	Webhooks          bool   `json:"webhooks" yaml:"webhooks"`
	AdvancedCaching   bool   `json:"advanced_caching" yaml:"advanced_caching"`
	SafetyStrictness  string `json:"safety_strictness" yaml:"safety_strictness"` // low, medium, high, paranoid
}

// LLMConfig configures a single LLM provider endpoint.
type LLMConfig struct {
	Provider      string `json:"provider" yaml:"provider"` // ollama, openai, mock
	Model         string `json:"model" yaml:"model"`
	BaseURL       string `json:"base_url" yaml:"base_url"`
	APIKey        string `json:"api_key" yaml:"api_key"`
	TimeoutSec    int    `json:"timeout_s" yaml:"timeout_s"`
	MaxRetries    int    `json:"max_retries" yaml:"max_retries"`
	EnableFallback bool  `json:"enable_fallback" yaml:"enable_fallback"`
}

// DefaultConfig returns a Config with sensible defaults for local inference.
// Database is stored in ~/.kenny/kenny.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "kenny",
		StorageDir: "home",
		Database: DatabaseConfig{
			ConnectionPoolSize: 4,
			QueryTimeoutMS:     30000,
			EnableWAL:          true,
			EnableFTS:          true,
		},
		Performance: PerformanceConfig{
			EnableMetrics:   true,
			RetentionDays:   30,
			SlowQueryMS:     200,
			CriticalOpMS:    2000,
			MemoryWarningMB: 512,
			MaxDatapoints:   4096,
		},
		Cache: CacheConfig{
			Enabled:       true,
			MaxMemoryMB:   64,
			DefaultTTLSec: 300,
			MaxEntries:    2048,
		},
		Monitoring: MonitoringConfig{
			Enabled:           true,
			LogLevel:          "info",
			StructuredLogging: true,
		},
		Features: FeaturesConfig{
			HybridSearch:     true,
			Embeddings:       true,
			AdvancedCaching:  true,
			SafetyStrictness: "medium",
		},
		Chat: LLMConfig{
			Provider:   "ollama",
			Model:      "llama3.1:8b",
			BaseURL:    "http://localhost:11434",
			TimeoutSec: 30,
			MaxRetries: 3,
		},
		Embedding: LLMConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			BaseURL:    "http://localhost:11434",
			TimeoutSec: 30,
			MaxRetries: 3,
		},
		WeightBM25:      0.5,
		WeightEmbedding: 0.5,
		MaxChunkSize:    512,
		ChunkOverlap:    50,
		IngestBatchSize: 500,
		MaxRetries:      3,
		EmbeddingDim:    768,
	}
}

// resolveDBPath computes the final database path from config fields.
// The KENNY_DB_PATH environment variable, when set, takes precedence.
func (c *Config) resolveDBPath() string {
	if v := os.Getenv("KENNY_DB_PATH"); v != "" {
		return v
	}
	if c.DBPath != "" {
		return c.DBPath
	}
	if c.Database.Path != "" {
		return c.Database.Path
	}

	name := c.DBName
	if name == "" {
		name = "kenny"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		dir := filepath.Join(home, ".kenny")
		return filepath.Join(dir, name+".db")
	}
}
