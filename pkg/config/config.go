// Package config handles uforge configuration via environment variables.
//
// uforge is an embedded, single-user desktop application: there is no
// server to configure and no multi-tenant auth model, so configuration is
// limited to where data lives, how verbosely it logs, and a handful of
// runtime tuning knobs for the vector index and embedding queue. All
// variables are prefixed with UFORGE_.
//
// Configuration is loaded from environment variables using LoadFromEnv() and
// can be validated with Validate() before use.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
package config

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
)

// Config holds all uforge configuration loaded from environment variables.
type Config struct {
	// Storage settings: where the graph, schemas, and embedding cache live.
	Storage StorageConfig

	// Search/index settings: HNSW tuning and the embedding provider.
	Search SearchConfig

	// Ingest settings: queue backpressure and batch sizing.
	Ingest IngestConfig

	// Runtime memory management (Go runtime tuning).
	Runtime RuntimeConfig

	// Logging.
	Logging LoggingConfig
}

// StorageConfig holds on-disk data locations.
type StorageConfig struct {
	// DataDir is the BadgerDB directory for the graph store.
	DataDir string
	// SchemaDir holds UFORGE_SCHEMA_DIR, a directory of JSON schema files.
	// It is loaded here only; nothing ingests it automatically on startup
	// (schema directories are loaded with `uforge ingest schema`).
	SchemaDir string
	// EmbeddingCacheDir stores the on-disk HNSW/name index snapshots so a
	// restart doesn't require re-embedding the whole graph.
	EmbeddingCacheDir string
	// SyncWrites holds UFORGE_SYNC_WRITES (off by default). It is not passed
	// on to the store: uforge.Open opens storage without sync writes
	// regardless of this value.
	SyncWrites bool
}

// SearchConfig holds vector/name index tuning.
type SearchConfig struct {
	// HNSWM is the max number of neighbors per node per layer.
	HNSWM int
	// HNSWEfConstruction trades index build time for recall.
	HNSWEfConstruction int
	// HNSWEfSearch trades query time for recall.
	HNSWEfSearch int
	// HNSWMaxElements pre-sizes the index's internal slices.
	HNSWMaxElements int
	// EmbeddingProvider selects which embed.Provider to construct ("hash",
	// "ollama").
	EmbeddingProvider string
	// EmbeddingModel names the model for providers that support more than
	// one (e.g. ollama).
	EmbeddingModel string
	// EmbeddingAPIURL is the endpoint for a remote embedding provider.
	EmbeddingAPIURL string
	// EmbeddingDimensions sizes the vector index when no provider is
	// available to ask directly.
	EmbeddingDimensions int
}

// IngestConfig holds embedding queue and ingestion batch tuning.
type IngestConfig struct {
	// QueueCapacity bounds how many pending embedding requests the queue
	// will hold; once it is full, EmbedText/EmbedBatch fail fast with
	// embed.ErrQueueFull instead of blocking.
	QueueCapacity int
	// BatchSize holds UFORGE_BATCH_SIZE. No code in this module reads it;
	// EmbedBatch callers choose their own batch sizes.
	BatchSize int
}

// RuntimeConfig holds Go runtime memory tuning, relevant even for a desktop
// app embedding a large vector index in process.
type RuntimeConfig struct {
	// Limit is the soft memory limit (GOMEMLIMIT) in bytes; 0 = unlimited.
	Limit int64
	// LimitStr is the human-readable form (e.g. "2GB", "512MB").
	LimitStr string
	// GCPercent controls GC aggressiveness (GOGC); 100 = default.
	GCPercent int
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level (debug, info, warn, error).
	Level string
	// Format (json, console).
	Format string
}

// LoadFromEnv loads configuration from environment variables, applying
// defaults suitable for a first run with nothing set.
func LoadFromEnv() *Config {
	cfg := &Config{}

	cfg.Storage.DataDir = getEnv("UFORGE_DATA_DIR", "./data")
	cfg.Storage.SchemaDir = getEnv("UFORGE_SCHEMA_DIR", "")
	cfg.Storage.EmbeddingCacheDir = getEnv("UFORGE_EMBEDDING_CACHE_DIR", "./data/index")
	cfg.Storage.SyncWrites = getEnvBool("UFORGE_SYNC_WRITES", false)

	cfg.Search.HNSWM = getEnvInt("UFORGE_HNSW_M", 16)
	cfg.Search.HNSWEfConstruction = getEnvInt("UFORGE_HNSW_EF_CONSTRUCTION", 200)
	cfg.Search.HNSWEfSearch = getEnvInt("UFORGE_HNSW_EF_SEARCH", 50)
	cfg.Search.HNSWMaxElements = getEnvInt("UFORGE_HNSW_MAX_ELEMENTS", 10000)
	cfg.Search.EmbeddingProvider = getEnv("UFORGE_EMBEDDING_PROVIDER", "hash")
	cfg.Search.EmbeddingModel = getEnv("UFORGE_EMBEDDING_MODEL", "mxbai-embed-large")
	cfg.Search.EmbeddingAPIURL = getEnv("UFORGE_EMBEDDING_API_URL", "http://localhost:11434")
	cfg.Search.EmbeddingDimensions = getEnvInt("UFORGE_EMBEDDING_DIMENSIONS", 384)

	cfg.Ingest.QueueCapacity = getEnvInt("UFORGE_QUEUE_CAPACITY", 256)
	cfg.Ingest.BatchSize = getEnvInt("UFORGE_BATCH_SIZE", 32)

	cfg.Runtime.LimitStr = getEnv("UFORGE_MEMORY_LIMIT", "0")
	cfg.Runtime.Limit = parseMemorySize(cfg.Runtime.LimitStr)
	cfg.Runtime.GCPercent = getEnvInt("UFORGE_GC_PERCENT", 100)

	cfg.Logging.Level = getEnv("UFORGE_LOG_LEVEL", "info")
	cfg.Logging.Format = getEnv("UFORGE_LOG_FORMAT", "console")

	return cfg
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage data dir must not be empty")
	}
	if c.Search.EmbeddingDimensions <= 0 {
		return fmt.Errorf("invalid embedding dimensions: %d", c.Search.EmbeddingDimensions)
	}
	if c.Search.HNSWM <= 0 {
		return fmt.Errorf("invalid hnsw M: %d", c.Search.HNSWM)
	}
	if c.Ingest.QueueCapacity <= 0 {
		return fmt.Errorf("invalid queue capacity: %d", c.Ingest.QueueCapacity)
	}
	return nil
}

// String returns a log-safe representation of the Config.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{DataDir: %s, EmbeddingProvider: %s, HNSW(M=%d, efSearch=%d)}",
		c.Storage.DataDir, c.Search.EmbeddingProvider, c.Search.HNSWM, c.Search.HNSWEfSearch,
	)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

// parseMemorySize parses a human-readable memory size string.
// Supports: "1024", "1KB", "1MB", "1GB", "1TB", "0", "unlimited"
func parseMemorySize(s string) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" || s == "0" || s == "UNLIMITED" {
		return 0
	}

	s = strings.TrimSuffix(s, "B")

	var multiplier int64 = 1
	switch {
	case strings.HasSuffix(s, "K"):
		multiplier = 1024
		s = strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "M")
	case strings.HasSuffix(s, "G"):
		multiplier = 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "G")
	case strings.HasSuffix(s, "T"):
		multiplier = 1024 * 1024 * 1024 * 1024
		s = strings.TrimSuffix(s, "T")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0
	}
	return val * multiplier
}

// FormatMemorySize formats bytes as a human-readable string.
func FormatMemorySize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
		TB = GB * 1024
	)

	switch {
	case bytes >= TB:
		return fmt.Sprintf("%.2f TB", float64(bytes)/float64(TB))
	case bytes >= GB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// ApplyRuntimeMemory applies the runtime memory settings to the Go runtime.
// Should be called early in main() before heavy allocations (the HNSW index
// in particular can grow large for bigger worlds).
func (c *RuntimeConfig) ApplyRuntimeMemory() {
	if c.Limit > 0 {
		debug.SetMemoryLimit(c.Limit)
	}
	if c.GCPercent != 100 {
		debug.SetGCPercent(c.GCPercent)
	}
}
