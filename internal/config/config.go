package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dgallion1/legichunk/internal/chunker"
	"github.com/dgallion1/legichunk/internal/hierarchy"
)

type Config struct {
	Port string

	// Auth
	APIKey string

	// Enrichment
	RegistryFile    string
	HierarchyLevels string // comma list of level keywords; empty means all
	ChunkSize       int
	ChunkOverlap    int

	// Output
	OutputDir     string
	WriteMarkdown bool

	// Worker pool
	WorkerCount        int
	MaxQueueSize       int
	MaxConcurrentEmbed int
	EmbedBatchSize     int

	// Upload limits
	MaxUploadBytes int64

	// Job state
	JobTTL time.Duration

	// PDF
	PDFFallbackPdftotext bool

	// Embeddings; indexing is disabled without EmbedURL.
	EmbedURL    string
	EmbedModel  string
	EmbedAPIKey string
	EmbedAPI    string
	EmbedRPS    float64
	EmbedBurst  int

	// Vector index; disabled without QdrantAddr.
	QdrantAddr       string
	QdrantCollection string

	// Retrieval
	RAGTopK           int
	RAGScoreThreshold float64
}

func Load() Config {
	def := chunker.DefaultConfig()
	cfg := Config{
		Port: envOr("PORT", "8090"),

		APIKey: os.Getenv("LEGICHUNK_API_KEY"),

		RegistryFile:    envOr("REGISTRY_FILE", "codes.yaml"),
		HierarchyLevels: os.Getenv("HIERARCHY_LEVELS"),
		ChunkSize:       envInt("CHUNK_SIZE", def.ChunkSize),
		ChunkOverlap:    envInt("CHUNK_OVERLAP", def.ChunkOverlap),

		OutputDir:     envOr("OUTPUT_DIR", "output"),
		WriteMarkdown: envBool("WRITE_MARKDOWN", true),

		WorkerCount:        envInt("WORKER_COUNT", 4),
		MaxQueueSize:       envInt("MAX_QUEUE_SIZE", 100),
		MaxConcurrentEmbed: envInt("MAX_CONCURRENT_EMBED", 4),
		EmbedBatchSize:     envInt("EMBED_BATCH_SIZE", 32),

		MaxUploadBytes: envInt64("MAX_UPLOAD_BYTES", 104857600), // 100MB

		JobTTL: envDuration("JOB_TTL", 1*time.Hour),

		PDFFallbackPdftotext: envBool("PDF_FALLBACK_PDFTOTEXT", true),

		EmbedURL:    os.Getenv("EMBED_URL"),
		EmbedModel:  envOr("EMBED_MODEL", "bge-m3"),
		EmbedAPIKey: os.Getenv("EMBED_API_KEY"),
		EmbedAPI:    os.Getenv("EMBED_API"),
		EmbedRPS:    envFloat("EMBED_RPS", 5),
		EmbedBurst:  envInt("EMBED_BURST", 5),

		QdrantAddr:       os.Getenv("QDRANT_ADDR"),
		QdrantCollection: envOr("QDRANT_COLLECTION", "law_library"),

		RAGTopK:           envInt("RAG_TOP_K", 5),
		RAGScoreThreshold: envFloat("RAG_SCORE_THRESHOLD", 0),
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	if cfg.MaxQueueSize <= 0 {
		cfg.MaxQueueSize = 100
	}
	if cfg.MaxConcurrentEmbed <= 0 {
		cfg.MaxConcurrentEmbed = 4
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = 32
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 104857600
	}
	if cfg.JobTTL <= 0 {
		cfg.JobTTL = 1 * time.Hour
	}
	if cfg.RAGTopK <= 0 {
		cfg.RAGTopK = 5
	}

	return cfg
}

// Chunking returns the splitter configuration.
func (c Config) Chunking() chunker.Config {
	return chunker.Config{ChunkSize: c.ChunkSize, ChunkOverlap: c.ChunkOverlap}
}

// Levels parses HierarchyLevels.
func (c Config) Levels() ([]hierarchy.Level, error) {
	return hierarchy.ParseLevels(c.HierarchyLevels)
}

// IndexingEnabled reports whether both an embedder and an index are configured.
func (c Config) IndexingEnabled() bool {
	return c.EmbedURL != "" && c.QdrantAddr != ""
}

// Validate checks the settings shared by the server and the CLI.
func (c Config) Validate() error {
	var errs []error
	if err := c.Chunking().Validate(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Levels(); err != nil {
		errs = append(errs, fmt.Errorf("HIERARCHY_LEVELS: %w", err))
	}
	if c.RAGScoreThreshold < 0 || c.RAGScoreThreshold > 1 {
		errs = append(errs, fmt.Errorf("RAG_SCORE_THRESHOLD must be within [0, 1], got %g", c.RAGScoreThreshold))
	}
	switch c.EmbedAPI {
	case "", "openai", "ollama":
	default:
		errs = append(errs, fmt.Errorf("EMBED_API must be openai or ollama, got %q", c.EmbedAPI))
	}
	return errors.Join(errs...)
}

// ValidateServer adds the checks only the HTTP service needs.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.APIKey == "" {
		return fmt.Errorf("LEGICHUNK_API_KEY is required")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
