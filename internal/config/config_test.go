package config

import (
	"testing"

	"github.com/dgallion1/legichunk/internal/hierarchy"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	if cfg.ChunkSize != 1000 || cfg.ChunkOverlap != 150 {
		t.Errorf("expected 1000/150, got %d/%d", cfg.ChunkSize, cfg.ChunkOverlap)
	}
	if cfg.QdrantCollection != "law_library" || cfg.RAGTopK != 5 {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	levels, err := cfg.Levels()
	if err != nil || len(levels) != int(hierarchy.NumLevels) {
		t.Errorf("expected all levels, got %v (%v)", levels, err)
	}
	if cfg.IndexingEnabled() {
		t.Error("expected indexing off without EMBED_URL and QDRANT_ADDR")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CHUNK_OVERLAP", "50")
	t.Setenv("HIERARCHY_LEVELS", "chapitre,section")
	t.Setenv("EMBED_URL", "http://localhost:11434")
	t.Setenv("QDRANT_ADDR", "localhost:6334")
	t.Setenv("RAG_SCORE_THRESHOLD", "0.35")
	t.Setenv("WORKER_COUNT", "-2")

	cfg := Load()
	if cfg.Chunking().ChunkSize != 500 || cfg.Chunking().ChunkOverlap != 50 {
		t.Errorf("unexpected chunking %+v", cfg.Chunking())
	}
	levels, err := cfg.Levels()
	if err != nil || len(levels) != 2 || levels[0] != hierarchy.Chapter {
		t.Errorf("unexpected levels %v (%v)", levels, err)
	}
	if !cfg.IndexingEnabled() {
		t.Error("expected indexing on")
	}
	if cfg.RAGScoreThreshold != 0.35 {
		t.Errorf("expected 0.35, got %g", cfg.RAGScoreThreshold)
	}
	if cfg.WorkerCount != 4 {
		t.Errorf("expected non-positive worker count to fall back to 4, got %d", cfg.WorkerCount)
	}
}

func TestValidate_Errors(t *testing.T) {
	cases := map[string]func(*Config){
		"overlap":   func(c *Config) { c.ChunkOverlap = c.ChunkSize },
		"levels":    func(c *Config) { c.HierarchyLevels = "chapitre,alinéa" },
		"threshold": func(c *Config) { c.RAGScoreThreshold = 1.5 },
		"embed api": func(c *Config) { c.EmbedAPI = "grpc" },
	}
	for name, mutate := range cases {
		cfg := Load()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestValidateServer_RequiresAPIKey(t *testing.T) {
	cfg := Load()
	cfg.APIKey = ""
	if err := cfg.ValidateServer(); err == nil {
		t.Error("expected missing api key error")
	}
	cfg.APIKey = "secret"
	if err := cfg.ValidateServer(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
