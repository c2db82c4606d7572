// Package app assembles the components shared by the server and the CLI
// from a loaded configuration.
package app

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/dgallion1/legichunk/internal/config"
	"github.com/dgallion1/legichunk/internal/embed"
	"github.com/dgallion1/legichunk/internal/enrich"
	"github.com/dgallion1/legichunk/internal/index"
	"github.com/dgallion1/legichunk/internal/pipeline"
	"github.com/dgallion1/legichunk/internal/registry"
	"github.com/dgallion1/legichunk/internal/retrieve"
)

// Components are the long-lived collaborators built from a Config. The
// indexing members are nil when indexing is disabled.
type Components struct {
	Registry *registry.Registry
	Enricher *enrich.Enricher

	Embedder  *embed.HTTPClient
	Store     *index.Qdrant
	Indexer   *pipeline.Indexer
	Retriever *retrieve.Service
}

// Build loads the code registry and, when configured, connects the
// embedder and the vector index. A missing registry file is not fatal:
// every document then resolves to its filename.
func Build(cfg config.Config, log *slog.Logger) (*Components, error) {
	reg, err := loadRegistry(cfg.RegistryFile, log)
	if err != nil {
		return nil, err
	}
	levels, err := cfg.Levels()
	if err != nil {
		return nil, err
	}

	c := &Components{
		Registry: reg,
		Enricher: enrich.New(reg, enrich.Options{Levels: levels, Logger: log}),
	}
	if !cfg.IndexingEnabled() {
		log.Info("indexing disabled", "embed_url_set", cfg.EmbedURL != "", "qdrant_addr_set", cfg.QdrantAddr != "")
		return c, nil
	}

	c.Embedder = embed.NewHTTPClient(embed.Config{
		BaseURL:           cfg.EmbedURL,
		Model:             cfg.EmbedModel,
		APIKey:            cfg.EmbedAPIKey,
		API:               embed.API(cfg.EmbedAPI),
		RequestsPerSecond: cfg.EmbedRPS,
		Burst:             cfg.EmbedBurst,
	})
	c.Store, err = index.NewQdrant(cfg.QdrantAddr, cfg.QdrantCollection)
	if err != nil {
		c.Embedder.Close()
		return nil, err
	}
	c.Indexer = pipeline.NewIndexer(c.Embedder, c.Store, cfg.EmbedBatchSize, cfg.MaxConcurrentEmbed, log)
	c.Retriever = retrieve.NewService(c.Embedder, c.Store, cfg.RAGTopK, float32(cfg.RAGScoreThreshold), log)
	log.Info("indexing enabled",
		"embed_url", cfg.EmbedURL,
		"embed_model", cfg.EmbedModel,
		"qdrant_addr", cfg.QdrantAddr,
		"collection", cfg.QdrantCollection,
	)
	return c, nil
}

func loadRegistry(path string, log *slog.Logger) (*registry.Registry, error) {
	if path == "" {
		return registry.New(), nil
	}
	reg, err := registry.Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warn("registry file not found, using filename fallback", "path", path)
		return registry.New(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := reg.LoadArticleURLs(); err != nil {
		log.Warn("article urls unavailable", "path", path, "error", err)
	}
	log.Info("registry loaded", "path", path, "codes", reg.Len())
	return reg, nil
}

// Close releases network clients.
func (c *Components) Close() error {
	if c.Embedder != nil {
		c.Embedder.Close()
	}
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			return fmt.Errorf("close index: %w", err)
		}
	}
	return nil
}

// IndexStore returns the vector index as an interface value, nil when
// indexing is disabled.
func (c *Components) IndexStore() index.Store {
	if c.Store == nil {
		return nil
	}
	return c.Store
}
