package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/dgallion1/legichunk/internal/api"
	"github.com/dgallion1/legichunk/internal/app"
	"github.com/dgallion1/legichunk/internal/config"
	"github.com/dgallion1/legichunk/internal/pipeline"
)

func main() {
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn("could not read .env", "error", err)
	}

	cfg := config.Load()
	if err := cfg.ValidateServer(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize registry, enricher and, when configured, the index.
	comps, err := app.Build(cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}

	// Initialize pipeline.
	orch := pipeline.NewOrchestrator(cfg, comps.Enricher, comps.Indexer, log)
	orch.Start(ctx)

	// Initialize HTTP server.
	srv := api.NewServer(orch, api.Deps{
		Retriever: comps.Retriever,
		Store:     comps.IndexStore(),
		Embedder:  comps.Embedder,
	}, log, cfg)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")

		orch.Stop()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		httpServer.Shutdown(shutdownCtx)

		if err := comps.Close(); err != nil {
			log.Warn("close failed", "error", err)
		}
	}()

	log.Info("starting legichunk",
		"port", cfg.Port,
		"codes", comps.Registry.Len(),
		"indexing", orch.IndexingEnabled(),
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error", "error", err)
		os.Exit(1)
	}
}
