package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/legichunk/internal/config"
	"github.com/dgallion1/legichunk/internal/embed"
	"github.com/dgallion1/legichunk/internal/index"
	"github.com/dgallion1/legichunk/internal/pipeline"
	"github.com/dgallion1/legichunk/internal/retrieve"
)

// Deps are the optional collaborators of the server. Nil members disable
// the endpoints that need them.
type Deps struct {
	Retriever *retrieve.Service
	Store     index.Store
	Embedder  *embed.HTTPClient
}

// Server is the HTTP API server for legichunk.
type Server struct {
	router       chi.Router
	orchestrator *pipeline.Orchestrator
	deps         Deps
	log          *slog.Logger
	cfg          config.Config
}

// NewServer creates and configures the HTTP server.
func NewServer(orch *pipeline.Orchestrator, deps Deps, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		orchestrator: orch,
		deps:         deps,
		log:          log,
		cfg:          cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	// Public endpoints.
	r.Get("/health", s.handleHealth)

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.cfg.APIKey, s.log))

		r.Post("/api/ingest", s.handleIngest)
		r.Post("/api/ingest/batch", s.handleBatchIngest)
		r.Get("/api/ingest/{jobID}/status", s.handleIngestStatus)
		r.Get("/api/ingest/{jobID}/chunks", s.handleIngestChunks)

		r.Post("/api/search", s.handleSearch)
		r.Get("/api/codes", s.handleListCodes)
		r.Get("/api/stats/embed", s.handleEmbedStats)
	})

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := map[string]any{
		"status":      "ok",
		"queue_depth": s.orchestrator.QueueDepth(),
		"index":       "disabled",
	}
	if s.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Store.Health(ctx); err != nil {
			s.log.Warn("index health check failed", "error", err)
			resp["status"] = "degraded"
			resp["index"] = "unavailable"
			status = http.StatusServiceUnavailable
		} else {
			resp["index"] = "ok"
		}
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
