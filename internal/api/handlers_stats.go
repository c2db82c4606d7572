package api

import (
	"net/http"
)

func (s *Server) handleEmbedStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Embedder == nil {
		jsonError(w, "embed stats unavailable", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"model":     s.deps.Embedder.Model(),
		"dimension": s.deps.Embedder.Dimension(),
		"stats":     s.deps.Embedder.Stats().Snapshot(),
	})
}
