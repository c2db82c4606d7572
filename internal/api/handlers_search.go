package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/legichunk/internal/retrieve"
)

type searchRequest struct {
	retrieve.Query
	Context bool `json:"context,omitempty"`
}

type searchHit struct {
	retrieve.Result
	Citation string `json:"citation"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Retriever == nil {
		jsonError(w, "search unavailable: no index configured", http.StatusServiceUnavailable)
		return
	}
	var req searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	results, err := s.deps.Retriever.Search(r.Context(), req.Query)
	if errors.Is(err, retrieve.ErrEmptyQuery) {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.log.Error("search failed", "error", err)
		jsonError(w, "search failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	hits := make([]searchHit, len(results))
	for i, res := range results {
		hits[i] = searchHit{Result: res, Citation: res.Citation()}
	}
	resp := map[string]any{"results": hits}
	if req.Context {
		resp["context"] = retrieve.ContextBlock(results)
	}
	writeJSON(w, http.StatusOK, resp)
}

type codeInfo struct {
	Key     string   `json:"key"`
	Name    string   `json:"name"`
	URL     string   `json:"url,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
}

func (s *Server) handleListCodes(w http.ResponseWriter, r *http.Request) {
	entries := s.orchestrator.Enricher().Registry().Codes()
	codes := make([]codeInfo, len(entries))
	for i, e := range entries {
		codes[i] = codeInfo{Key: e.Key, Name: e.DisplayName, URL: e.CanonicalURL, Aliases: e.Aliases}
	}
	writeJSON(w, http.StatusOK, map[string]any{"codes": codes})
}
