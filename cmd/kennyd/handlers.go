package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kenny-project/kenny"
	"github.com/kenny-project/kenny/retrieval"
)

type handler struct {
	engine *kenny.Engine
}

func newHandler(e *kenny.Engine) *handler {
	return &handler{engine: e}
}

// POST /ingest — runs every registered source in the fixed order. A
// JSON body may scope the run to a single named source and request an
// incremental (since-based) rather than full sync.
func (h *handler) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
	defer cancel()

	var req struct {
		Source   string     `json:"source,omitempty"`
		FullSync bool       `json:"full_sync,omitempty"`
		Since    *time.Time `json:"since,omitempty"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	} else {
		req.FullSync = true
	}

	if req.Source != "" {
		stats, err := h.engine.RunIngestSource(ctx, req.Source, req.FullSync, req.Since)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "ingest failed")
			slog.Error("ingest error", "source", req.Source, "error", err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	stats, err := h.engine.RunIngest(ctx, req.FullSync, req.Since)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ingest failed")
		slog.Error("ingest error", "error", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": stats})
}

// POST /ask — enhances the query and runs it through the tool-selection
// reasoning loop.
func (h *handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	answer, err := h.engine.Ask(ctx, req.Query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ask failed")
		slog.Error("ask error", "query", req.Query, "error", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

// POST /search — raw hybrid retrieval, bypassing the reasoning loop.
func (h *handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	var req struct {
		Query           string  `json:"query"`
		MaxResults      int     `json:"max_results,omitempty"`
		WeightBM25      float64 `json:"weight_bm25,omitempty"`
		WeightEmbedding float64 `json:"weight_embedding,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}
	if req.MaxResults < 0 || req.MaxResults > 100 {
		req.MaxResults = 0
	}

	results, trace, err := h.engine.Search(ctx, req.Query, retrieval.SearchOptions{
		MaxResults:      req.MaxResults,
		WeightBM25:      req.WeightBM25,
		WeightEmbedding: req.WeightEmbedding,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		slog.Error("search error", "query", req.Query, "error", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"trace":   trace,
	})
}

// GET /health
func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": fmt.Sprintf("%s", msg)})
}
