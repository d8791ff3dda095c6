package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kenny-project/kenny/llm"
	"github.com/kenny-project/kenny/store"
)

// Config holds the fusion weights for hybrid search.
type Config struct {
	WeightBM25      float64
	WeightEmbedding float64
}

// SearchOptions configures a single search operation, overriding Config's
// defaults when non-zero.
type SearchOptions struct {
	MaxResults      int
	WeightBM25      float64
	WeightEmbedding float64
}

// SearchType distinguishes a fully-fused hybrid result set from one
// degraded to a single branch.
type SearchType string

const (
	SearchTypeHybrid   SearchType = "hybrid"
	SearchTypeBM25Only SearchType = "bm25_only"
)

// SearchTrace records the breakdown of one hybrid search for diagnostics
// and the telemetry/audit surfaces.
type SearchTrace struct {
	SearchType      SearchType `json:"search_type"`
	BM25Results     int        `json:"bm25_results"`
	VecResults      int        `json:"vec_results"`
	FusedResults    int        `json:"fused_results"`
	BM25Weight      float64    `json:"bm25_weight"`
	EmbeddingWeight float64    `json:"embedding_weight"`
	SynthesisMode   bool       `json:"synthesis_mode"`
	MaxRequested    int        `json:"max_requested"`
	ElapsedMs       int64      `json:"elapsed_ms"`
}

// Engine performs hybrid retrieval combining BM25 lexical search (C7) and
// cosine-similarity vector search (C8), fused per fusion.go.
type Engine struct {
	store    *store.Store
	embedder llm.Provider
	cfg      Config
}

// New creates a hybrid search engine bound to the store and an embedding
// provider.
func New(s *store.Store, embedder llm.Provider, cfg Config) *Engine {
	if cfg.WeightBM25 == 0 && cfg.WeightEmbedding == 0 {
		cfg.WeightBM25, cfg.WeightEmbedding = 0.5, 0.5
	}
	return &Engine{store: s, embedder: embedder, cfg: cfg}
}

// Search runs the BM25 and vector branches concurrently and fuses their
// results with the configured weights.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]store.RetrievalResult, *SearchTrace, error) {
	if opts.MaxResults == 0 {
		opts.MaxResults = 20
	}
	if opts.WeightBM25 == 0 {
		opts.WeightBM25 = e.cfg.WeightBM25
	}
	if opts.WeightEmbedding == 0 {
		opts.WeightEmbedding = e.cfg.WeightEmbedding
	}

	trace := &SearchTrace{BM25Weight: opts.WeightBM25, EmbeddingWeight: opts.WeightEmbedding}

	if isSynthesisQuery(query) && opts.MaxResults < 40 {
		opts.MaxResults = 40
		trace.SynthesisMode = true
	}

	start := time.Now()

	type result struct {
		results []store.RetrievalResult
		err     error
	}
	bm25Ch := make(chan result, 1)
	vecCh := make(chan result, 1)

	go func() {
		r, err := ftsSearch(ctx, e.store, query, opts.MaxResults)
		bm25Ch <- result{r, err}
	}()
	go func() {
		r, err := vectorSearch(ctx, e.store, e.embedder, query, opts.MaxResults)
		vecCh <- result{r, err}
	}()

	bm25Res := <-bm25Ch
	vecRes := <-vecCh

	if bm25Res.err != nil {
		slog.Warn("hybrid search: bm25 branch failed", "error", bm25Res.err)
	}
	degraded := vecRes.err != nil
	if degraded {
		slog.Warn("hybrid search: vector branch failed, degrading to bm25-only", "error", vecRes.err)
	}
	trace.BM25Results = len(bm25Res.results)
	trace.VecResults = len(vecRes.results)
	if degraded {
		trace.SearchType = SearchTypeBM25Only
	} else {
		trace.SearchType = SearchTypeHybrid
	}

	if len(bm25Res.results) == 0 && len(vecRes.results) == 0 {
		if bm25Res.err != nil {
			return nil, trace, fmt.Errorf("bm25 search: %w", bm25Res.err)
		}
		if vecRes.err != nil {
			return nil, trace, fmt.Errorf("vector search: %w", vecRes.err)
		}
	}

	wEmb := opts.WeightEmbedding
	if degraded {
		wEmb = 0
	}
	fused := fuse(bm25Res.results, vecRes.results, opts.WeightBM25, wEmb, opts.MaxResults)
	trace.FusedResults = len(fused)
	trace.MaxRequested = opts.MaxResults
	trace.ElapsedMs = time.Since(start).Milliseconds()

	if err := e.store.LogQuery(ctx, store.QueryLog{
		Query: query, SearchType: string(trace.SearchType), ResultCount: len(fused), ElapsedMS: trace.ElapsedMs,
	}); err != nil {
		slog.Warn("hybrid search: logging query failed", "error", err)
	}

	return fused, trace, nil
}
