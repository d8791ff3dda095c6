// Package kenny wires every component (store, broker, ingest, chunker,
// retrieval, enhance, tools, agent, cache, telemetry, graph) into a
// single local-first personal knowledge engine: ingest heterogeneous
// personal data, index it for hybrid search, and answer questions
// through a safety-gated tool-execution loop.
package kenny

import (
	"context"
	"fmt"
	"time"

	"github.com/kenny-project/kenny/agent"
	"github.com/kenny-project/kenny/broker"
	"github.com/kenny-project/kenny/cache"
	"github.com/kenny-project/kenny/chunker"
	"github.com/kenny-project/kenny/enhance"
	"github.com/kenny-project/kenny/graph"
	"github.com/kenny-project/kenny/ingest"
	"github.com/kenny-project/kenny/ingest/filesource"
	"github.com/kenny-project/kenny/llm"
	"github.com/kenny-project/kenny/retrieval"
	"github.com/kenny-project/kenny/store"
	"github.com/kenny-project/kenny/telemetry"
	"github.com/kenny-project/kenny/tools"
	"github.com/kenny-project/kenny/tools/builtin"
)

// Answer is the result of asking the engine a question: a synthesized
// tool result or retrieval hits, plus the reasoning trail that produced
// it.
type Answer struct {
	Text           string               `json:"text"`
	ToolName       string               `json:"tool_name,omitempty"`
	Rounds         int                  `json:"rounds"`
	Steps          []agent.Step         `json:"steps"`
	Results        []store.RetrievalResult `json:"results,omitempty"`
	RetrievalTrace *retrieval.SearchTrace  `json:"retrieval_trace,omitempty"`
	Enhanced       enhance.Enhanced     `json:"enhanced"`
}

// Engine is the main entry point: ingest personal data sources, search
// across them, and ask questions answered by tool-calling.
type Engine struct {
	cfg        Config
	store      *store.Store
	broker     *broker.Broker
	chunker    *chunker.Chunker
	embedder   *chunker.Embedder
	embedModel string
	chatLLM    llm.Provider
	enhancer   *enhance.Enhancer
	retriever  *retrieval.Engine
	coord      *ingest.Coordinator
	registry   *tools.Registry
	executor   *tools.Executor
	reasoner   *agent.Engine
	cache      cache.Cache
	auditor    *telemetry.Auditor
	metrics    *telemetry.Metrics
	graphB     *graph.Builder
}

// New wires every component per cfg and opens the backing store.
func New(cfg Config) (*Engine, error) {
	dbPath := cfg.resolveDBPath()
	dim := cfg.EmbeddingDim
	if dim == 0 {
		dim = 768
	}

	s, err := store.New(dbPath, dim)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	poolSize := cfg.Database.ConnectionPoolSize
	if poolSize <= 0 {
		poolSize = 4
	}
	b := broker.New(s.DB(), poolSize)

	chatLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Chat.Provider, Model: cfg.Chat.Model,
		BaseURL: cfg.Chat.BaseURL, APIKey: cfg.Chat.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating chat provider: %w", err)
	}

	embedLLM, err := llm.NewProvider(llm.Config{
		Provider: cfg.Embedding.Provider, Model: cfg.Embedding.Model,
		BaseURL: cfg.Embedding.BaseURL, APIKey: cfg.Embedding.APIKey,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	var c cache.Cache = cache.Noop()
	if cfg.Cache.Enabled {
		ttl := time.Duration(cfg.Cache.DefaultTTLSec) * time.Second
		c = cache.New(cfg.Cache.MaxEntries, cfg.Cache.MaxMemoryMB, ttl)
	}

	chunk := chunker.New(chunker.Config{MaxChars: cfg.MaxChunkSize, Overlap: cfg.ChunkOverlap})
	embedBatch := 32
	embedder := chunker.NewEmbedder(embedLLM, embedBatch, 4, dim)

	retriever := retrieval.New(s, embedLLM, retrieval.Config{
		WeightBM25: cfg.WeightBM25, WeightEmbedding: cfg.WeightEmbedding,
	})
	enhancer := enhance.New(chatLLM, c)

	auditor := telemetry.NewAuditor(s)
	metrics := telemetry.NewMetrics(telemetry.Thresholds{
		SlowMS: int64(cfg.Performance.SlowQueryMS), CriticalMS: int64(cfg.Performance.CriticalOpMS),
	})
	graphB := graph.NewBuilder(s, 4)

	registry := tools.NewRegistry()
	registry.Register(builtin.SearchData(retriever))
	registry.Register(builtin.CreateReminder(b))
	registry.Register(builtin.AppendNote(b))
	registry.Register(builtin.MoveFile(b))
	registry.Register(builtin.ListUpcomingEvents(s))
	executor := tools.NewExecutor(registry, auditor)

	reasoner := agent.New(chatLLM, registry, executor, agent.Config{MaxRounds: cfg.MaxRetries})

	coord := ingest.New(s, b, chunk, embedder, cfg.Embedding.Model)

	e := &Engine{
		cfg: cfg, store: s, broker: b, chunker: chunk, embedder: embedder,
		embedModel: cfg.Embedding.Model, chatLLM: chatLLM, enhancer: enhancer,
		retriever: retriever, coord: coord, registry: registry, executor: executor,
		reasoner: reasoner, cache: c, auditor: auditor, metrics: metrics, graphB: graphB,
	}

	if cfg.FilesRoot != "" {
		e.RegisterSource("files", filesource.New(cfg.FilesRoot, nil))
	}

	return e, nil
}

// RegisterSource attaches an ingest.Source under name, for a caller to
// drive with RunIngest/RunIngestSource. Unregistered names in the fixed
// source order are simply skipped by a full run.
func (e *Engine) RegisterSource(name string, src ingest.Source) {
	e.coord.Register(name, src)
}

// RunIngest drives every registered source through upsert, index, and
// embed, in the fixed source order, and recomputes contact-relationship
// scores once ingestion settles.
func (e *Engine) RunIngest(ctx context.Context, fullSync bool, since *time.Time) ([]ingest.IngestStats, error) {
	start := time.Now()
	stats, err := e.coord.RunAll(ctx, fullSync, since)
	e.metrics.Record("ingest.run_all", time.Since(start))
	if err != nil {
		return stats, err
	}
	if err := e.graphB.RecomputeAll(ctx); err != nil {
		return stats, fmt.Errorf("recomputing contact relationships: %w", err)
	}
	return stats, nil
}

// RunIngestSource runs exactly one registered source by name.
func (e *Engine) RunIngestSource(ctx context.Context, name string, fullSync bool, since *time.Time) (ingest.IngestStats, error) {
	return e.coord.RunSource(ctx, name, fullSync, since)
}

// Search runs hybrid retrieval directly, without the reasoning loop —
// for callers that want raw ranked results rather than a synthesized
// answer (e.g. the search_data tool itself, or a UI results list).
func (e *Engine) Search(ctx context.Context, query string, opts retrieval.SearchOptions) ([]store.RetrievalResult, *retrieval.SearchTrace, error) {
	start := time.Now()
	results, trace, err := e.retriever.Search(ctx, query, opts)
	e.metrics.Record("retrieval.search", time.Since(start))
	return results, trace, err
}

// Ask enhances the query, then runs it through the tool-selection
// reasoning loop: the LLM picks a tool (search, create a reminder,
// append a note, move a file, list events), the executor validates and
// runs it under the dry-run/confirm protocol, and the tool's output
// becomes the answer.
func (e *Engine) Ask(ctx context.Context, query string) (*Answer, error) {
	enhanced, err := e.enhancer.Enhance(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("enhancing query: %w", err)
	}

	result, err := e.reasoner.Run(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("reasoning: %w", err)
	}

	answer := &Answer{
		Text:     result.Output.Output,
		ToolName: result.ToolName,
		Rounds:   result.Rounds,
		Steps:    result.Steps,
		Enhanced: enhanced,
	}
	if result.ToolName == "search_data" {
		results, trace, serr := e.Search(ctx, query, retrieval.SearchOptions{})
		if serr == nil {
			answer.Results = results
			answer.RetrievalTrace = trace
		}
	}
	return answer, nil
}

// Store returns the underlying store for diagnostic access.
func (e *Engine) Store() *store.Store { return e.store }

// Close shuts down the broker and the underlying store.
func (e *Engine) Close() error {
	if err := e.broker.Close(context.Background()); err != nil {
		e.store.Close()
		return fmt.Errorf("closing broker: %w", err)
	}
	return e.store.Close()
}
