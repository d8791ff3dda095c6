//go:build cgo

package retrieval

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/kenny-project/kenny/llm"
	"github.com/kenny-project/kenny/store"
)

func newTestEngine(t *testing.T) (*store.Store, *Engine) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.New(dbPath, 768)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	mock := llm.NewMock()
	return s, New(s, mock, Config{WeightBM25: 0.5, WeightEmbedding: 0.5})
}

func seedDoc(t *testing.T, s *store.Store, mock llm.Provider, title, content string) {
	t.Helper()
	ctx := context.Background()
	doc := store.Document{
		Type: store.TypeNote, Title: title, Content: content,
		AppSource: "notes", SourceID: title,
		Hash: store.HashDocument(title, title, content),
	}
	docID, _, _, err := s.UpsertDocument(ctx, doc, 100)
	if err != nil {
		t.Fatalf("upsert document: %v", err)
	}
	ids, err := s.InsertChunks(ctx, []store.Chunk{{DocumentID: docID, ChunkIndex: 0, Text: content}})
	if err != nil {
		t.Fatalf("insert chunks: %v", err)
	}
	vecs, err := mock.Embed(ctx, []string{content})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if err := s.InsertEmbedding(ctx, ids[0], "mock", vecs[0]); err != nil {
		t.Fatalf("insert embedding: %v", err)
	}
}

func TestHybridSearchFindsLexicalMatch(t *testing.T) {
	s, e := newTestEngine(t)
	seedDoc(t, s, e.embedder, "grocery list", "buy milk eggs and bread from the store")
	seedDoc(t, s, e.embedder, "unrelated", "the weather today is sunny and warm")

	results, trace, err := e.Search(context.Background(), "milk eggs bread", SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected at least one result")
	}
	if results[0].Title != "grocery list" {
		t.Fatalf("expected grocery list to rank first, got %q", results[0].Title)
	}
	if trace.FusedResults == 0 {
		t.Fatalf("expected trace to record fused results")
	}
	if trace.SearchType != SearchTypeHybrid {
		t.Fatalf("expected search_type=hybrid, got %q", trace.SearchType)
	}
}

// failingEmbedProvider embeds documents normally (via the mock) so seedDoc
// can populate vec_chunks, but fails every query-time Embed call, forcing
// the vector branch of a later Search to degrade.
type failingEmbedProvider struct {
	llm.Provider
}

func (failingEmbedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errEmbedUnavailable
}

type embedUnavailableError string

func (e embedUnavailableError) Error() string { return string(e) }

var errEmbedUnavailable = embedUnavailableError("embedding endpoint unavailable")

func TestHybridSearchDegradesToBM25OnlyWhenEmbeddingFails(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := store.New(dbPath, 768)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	mock := llm.NewMock()
	seedDoc(t, s, mock, "quarterly budget review slides", "quarterly budget review slides for the finance team")
	seedDoc(t, s, mock, "quarterly picnic budget", "quarterly picnic budget for the summer outing")

	degraded := New(s, failingEmbedProvider{}, Config{WeightBM25: 0.5, WeightEmbedding: 0.5})
	results, trace, err := degraded.Search(context.Background(), "budget review", SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) == 0 {
		t.Fatalf("expected a non-empty bm25-only result set")
	}
	if trace.SearchType != SearchTypeBM25Only {
		t.Fatalf("expected search_type=bm25_only, got %q", trace.SearchType)
	}
	for _, r := range results {
		if r.EmbeddingScore != 0 {
			t.Fatalf("expected EmbeddingScore=0 when the vector branch degraded, got %v", r.EmbeddingScore)
		}
	}
}

func TestHybridSearchWidensWindowForSynthesisQuery(t *testing.T) {
	_, e := newTestEngine(t)
	_, trace, err := e.Search(context.Background(), "list every single thing about all of the meetings this quarter and what happened", SearchOptions{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !trace.SynthesisMode {
		t.Fatalf("expected synthesis mode to be detected")
	}
}
