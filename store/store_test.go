//go:build cgo

package store

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath, 4) // dim=4 for test vectors
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleDoc(appSource, sourceID string) Document {
	return Document{
		Type:      TypeMessage,
		Title:     "hello",
		Content:   "hello world",
		AppSource: appSource,
		SourceID:  sourceID,
		Hash:      HashDocument(sourceID, "hello", "hello world"),
	}
}

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.EmbeddingDim() != 4 {
		t.Fatalf("expected embedding dim 4, got %d", s.EmbeddingDim())
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	s, err := New(dbPath, 4)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	defer s.Close()
}

func TestUpsertDocumentInsertThenUpdateThenNoop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	doc := sampleDoc("messages", "msg-1")

	id, created, updated, err := s.UpsertDocument(ctx, doc, 100)
	if err != nil {
		t.Fatalf("upsert insert: %v", err)
	}
	if !created || updated {
		t.Fatalf("expected created=true updated=false, got created=%v updated=%v", created, updated)
	}

	// Re-ingest identical content: no-op except last_seen_at.
	id2, created2, updated2, err := s.UpsertDocument(ctx, doc, 200)
	if err != nil {
		t.Fatalf("upsert identical: %v", err)
	}
	if id2 != id || created2 || updated2 {
		t.Fatalf("expected pure seen bump, got id=%d created=%v updated=%v", id2, created2, updated2)
	}

	got, err := s.GetDocument(ctx, id)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if got.LastSeenAt != 200 {
		t.Fatalf("expected last_seen_at=200, got %d", got.LastSeenAt)
	}

	// Changed content: updates in place, same id.
	doc.Content = "hello world, revised"
	doc.Hash = HashDocument("msg-1", "hello", doc.Content)
	id3, created3, updated3, err := s.UpsertDocument(ctx, doc, 300)
	if err != nil {
		t.Fatalf("upsert changed: %v", err)
	}
	if id3 != id || created3 || !updated3 {
		t.Fatalf("expected in-place update, got id=%d created=%v updated=%v", id3, created3, updated3)
	}
}

func TestTombstoneStaleDocuments(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("messages", "stale-1")
	if _, _, _, err := s.UpsertDocument(ctx, doc, 100); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	n, err := s.TombstoneStaleDocuments(ctx, "messages", 200)
	if err != nil {
		t.Fatalf("tombstone: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 tombstoned, got %d", n)
	}

	docs, err := s.ListDocuments(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 0 {
		t.Fatalf("expected tombstoned document to be excluded from live list, got %d", len(docs))
	}
}

func TestInsertChunksAndGetByDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("files", "file-1")
	docID, _, _, err := s.UpsertDocument(ctx, doc, 100)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	chunks := []Chunk{
		{DocumentID: docID, ChunkIndex: 0, Text: "first", StartOffset: 0, EndOffset: 5},
		{DocumentID: docID, ChunkIndex: 1, Text: "second", StartOffset: 5, EndOffset: 11},
	}
	ids, err := s.InsertChunks(ctx, chunks)
	if err != nil {
		t.Fatalf("insert chunks: %v", err)
	}
	if len(ids) != 2 {
		t.Fatalf("expected 2 chunk ids, got %d", len(ids))
	}

	got, err := s.GetChunksByDocument(ctx, docID)
	if err != nil {
		t.Fatalf("get chunks: %v", err)
	}
	if len(got) != 2 || got[0].ChunkIndex != 0 || got[1].ChunkIndex != 1 {
		t.Fatalf("unexpected chunk order/content: %+v", got)
	}
}

func TestInsertEmbeddingAndVectorSearch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDoc("files", "file-2")
	docID, _, _, err := s.UpsertDocument(ctx, doc, 100)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	ids, err := s.InsertChunks(ctx, []Chunk{{DocumentID: docID, ChunkIndex: 0, Text: "hello world"}})
	if err != nil {
		t.Fatalf("insert chunks: %v", err)
	}

	vec := []float32{1, 0, 0, 0}
	if err := s.InsertEmbedding(ctx, ids[0], "test-model", vec); err != nil {
		t.Fatalf("insert embedding: %v", err)
	}

	results, err := s.VectorSearch(ctx, vec, 5, 100)
	if err != nil {
		t.Fatalf("vector search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Score < 0.99 {
		t.Fatalf("expected near-1.0 similarity for identical vector, got %f", results[0].Score)
	}
}

func TestSerializeDeserializeFloat32RoundTrip(t *testing.T) {
	v := []float32{1.5, -2.25, 0, 3.125}
	got := DeserializeFloat32(serializeFloat32(v))
	if len(got) != len(v) {
		t.Fatalf("length mismatch: got %d want %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("element %d: got %v want %v", i, got[i], v[i])
		}
	}
}

func TestHashDocumentDeterministic(t *testing.T) {
	a := HashDocument("id-1", "title", "body")
	b := HashDocument("id-1", "title", "body")
	if a != b {
		t.Fatalf("expected deterministic hash, got %q vs %q", a, b)
	}
	c := HashDocument("id-1", "title", "different body")
	if a == c {
		t.Fatalf("expected different hash for different content")
	}
}

func TestAuditRecordSafetyInvariant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ok, err := s.HasDryRunAudit(ctx, "plan-1", "hash-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if ok {
		t.Fatalf("expected no dry-run audit yet")
	}

	if _, err := s.InsertAuditRecord(ctx, AuditRecord{
		CorrelationID: "corr-1", PlanID: "plan-1", StepIndex: 0,
		ToolName: "create_reminder", IsDryRun: true, OperationHash: "hash-1",
	}); err != nil {
		t.Fatalf("insert dry-run audit: %v", err)
	}

	ok, err = s.HasDryRunAudit(ctx, "plan-1", "hash-1")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !ok {
		t.Fatalf("expected dry-run audit to be found")
	}

	records, err := s.AuditRecordsByPlan(ctx, "plan-1")
	if err != nil {
		t.Fatalf("records by plan: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
}
