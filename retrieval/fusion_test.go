package retrieval

import (
	"testing"

	"github.com/kenny-project/kenny/store"
)

func TestFuseWeightedSumPrefersDocInBothBranches(t *testing.T) {
	bm25 := []store.RetrievalResult{
		{DocumentID: 1, Score: 10},
		{DocumentID: 2, Score: 5},
	}
	vec := []store.RetrievalResult{
		{DocumentID: 1, Score: 0.9},
		{DocumentID: 3, Score: 0.8},
	}

	fused := fuse(bm25, vec, 0.5, 0.5, 10)
	if len(fused) != 3 {
		t.Fatalf("expected 3 unique documents, got %d", len(fused))
	}
	if fused[0].DocumentID != 1 {
		t.Fatalf("expected doc 1 (present in both branches) to rank first, got %d", fused[0].DocumentID)
	}
	if fused[0].BM25Score == 0 || fused[0].EmbeddingScore == 0 {
		t.Fatalf("expected doc 1 to carry both per-branch scores, got bm25=%v embedding=%v",
			fused[0].BM25Score, fused[0].EmbeddingScore)
	}

	for _, r := range fused {
		if r.DocumentID == 2 && r.EmbeddingScore != 0 {
			t.Fatalf("doc 2 only matched bm25, expected EmbeddingScore=0, got %v", r.EmbeddingScore)
		}
		if r.DocumentID == 3 && r.BM25Score != 0 {
			t.Fatalf("doc 3 only matched vector, expected BM25Score=0, got %v", r.BM25Score)
		}
	}
}

func TestFuseRespectsLimit(t *testing.T) {
	bm25 := []store.RetrievalResult{{DocumentID: 1, Score: 1}, {DocumentID: 2, Score: 2}, {DocumentID: 3, Score: 3}}
	fused := fuse(bm25, nil, 1.0, 0.0, 2)
	if len(fused) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(fused))
	}
}

func TestFuseEmptyBothBranches(t *testing.T) {
	if fused := fuse(nil, nil, 0.5, 0.5, 10); len(fused) != 0 {
		t.Fatalf("expected no results, got %d", len(fused))
	}
}

func TestMinMaxNormalizeSingleResult(t *testing.T) {
	norm := minMaxNormalize([]store.RetrievalResult{{Score: 5}})
	if len(norm) != 1 || norm[0] != 1.0 {
		t.Fatalf("expected single result to normalize to 1.0, got %v", norm)
	}
}

func TestMinMaxNormalizeSpread(t *testing.T) {
	results := []store.RetrievalResult{{Score: 0}, {Score: 5}, {Score: 10}}
	norm := minMaxNormalize(results)
	if norm[0] != 0 || norm[2] != 1 {
		t.Fatalf("expected min->0 max->1, got %v", norm)
	}
	if norm[1] != 0.5 {
		t.Fatalf("expected midpoint -> 0.5, got %v", norm[1])
	}
}
