package retrieval

import (
	"sort"

	"github.com/kenny-project/kenny/store"
)

type fusedEntry struct {
	result    store.RetrievalResult
	score     float64
	bm25Norm  float64
	embedNorm float64
}

// fuse combines lexical and vector results by min-max normalizing each
// branch's scores independently onto [0, 1], then taking the weighted
// sum score = wBM25*bm25_norm + wEmb*emb_norm. A result present in only
// one branch is scored using that branch's normalized score alone (the
// other term contributes 0, since it never matched). Each entry's
// per-branch normalized contribution is preserved on the result as
// BM25Score/EmbeddingScore, distinct from the combined Score. Results
// are returned sorted by fused score descending, ties broken by
// UpdatedAt descending and then DocumentID ascending, deduplicated by
// DocumentID.
func fuse(bm25Results, vecResults []store.RetrievalResult, wBM25, wEmb float64, limit int) []store.RetrievalResult {
	bm25Norm := minMaxNormalize(bm25Results)
	vecNorm := minMaxNormalize(vecResults)

	byDoc := make(map[int64]*fusedEntry)

	for i, r := range bm25Results {
		byDoc[r.DocumentID] = &fusedEntry{result: r, score: wBM25 * bm25Norm[i], bm25Norm: bm25Norm[i]}
	}
	for i, r := range vecResults {
		if e, ok := byDoc[r.DocumentID]; ok {
			e.score += wEmb * vecNorm[i]
			e.embedNorm = vecNorm[i]
		} else {
			byDoc[r.DocumentID] = &fusedEntry{result: r, score: wEmb * vecNorm[i], embedNorm: vecNorm[i]}
		}
	}

	entries := make([]*fusedEntry, 0, len(byDoc))
	for _, e := range byDoc {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.result.UpdatedAt != b.result.UpdatedAt {
			return a.result.UpdatedAt > b.result.UpdatedAt
		}
		return a.result.DocumentID < b.result.DocumentID
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]store.RetrievalResult, len(entries))
	for i, e := range entries {
		e.result.Score = e.score
		e.result.BM25Score = e.bm25Norm
		e.result.EmbeddingScore = e.embedNorm
		out[i] = e.result
	}
	return out
}

// minMaxNormalize rescales scores onto [0, 1]. A branch with a single
// result, or where every score is equal, normalizes to 1.0 for all
// entries (there's nothing to distinguish them on).
func minMaxNormalize(results []store.RetrievalResult) []float64 {
	out := make([]float64, len(results))
	if len(results) == 0 {
		return out
	}

	min, max := results[0].Score, results[0].Score
	for _, r := range results {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}

	spread := max - min
	for i, r := range results {
		if spread == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = (r.Score - min) / spread
	}
	return out
}
