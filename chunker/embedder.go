package chunker

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/kenny-project/kenny/llm"
)

// Embedder turns chunk text into L2-normalized embedding vectors, batching
// requests to the provider and fanning independent batches out
// concurrently. Normalization happens here, at the storage boundary, so
// every caller of store.InsertEmbedding receives a unit vector regardless
// of what the underlying provider returns.
type Embedder struct {
	provider    llm.Provider
	batchSize   int
	concurrency int
	expectedDim int
}

// NewEmbedder returns an Embedder with the given batch size and fan-out
// width, validating every returned vector against expectedDim.
// batchSize <= 0 defaults to 32; concurrency <= 0 defaults to 4;
// expectedDim <= 0 disables the dimension check.
func NewEmbedder(provider llm.Provider, batchSize, concurrency, expectedDim int) *Embedder {
	if batchSize <= 0 {
		batchSize = 32
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Embedder{provider: provider, batchSize: batchSize, concurrency: concurrency, expectedDim: expectedDim}
}

// Embed embeds every text, preserving input order in the result. It splits
// texts into batches and embeds batches concurrently via errgroup, so the
// first batch failure cancels the rest and is returned immediately. Every
// vector's length is checked against expectedDim before normalization —
// the |vector| == dimensions invariant is enforced here, not left to the
// store's vec0 column to reject.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for start := 0; start < len(texts); start += e.batchSize {
		start := start
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		g.Go(func() error {
			vecs, err := e.provider.Embed(gctx, batch)
			if err != nil {
				return &ApiError{Msg: fmt.Sprintf("batch [%d:%d): %v", start, end, err)}
			}
			if len(vecs) != len(batch) {
				return &InvalidResponseError{Msg: fmt.Sprintf("batch [%d:%d): expected %d vectors, got %d", start, end, len(batch), len(vecs))}
			}
			for i, v := range vecs {
				if e.expectedDim > 0 && len(v) != e.expectedDim {
					return &DimensionMismatchError{Expected: e.expectedDim, Actual: len(v)}
				}
				out[start+i] = normalize(v)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// normalize returns the L2-normalized (unit-length) copy of v. A
// zero-length or all-zero vector is returned unchanged: cosine similarity
// against it is undefined either way.
func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}
