package retrieval

import (
	"context"
	"fmt"

	"github.com/kenny-project/kenny/llm"
	"github.com/kenny-project/kenny/store"
)

// vectorSearch embeds the query and runs cosine-distance KNN search
// against vec_chunks via the sqlite-vec virtual table.
func vectorSearch(ctx context.Context, s *store.Store, embedder llm.Provider, query string, limit int) ([]store.RetrievalResult, error) {
	embeddings, err := embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("empty embedding returned for query")
	}
	return s.VectorSearch(ctx, embeddings[0], limit, 0)
}
