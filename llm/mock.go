package llm

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math"
)

// mockDim is the embedding dimension produced by the mock provider. It
// matches kenny's DefaultConfig EmbeddingDim so tests can wire the mock
// straight into a real Store without a dimension mismatch.
const mockDim = 768

// mockProvider is a deterministic, offline Provider used in tests and for
// local development without a running model server. It never makes a
// network call: embeddings are derived from a hash of the input text, and
// chat responses echo back the last user message.
type mockProvider struct{}

// NewMock returns a deterministic offline Provider.
func NewMock() Provider {
	return mockProvider{}
}

func (mockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var last string
	for _, m := range req.Messages {
		if m.Role == "user" {
			last = m.Content
		}
	}
	return &ChatResponse{
		Content:      fmt.Sprintf("mock response to: %s", last),
		Model:        "mock",
		FinishReason: "stop",
	}, nil
}

func (mockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t)
	}
	return out, nil
}

// deterministicVector derives a mockDim-length unit vector from the
// SHA-256 digest of text, expanded by re-hashing as needed.
func deterministicVector(text string) []float32 {
	v := make([]float32, mockDim)
	seed := sha256.Sum256([]byte(text))
	block := seed
	for i := 0; i < mockDim; i++ {
		if i > 0 && i%32 == 0 {
			block = sha256.Sum256(block[:])
		}
		b := block[i%32]
		v[i] = float32(int(b)-128) / 128.0
	}

	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= norm
	}
	return v
}
