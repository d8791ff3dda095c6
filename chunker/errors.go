package chunker

import "fmt"

// ApiError wraps a failure returned by the embedding provider's API call
// itself (network error, non-2xx status, provider-side failure).
type ApiError struct {
	Msg string
}

func (e *ApiError) Error() string {
	return fmt.Sprintf("embedding api error: %s", e.Msg)
}

// InvalidResponseError is returned when the embedding provider's response
// doesn't decode into the expected shape (wrong vector count, malformed
// payload) before any dimension check even runs.
type InvalidResponseError struct {
	Msg string
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("embedding invalid response: %s", e.Msg)
}

// DimensionMismatchError is returned when an embedding vector's length
// doesn't match the model's declared dimension — the |vector| ==
// dimensions == model.dimensions invariant's enforcement point, checked
// once at the Embedder boundary before a vector ever reaches the store.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// ChunkingError wraps a failure splitting document content into chunks
// (as opposed to a failure embedding an already-produced chunk). Logged
// and the item skipped; ingest continues per the data-error class.
type ChunkingError struct {
	Msg string
}

func (e *ChunkingError) Error() string {
	return fmt.Sprintf("chunking error: %s", e.Msg)
}
