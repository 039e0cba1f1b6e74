package memorystore

import "context"

// VectorResult is a single nearest-neighbor hit. Score is higher-is-closer
// and already normalized to [0,1] by the backend.
type VectorResult struct {
	ID       string
	Score    float64
	Metadata map[string]string
}

// VectorStore is the minimal pluggable vector-backend contract, mirrored
// from the teacher's internal/persistence/databases.VectorStore so the
// Qdrant and in-memory implementations stay interchangeable.
type VectorStore interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
	SimilaritySearch(ctx context.Context, vector []float32, k int, filter map[string]string) ([]VectorResult, error)

	// BatchSimilaritySearch resolves the single nearest neighbor for each
	// of vectors in one backend round trip, satisfying spec.md §4.2's
	// batch_find_similar latency requirement. The returned slice has the
	// same length and order as vectors; an entry is empty when nothing in
	// filter matches.
	BatchSimilaritySearch(ctx context.Context, vectors [][]float32, filter map[string]string) ([][]VectorResult, error)

	Dimension() int
	Close() error
}
