package driven

import (
	"context"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// VectorIndex provides semantic similarity search operations.
// Vectors are expected to be L2-normalised so inner product equals cosine similarity.
//
// Slots are assigned sequentially and never reused. Deletion is soft: the
// chunk mapping disappears but the vector stays until Rebuild.
type VectorIndex interface {
	// Add appends one vector per chunk ID. Validation happens before any
	// mutation, so on error nothing is applied. Returns the assigned slots.
	Add(ctx context.Context, entries []domain.IndexEntry) ([]int64, error)

	// Search returns up to k live hits in descending score order.
	// A threshold greater than zero excludes lower scores.
	Search(ctx context.Context, query []float32, k int, threshold float64) ([]VectorHit, error)

	// Delete soft-deletes the given chunks and returns how many were live.
	Delete(ctx context.Context, chunkIDs []string) (int, error)

	// ChunkIDs returns the live chunk IDs.
	ChunkIDs(ctx context.Context) ([]string, error)

	// Rebuild replaces the whole index with entries. The new structure is
	// swapped in only once fully built.
	Rebuild(ctx context.Context, entries []domain.IndexEntry) error

	// Persist writes a snapshot.
	Persist(ctx context.Context) error

	// Load replaces the in-memory state with the snapshot. A missing or
	// corrupt snapshot yields an empty index.
	Load(ctx context.Context) error

	// Stats describes the index.
	Stats() domain.IndexStats

	// Dimension returns the vector size.
	Dimension() int

	// Close releases resources.
	Close() error
}

// VectorHit represents a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Slot is the index position of the vector.
	Slot int64

	// Similarity is the inner product with the query.
	Similarity float64

	// Metadata is the chunk metadata held by the index.
	Metadata map[string]any
}
