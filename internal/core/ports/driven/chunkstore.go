package driven

import (
	"context"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// ChunkStore persists chunks. It is the source of truth the vector index
// is rebuilt from. Implementations: SQLite, Postgres (pgvector), memory.
type ChunkStore interface {
	// UpsertChunks inserts or replaces chunks keyed by (document_id, chunk_index).
	UpsertChunks(ctx context.Context, chunks []domain.Chunk) error

	// ReplaceChunks atomically replaces all chunks of a document.
	ReplaceChunks(ctx context.Context, documentID string, chunks []domain.Chunk) error

	// ListChunks returns the chunks of a document ordered by index.
	ListChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)

	// GetChunk retrieves a chunk by ID. Returns domain.ErrNotFound when absent.
	GetChunk(ctx context.Context, chunkID string) (*domain.Chunk, error)

	// DeleteChunks removes all chunks of a document and returns how many existed.
	DeleteChunks(ctx context.Context, documentID string) (int, error)

	// SetEmbeddings stores vectors for existing chunks, keyed by chunk ID.
	SetEmbeddings(ctx context.Context, model string, embeddings map[string][]float32) error

	// CountIndexedChunks counts chunks whose document is indexed.
	CountIndexedChunks(ctx context.Context) (int, error)

	// IndexedChunkIDs returns the IDs of chunks whose document is indexed.
	IndexedChunkIDs(ctx context.Context) ([]string, error)

	// StreamIndexedChunks calls fn for every chunk whose document is indexed,
	// ordered by (document_id, chunk_index). Document metadata and filename
	// are merged into the chunk metadata. Iteration stops at the first error.
	StreamIndexedChunks(ctx context.Context, fn func(domain.Chunk) error) error

	// Stats describes the store.
	Stats(ctx context.Context) (domain.StoreStats, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// DocumentStore persists documents and their indexing status.
type DocumentStore interface {
	// SaveDocument stores or updates a document.
	SaveDocument(ctx context.Context, doc *domain.Document) error

	// EnsureDocument creates a document row with the given status if none exists.
	EnsureDocument(ctx context.Context, id string, status domain.DocumentStatus) error

	// GetDocument retrieves a document by ID. Returns domain.ErrNotFound when absent.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// UpdateStatus records a status transition.
	UpdateStatus(ctx context.Context, id string, update domain.StatusUpdate) error
}
