package driven

import (
	"context"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// PostProcessor is one stage of the chunking pipeline. The first stage
// receives nil chunks and produces them from doc.Content; later stages
// rewrite what they are given.
type PostProcessor interface {
	Name() string
	Process(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) ([]domain.Chunk, error)
}

// PostProcessorPipeline turns a document into its final chunks.
type PostProcessorPipeline interface {
	Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error)

	// MinContentLength is the shortest content that yields any chunk.
	// Shorter documents are rejected before the pipeline runs.
	MinContentLength() int
}
