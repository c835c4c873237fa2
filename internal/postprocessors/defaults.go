package postprocessors

import (
	"fmt"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/postprocessors/chunker"
)

// ChunkerName is the registered name of the sentence chunker.
const ChunkerName = "chunker"

// NewDefaultRegistry returns a registry holding the built-in processors.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	_ = r.Register(ChunkerName, buildChunker)
	return r
}

// NewDefaultPipeline builds the chunking pipeline from settings.
func NewDefaultPipeline(settings domain.ChunkerSettings) (*Pipeline, error) {
	p, err := NewDefaultRegistry().Pipeline(settings, ChunkerName)
	if err != nil {
		return nil, fmt.Errorf("build pipeline: %w", err)
	}
	return p, nil
}

// buildChunker creates the sentence chunker. A zero chunk size falls back to
// the default; an overlap that leaves no room for new text is rejected.
func buildChunker(s domain.ChunkerSettings) (driven.PostProcessor, error) {
	if s.ChunkSize < 0 || s.ChunkOverlap < 0 || s.MinChunkLength < 0 {
		return nil, fmt.Errorf("%w: chunker sizes must not be negative", domain.ErrInvalidInput)
	}
	size := s.ChunkSize
	if size == 0 {
		size = chunker.DefaultChunkSize
	}
	if s.ChunkOverlap >= size {
		return nil, fmt.Errorf("%w: chunk_overlap %d must be below chunk_size %d",
			domain.ErrInvalidInput, s.ChunkOverlap, size)
	}

	return chunker.New(
		chunker.WithChunkSize(size),
		chunker.WithOverlap(s.ChunkOverlap),
		chunker.WithMinChunkLength(s.MinChunkLength),
	), nil
}
