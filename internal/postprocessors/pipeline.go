// Package postprocessors turns document text into chunks through a
// configurable chain of processors.
package postprocessors

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// Ensure Pipeline implements the interface.
var _ driven.PostProcessorPipeline = (*Pipeline)(nil)

// Pipeline runs processors in order. The first creates chunks from the
// document text; later ones may rewrite or drop them.
type Pipeline struct {
	processors []driven.PostProcessor
}

// NewPipeline creates a pipeline over processors.
func NewPipeline(processors ...driven.PostProcessor) *Pipeline {
	return &Pipeline{processors: processors}
}

// Process runs doc through every processor. It stops at the first error
// or when ctx is cancelled between processors.
func (p *Pipeline) Process(ctx context.Context, doc *domain.Document) ([]domain.Chunk, error) {
	if doc == nil {
		return nil, fmt.Errorf("%w: document is required", domain.ErrInvalidInput)
	}

	var chunks []domain.Chunk
	for _, processor := range p.processors {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		started := time.Now()

		var err error
		chunks, err = processor.Process(ctx, doc, chunks)
		if err != nil {
			return nil, fmt.Errorf("processor %s: %w", processor.Name(), err)
		}
		logger.Debug("processor finished", "processor", processor.Name(), "document_id", doc.ID,
			"chunks", len(chunks), "duration", time.Since(started))
	}
	return chunks, nil
}

// Add appends a processor.
func (p *Pipeline) Add(processor driven.PostProcessor) {
	p.processors = append(p.processors, processor)
}

// Names returns the processor names in run order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.processors))
	for i, processor := range p.processors {
		names[i] = processor.Name()
	}
	return names
}

// MinContentLength returns the largest minimum text length declared by a
// processor. Shorter documents produce no chunks.
func (p *Pipeline) MinContentLength() int {
	minLen := 0
	for _, processor := range p.processors {
		if m, ok := processor.(interface{ MinChunkLength() int }); ok {
			minLen = max(minLen, m.MinChunkLength())
		}
	}
	return minLen
}
