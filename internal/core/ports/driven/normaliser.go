package driven

import (
	"context"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// Normaliser rewrites submitted document content into the plain text that
// gets chunked. Each normaliser handles specific file types (md, html, ...).
type Normaliser interface {
	// SupportedFileTypes returns the lower case file types, without a dot.
	SupportedFileTypes() []string

	// Priority returns the selection priority (higher = preferred).
	// Format normalisers should return 50-89.
	// Fallback normalisers should return 1-9.
	Priority() int

	// Normalise rewrites doc.Content in place and may add metadata.
	// Keys already present in doc.Metadata are never overwritten.
	Normalise(ctx context.Context, doc *domain.Document) error
}
