package driven

import (
	"context"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// NormaliserRegistry selects the normaliser for a document by file type.
// Documents with an unknown type go to the highest priority fallback.
type NormaliserRegistry interface {
	// Normalise rewrites doc with the best matching normaliser.
	Normalise(ctx context.Context, doc *domain.Document) error

	// Register adds a normaliser to the registry.
	Register(normaliser Normaliser)

	// SupportedFileTypes returns all file types with a dedicated normaliser.
	SupportedFileTypes() []string
}
