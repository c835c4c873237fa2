package driving

import (
	"context"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// SearchService provides semantic search to external actors.
type SearchService interface {
	// Search embeds the query and returns the most similar chunks.
	// Invalid requests fail with domain.ErrInvalidInput before any embedding.
	Search(ctx context.Context, req domain.SearchRequest) (*domain.SearchResponse, error)

	// Stats returns index, model and search configuration details.
	Stats(ctx context.Context) (*domain.SearchStats, error)
}
