package driving

import (
	"context"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// IndexService manages what is in the index.
type IndexService interface {
	// IndexChunks embeds and indexes pre-chunked text for a document.
	IndexChunks(ctx context.Context, req domain.IndexRequest) (*domain.IndexResponse, error)

	// SubmitDocument stores document text as pending and queues it for ingestion.
	SubmitDocument(ctx context.Context, doc *domain.Document) error

	// Status reports the indexing state of a document.
	Status(ctx context.Context, documentID string) (*domain.IndexStatus, error)

	// Delete removes a document from the index and the chunk store.
	// Returns domain.ErrNotFound when nothing was indexed for it.
	Delete(ctx context.Context, documentID string) (*domain.DeleteResponse, error)

	// Flush waits for outstanding background snapshot writes.
	Flush(ctx context.Context) error
}

// Reconciler keeps the vector index consistent with the chunk store.
type Reconciler interface {
	// Reconcile compares both sides and rebuilds the index when they
	// diverge or when force is set.
	Reconcile(ctx context.Context, force bool) (*domain.ReconcileReport, error)
}

// IngestionConsumer processes index events from the queue.
type IngestionConsumer interface {
	// Run consumes events until ctx is cancelled. The in-flight document
	// is finished before Run returns.
	Run(ctx context.Context) error
}

// HealthService reports dependency health.
type HealthService interface {
	// Health checks the embedding provider, the vector index and the chunk store.
	Health(ctx context.Context) domain.HealthReport
}

// SettingsService exposes effective settings.
type SettingsService interface {
	// Get returns settings resolved from defaults, file and environment.
	Get() (*domain.Settings, error)

	// Set stores a single configuration key.
	Set(key string, value string) error

	// ConfigPath returns where settings are persisted.
	ConfigPath() string
}
