package domain

import "time"

// IndexTypeFlatIP names the exact inner-product index.
const IndexTypeFlatIP = "FlatIP"

// IndexStats describes the vector index.
type IndexStats struct {
	// TotalVectors counts physical slots, including soft-deleted ones.
	TotalVectors int `json:"total_vectors"`

	// TotalChunks counts live chunk mappings.
	TotalChunks int `json:"total_chunks"`

	// StaleVectors counts soft-deleted slots awaiting a rebuild.
	StaleVectors int `json:"stale_vectors"`

	Dimension      int    `json:"dimension"`
	IndexType      string `json:"index_type"`
	IsTrained      bool   `json:"is_trained"`
	RebuildPending bool   `json:"rebuild_pending"`
}

// EmbeddingInfo describes the embedding model in use.
type EmbeddingInfo struct {
	Name      string `json:"name"`
	Dimension int    `json:"dimension"`
	BatchSize int    `json:"batch_size"`
	Status    string `json:"status"`
}

// StoreStats describes the chunk store.
type StoreStats struct {
	TotalDocuments int `json:"total_documents"`
	TotalChunks    int `json:"total_chunks"`
	IndexedChunks  int `json:"indexed_chunks"`
}

// ChunkInput is a pre-chunked piece of text submitted for indexing.
type ChunkInput struct {
	Index     int            `json:"index"`
	Content   string         `json:"content"`
	Sentences []string       `json:"sentences,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// IndexRequest submits the chunks of one document.
type IndexRequest struct {
	DocumentID string       `json:"document_id"`
	Chunks     []ChunkInput `json:"chunks"`
}

// IndexResponse reports an indexing run.
type IndexResponse struct {
	DocumentID       string `json:"document_id"`
	ChunksProcessed  int    `json:"chunks_processed"`
	VectorsAdded     int    `json:"vectors_added"`
	ProcessingTimeMs int64  `json:"processing_time_ms"`
	Status           string `json:"status"`
}

// Externally visible indexing states.
const (
	IndexStateNotFound   = "not_found"
	IndexStateProcessing = "processing"
	IndexStateCompleted  = "completed"
	IndexStateFailed     = "failed"
)

// IndexStatus reports the indexing state of a document.
type IndexStatus struct {
	DocumentID      string     `json:"document_id"`
	Status          string     `json:"status"`
	ChunksTotal     int        `json:"chunks_total"`
	ChunksProcessed int        `json:"chunks_processed"`
	VectorsAdded    int        `json:"vectors_added"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       *time.Time `json:"created_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// DeleteResponse reports a document removal.
type DeleteResponse struct {
	DocumentID     string `json:"document_id"`
	ChunksDeleted  int    `json:"chunks_deleted"`
	VectorsDeleted int    `json:"vectors_deleted"`
	Status         string `json:"status"`
	RebuildPending bool   `json:"rebuild_pending"`
}

// Reconcile outcomes.
const (
	ReconcileInSync  = "in_sync"
	ReconcileRebuilt = "rebuilt"
	ReconcileEmpty   = "empty"
)

// ReconcileReport is the outcome of comparing the chunk store with the index.
type ReconcileReport struct {
	Status                string `json:"status"`
	ChunkStoreCount       int    `json:"chunk_store_count"`
	IndexCount            int    `json:"index_count"`
	Rebuilt               bool   `json:"rebuilt"`
	Reason                string `json:"reason,omitempty"`
	Documents             int    `json:"documents"`
	ReusedEmbeddings      int    `json:"reused_embeddings"`
	RegeneratedEmbeddings int    `json:"regenerated_embeddings"`
	DurationMs            int64  `json:"duration_ms"`
}

// Health states.
const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"
)

// HealthCheck is the result of one dependency check.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthReport aggregates dependency checks.
type HealthReport struct {
	Status string                 `json:"status"`
	Checks map[string]HealthCheck `json:"checks"`
}
