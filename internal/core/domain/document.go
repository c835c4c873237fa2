package domain

import "time"

// DocumentStatus is the indexing state of a document.
type DocumentStatus string

// Document states. Transitions are pending -> processing -> indexed | failed.
// Re-processing an indexed document moves it back to processing.
const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusIndexed    DocumentStatus = "indexed"
	StatusFailed     DocumentStatus = "failed"
	StatusDeleted    DocumentStatus = "deleted"
)

// IsValid returns true if the status is recognised.
func (s DocumentStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusIndexed, StatusFailed, StatusDeleted:
		return true
	default:
		return false
	}
}

// String returns the string representation.
func (s DocumentStatus) String() string {
	return string(s)
}

// Document is extracted text handed to the indexer.
// Format parsing happens upstream; Content is plain text.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// Filename is the original file name, if any.
	Filename string

	// FileType is the original file type (pdf, txt, ...), if known.
	FileType string

	// Content is the extracted text to chunk and embed.
	Content string

	// Metadata contains arbitrary key-value pairs copied onto every chunk.
	Metadata map[string]any

	// Status is the indexing state.
	Status DocumentStatus

	// ChunksTotal is the number of chunks produced by the last run.
	ChunksTotal int

	// VectorsAdded is the number of vectors added by the last run.
	VectorsAdded int

	// Error holds the failure message of the last run.
	Error string

	// CreatedAt is when the document was first stored.
	CreatedAt time.Time

	// UpdatedAt is when the document was last changed.
	UpdatedAt time.Time

	// IndexedAt is when the document last reached StatusIndexed.
	IndexedAt *time.Time
}

// StatusUpdate describes a status transition written to the document store.
type StatusUpdate struct {
	Status       DocumentStatus
	ChunksTotal  int
	VectorsAdded int
	Error        string
}

// IndexEvent asks the ingestion consumer to (re)index a document.
type IndexEvent struct {
	DocumentID string `json:"document_id"`
}

// Delivery is an IndexEvent received from the queue.
// It must be acknowledged or rejected exactly once.
type Delivery struct {
	// ID identifies the delivery for Ack/Nack.
	ID string

	// Event is the payload.
	Event IndexEvent

	// Attempt counts deliveries of this event, starting at 1.
	Attempt int
}
