package domain

import "errors"

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotImplemented indicates functionality is not yet available.
	ErrNotImplemented = errors.New("not implemented")

	// ErrUnsupportedType indicates an unknown provider, backend or processor type.
	ErrUnsupportedType = errors.New("unsupported type")

	// ErrEmbeddingUnavailable indicates the embedding provider could not be reached
	// or failed to produce vectors. Ingestion retries later; search fails the request.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrVectorIndexUnavailable indicates the vector index is not loaded.
	ErrVectorIndexUnavailable = errors.New("vector index unavailable")

	// ErrStoreUnavailable indicates the chunk store could not be reached.
	ErrStoreUnavailable = errors.New("chunk store unavailable")

	// ErrDimensionMismatch indicates a vector does not match the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrIndexCorrupt indicates a snapshot failed its integrity checks.
	ErrIndexCorrupt = errors.New("index snapshot corrupt")

	// ErrQueueClosed indicates the ingestion queue has been closed.
	ErrQueueClosed = errors.New("queue closed")
)

// IsUnavailable reports whether err is a transient upstream failure.
// Work failing with one of these errors is retried rather than marked failed.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrEmbeddingUnavailable) ||
		errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrVectorIndexUnavailable)
}
