package driven

import "context"

// EmbeddingService turns text into dense vectors. Storing and searching
// those vectors is VectorIndex's job.
//
// Adapters: local (feature hashing, offline), ollama and openai.
type EmbeddingService interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions is the vector length the model produces. The vector
	// index is sized from it.
	Dimensions() int

	// ModelName identifies the model in stats and logs.
	ModelName() string

	// Ping checks that the backend is reachable and the model is usable.
	Ping(ctx context.Context) error

	Close() error
}
