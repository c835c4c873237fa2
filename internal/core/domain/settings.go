package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"
)

const unknownDescription = "Unknown"

// EmbeddingProvider identifies the service that produces embeddings.
type EmbeddingProvider string

// Available embedding providers.
const (
	// EmbeddingProviderLocal is the built-in feature-hashing embedder.
	EmbeddingProviderLocal EmbeddingProvider = "local"

	// EmbeddingProviderOllama is a local Ollama instance.
	EmbeddingProviderOllama EmbeddingProvider = "ollama"

	// EmbeddingProviderOpenAI is the OpenAI embeddings API.
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"
)

// IsValid returns true if the provider is recognised.
func (p EmbeddingProvider) IsValid() bool {
	switch p {
	case EmbeddingProviderLocal, EmbeddingProviderOllama, EmbeddingProviderOpenAI:
		return true
	default:
		return false
	}
}

// RequiresAPIKey returns true if this provider needs an API key.
func (p EmbeddingProvider) RequiresAPIKey() bool {
	return p == EmbeddingProviderOpenAI
}

// String returns the string representation.
func (p EmbeddingProvider) String() string {
	return string(p)
}

// Description returns a human-readable description of the provider.
func (p EmbeddingProvider) Description() string {
	switch p {
	case EmbeddingProviderLocal:
		return "Local (feature hashing, offline)"
	case EmbeddingProviderOllama:
		return "Ollama (local)"
	case EmbeddingProviderOpenAI:
		return "OpenAI (cloud)"
	default:
		return unknownDescription
	}
}

// StorageBackend identifies the chunk store implementation.
type StorageBackend string

// Available storage backends.
const (
	StorageSQLite   StorageBackend = "sqlite"
	StoragePostgres StorageBackend = "postgres"
	StorageMemory   StorageBackend = "memory"
)

// IsValid returns true if the backend is recognised.
func (b StorageBackend) IsValid() bool {
	switch b {
	case StorageSQLite, StoragePostgres, StorageMemory:
		return true
	default:
		return false
	}
}

// ServerSettings configures the HTTP API.
type ServerSettings struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

// Addr returns the listen address.
func (s ServerSettings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageSettings configures the chunk store.
type StorageSettings struct {
	// Backend selects the store implementation.
	Backend StorageBackend

	// DataDir holds the SQLite database and the index snapshot.
	DataDir string

	// PostgresDSN is the connection string for the postgres backend.
	PostgresDSN string
}

// IndexSettings configures the vector index.
type IndexSettings struct {
	// SnapshotPath is the snapshot file. Empty means DataDir/index.sixf.
	SnapshotPath string
}

// EmbeddingSettings holds embedding provider configuration.
type EmbeddingSettings struct {
	// Provider is the embedding service provider.
	Provider EmbeddingProvider

	// Model is the embedding model name.
	Model string

	// BaseURL is the API endpoint (Ollama, or an OpenAI-compatible server).
	BaseURL string

	// APIKey is the API key (for OpenAI).
	APIKey string

	// Dimensions is the embedding vector size, fixed per deployment.
	Dimensions int

	// BatchSize is the number of texts embedded per provider call.
	BatchSize int

	// BatchTimeout bounds each provider call.
	BatchTimeout time.Duration

	// RequestsPerSecond throttles provider calls. Zero disables throttling.
	RequestsPerSecond float64

	// MaxTokens truncates inputs longer than the model context.
	MaxTokens int
}

// IsConfigured returns true if the embedding provider is set up.
func (e EmbeddingSettings) IsConfigured() bool {
	if !e.Provider.IsValid() {
		return false
	}
	if e.Provider.RequiresAPIKey() && e.APIKey == "" {
		return false
	}
	return true
}

// ChunkerSettings configures sentence-aligned chunking.
type ChunkerSettings struct {
	ChunkSize      int
	ChunkOverlap   int
	MinChunkLength int
}

// SearchSettings holds search behaviour configuration.
type SearchSettings struct {
	// MaxResults is the default result limit.
	MaxResults int

	// SimilarityThreshold is the advisory threshold reported by stats.
	SimilarityThreshold float64

	// Timeout bounds a whole search request.
	Timeout time.Duration

	// OverfetchFactor multiplies the candidate count when filters are set.
	OverfetchFactor int
}

// ConsumerSettings configures the ingestion consumer and its queue.
type ConsumerSettings struct {
	// Enabled starts the consumer with the server.
	Enabled bool

	// MaxAttempts marks a document failed after this many deliveries.
	MaxAttempts int

	// LeaseTimeout is how long a received job stays invisible to other receivers.
	LeaseTimeout time.Duration

	// RetryDelay postpones a rejected job.
	RetryDelay time.Duration

	// PollInterval is the idle wait between queue polls.
	PollInterval time.Duration
}

// InboxSettings configures the drop-directory watcher.
type InboxSettings struct {
	Enabled bool
	Dir     string
}

// LogSettings configures structured logging.
type LogSettings struct {
	// Level is debug, info, warn or error.
	Level string

	// Format is json or text.
	Format string
}

// Settings holds all service settings.
type Settings struct {
	Server    ServerSettings
	Storage   StorageSettings
	Index     IndexSettings
	Embedding EmbeddingSettings
	Chunker   ChunkerSettings
	Search    SearchSettings
	Consumer  ConsumerSettings
	Inbox     InboxSettings
	Log       LogSettings
}

// DefaultSettings returns settings with sensible defaults.
// The local embedder needs no network so a fresh install works offline.
func DefaultSettings() Settings {
	return Settings{
		Server: ServerSettings{
			Host:            "127.0.0.1",
			Port:            8003,
			ShutdownTimeout: 30 * time.Second,
		},
		Storage: StorageSettings{
			Backend: StorageSQLite,
		},
		Embedding: EmbeddingSettings{
			Provider:     EmbeddingProviderLocal,
			Model:        "all-MiniLM-L6-v2",
			Dimensions:   384,
			BatchSize:    32,
			BatchTimeout: 60 * time.Second,
			MaxTokens:    8191,
		},
		Chunker: ChunkerSettings{
			ChunkSize:      512,
			ChunkOverlap:   50,
			MinChunkLength: 50,
		},
		Search: SearchSettings{
			MaxResults:          DefaultSearchLimit,
			SimilarityThreshold: 0.7,
			Timeout:             30 * time.Second,
			OverfetchFactor:     3,
		},
		Consumer: ConsumerSettings{
			Enabled:      true,
			MaxAttempts:  5,
			LeaseTimeout: 5 * time.Minute,
			RetryDelay:   10 * time.Second,
			PollInterval: time.Second,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
	}
}

// SnapshotPath returns the index snapshot location.
func (s Settings) SnapshotPath() string {
	if s.Index.SnapshotPath != "" {
		return s.Index.SnapshotPath
	}
	return filepath.Join(s.Storage.DataDir, "index.sixf")
}

// Validate rejects settings the service cannot run with.
func (s Settings) Validate() error {
	var errs []error
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", s.Server.Port))
	}
	if !s.Storage.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("storage.backend %q unknown", s.Storage.Backend))
	}
	if s.Storage.Backend == StoragePostgres && s.Storage.PostgresDSN == "" {
		errs = append(errs, errors.New("storage.postgres_dsn required for postgres backend"))
	}
	if !s.Embedding.Provider.IsValid() {
		errs = append(errs, fmt.Errorf("embedding.provider %q unknown", s.Embedding.Provider))
	} else if !s.Embedding.IsConfigured() {
		errs = append(errs, fmt.Errorf("embedding.api_key required for %s", s.Embedding.Provider))
	}
	if s.Embedding.Dimensions <= 0 {
		errs = append(errs, errors.New("embedding.dimensions must be positive"))
	}
	if s.Embedding.BatchSize <= 0 {
		errs = append(errs, errors.New("embedding.batch_size must be positive"))
	}
	if s.Chunker.ChunkSize <= 0 {
		errs = append(errs, errors.New("chunker.chunk_size must be positive"))
	}
	if s.Chunker.ChunkOverlap < 0 || s.Chunker.ChunkOverlap >= s.Chunker.ChunkSize {
		errs = append(errs, errors.New("chunker.chunk_overlap must be in [0, chunk_size)"))
	}
	if s.Chunker.MinChunkLength < 0 {
		errs = append(errs, errors.New("chunker.min_chunk_length must not be negative"))
	}
	if s.Search.MaxResults < 1 || s.Search.MaxResults > MaxSearchLimit {
		errs = append(errs, fmt.Errorf("search.max_results must be in [1, %d]", MaxSearchLimit))
	}
	if s.Search.SimilarityThreshold < 0 || s.Search.SimilarityThreshold > 1 {
		errs = append(errs, errors.New("search.similarity_threshold must be in [0, 1]"))
	}
	if s.Search.OverfetchFactor < 1 {
		errs = append(errs, errors.New("search.overfetch_factor must be at least 1"))
	}
	if s.Consumer.MaxAttempts < 1 {
		errs = append(errs, errors.New("consumer.max_attempts must be at least 1"))
	}
	if s.Inbox.Enabled && s.Inbox.Dir == "" {
		errs = append(errs, errors.New("inbox.dir required when inbox is enabled"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidInput, errors.Join(errs...))
}
