// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Interfaces
//
//   - EmbeddingService: Generates vector embeddings (local, Ollama, OpenAI)
//   - VectorIndex: In-memory vector storage and similarity search
//   - ChunkStore: Durable chunk persistence, the source of truth for the index
//   - DocumentStore: Document text and indexing status
//   - IndexQueue: Delivers index events to the ingestion consumer
//   - PostProcessor / PostProcessorPipeline: Turn document text into chunks
//   - Normaliser / NormaliserRegistry: Clean submitted text by file type
//   - ConfigStore: Application configuration
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter or service package
package driven
