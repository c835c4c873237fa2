// Package domain holds the indexer's core types and sentinel errors.
//
// The main entities:
//
//   - Document: extracted text plus metadata, and its indexing status
//   - Chunk: a sentence-aligned slice of a document with its embedding
//   - IndexEntry: what the vector index keeps per chunk
//   - SearchRequest and SearchResponse
//   - ReconcileReport: the result of comparing the store with the index
//
// Only the standard library may be imported here. Every other package
// depends on domain and never the other way round.
package domain
