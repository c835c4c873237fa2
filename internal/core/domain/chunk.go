package domain

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// chunkIDMarker separates the document ID from the chunk index in a chunk ID.
const chunkIDMarker = "_chunk_"

// Chunk represents a searchable unit within a document.
// Chunks are created by the chunker, persisted once during ingestion
// and never mutated afterwards.
type Chunk struct {
	// ID is the deterministic identifier, see ChunkID.
	ID string

	// DocumentID links to the parent Document.
	DocumentID string

	// Index is the zero-based position within the document.
	Index int

	// Content is the text content of this chunk.
	Content string

	// Sentences are the sentences the chunk was built from, in order.
	Sentences []string

	// OverlapSentences is the number of leading sentences carried over
	// from the previous chunk.
	OverlapSentences int

	// Metadata contains document-level attributes plus chunk statistics.
	Metadata map[string]any

	// Embedding is the stored vector. It is derived data and may be nil.
	Embedding []float32

	// EmbeddingModel names the model that produced Embedding.
	EmbeddingModel string
}

// SentenceCount returns the number of sentences in the chunk.
func (c Chunk) SentenceCount() int {
	return len(c.Sentences)
}

// CharacterCount returns the content length in characters.
func (c Chunk) CharacterCount() int {
	return utf8.RuneCountInString(c.Content)
}

// WordCount returns the number of whitespace-separated words.
func (c Chunk) WordCount() int {
	return len(strings.Fields(c.Content))
}

// ChunkID builds the identifier of the chunk at index within a document.
func ChunkID(documentID string, index int) string {
	return documentID + chunkIDMarker + strconv.Itoa(index)
}

// DocumentIDFromChunkID recovers the document ID from a chunk ID.
// The split happens on the last marker so document IDs may contain it.
// An ID without the marker is returned unchanged.
func DocumentIDFromChunkID(chunkID string) string {
	i := strings.LastIndex(chunkID, chunkIDMarker)
	if i < 0 {
		return chunkID
	}
	return chunkID[:i]
}

// IndexEntry is a chunk as held by the vector index.
type IndexEntry struct {
	// ChunkID identifies the chunk.
	ChunkID string

	// Vector is the L2-normalised embedding.
	Vector []float32

	// Metadata is the copy of the chunk metadata kept for filtering.
	// It includes the chunk content under the "content" key.
	Metadata map[string]any
}
