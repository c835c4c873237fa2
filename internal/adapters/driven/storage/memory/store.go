package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
)

// Ensure Store implements the interfaces.
var (
	_ driven.ChunkStore    = (*Store)(nil)
	_ driven.DocumentStore = (*Store)(nil)
)

// Store is an in-memory chunk and document store.
type Store struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	chunks    map[string][]domain.Chunk // by document ID, ordered by index

	// PingErr is returned by Ping when set.
	PingErr error
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		documents: make(map[string]domain.Document),
		chunks:    make(map[string][]domain.Chunk),
	}
}

// SaveDocument stores or updates a document. CreatedAt is preserved on update.
func (s *Store) SaveDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if existing, ok := s.documents[doc.ID]; ok {
		doc.CreatedAt = existing.CreatedAt
	} else if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.Status == "" {
		doc.Status = domain.StatusPending
	}

	stored := *doc
	stored.Metadata = copyMap(doc.Metadata)
	s.documents[doc.ID] = stored
	return nil
}

// EnsureDocument creates a bare document if none exists.
func (s *Store) EnsureDocument(_ context.Context, id string, status domain.DocumentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.documents[id]; ok {
		return nil
	}
	now := time.Now().UTC()
	s.documents[id] = domain.Document{ID: id, Status: status, Metadata: map[string]any{}, CreatedAt: now, UpdatedAt: now}
	return nil
}

// GetDocument retrieves a document by ID.
func (s *Store) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	doc.Metadata = copyMap(doc.Metadata)
	return &doc, nil
}

// UpdateStatus records a status transition.
func (s *Store) UpdateStatus(_ context.Context, id string, update domain.StatusUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[id]
	if !ok {
		return domain.ErrNotFound
	}

	now := time.Now().UTC()
	doc.Status = update.Status
	doc.ChunksTotal = update.ChunksTotal
	doc.VectorsAdded = update.VectorsAdded
	doc.Error = update.Error
	doc.UpdatedAt = now
	if update.Status == domain.StatusIndexed {
		doc.IndexedAt = &now
	}
	s.documents[id] = doc
	return nil
}

// UpsertChunks inserts or replaces chunks keyed by (document_id, chunk_index).
func (s *Store) UpsertChunks(_ context.Context, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range chunks {
		c := copyChunk(chunks[i])
		list := s.chunks[c.DocumentID]
		replaced := false
		for j := range list {
			if list[j].Index == c.Index {
				list[j] = c
				replaced = true
				break
			}
		}
		if !replaced {
			list = append(list, c)
		}
		sort.Slice(list, func(a, b int) bool { return list[a].Index < list[b].Index })
		s.chunks[c.DocumentID] = list
	}
	return nil
}

// ReplaceChunks swaps all chunks of a document.
func (s *Store) ReplaceChunks(_ context.Context, documentID string, chunks []domain.Chunk) error {
	list := make([]domain.Chunk, 0, len(chunks))
	for i := range chunks {
		if chunks[i].DocumentID != documentID {
			return fmt.Errorf("%w: chunk %s does not belong to document %s",
				domain.ErrInvalidInput, chunks[i].ID, documentID)
		}
		list = append(list, copyChunk(chunks[i]))
	}
	sort.Slice(list, func(a, b int) bool { return list[a].Index < list[b].Index })

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(list) == 0 {
		delete(s.chunks, documentID)
		return nil
	}
	s.chunks[documentID] = list
	return nil
}

// ListChunks returns the chunks of a document ordered by index.
func (s *Store) ListChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.chunks[documentID]
	if len(list) == 0 {
		return nil, nil
	}
	out := make([]domain.Chunk, len(list))
	for i := range list {
		out[i] = copyChunk(list[i])
	}
	return out, nil
}

// GetChunk retrieves a chunk by ID.
func (s *Store) GetChunk(_ context.Context, chunkID string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, found := findChunk(s.chunks[domain.DocumentIDFromChunkID(chunkID)], chunkID); found {
		return &c, nil
	}
	// IDs supplied through the indexing API need not follow the pattern.
	for _, list := range s.chunks {
		if c, found := findChunk(list, chunkID); found {
			return &c, nil
		}
	}
	return nil, domain.ErrNotFound
}

// DeleteChunks removes all chunks of a document.
func (s *Store) DeleteChunks(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.chunks[documentID])
	delete(s.chunks, documentID)
	return n, nil
}

// SetEmbeddings stores vectors for existing chunks.
func (s *Store) SetEmbeddings(_ context.Context, model string, embeddings map[string][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, list := range s.chunks {
		for i := range list {
			if vec, ok := embeddings[list[i].ID]; ok {
				list[i].Embedding = append([]float32(nil), vec...)
				list[i].EmbeddingModel = model
			}
		}
	}
	return nil
}

// CountIndexedChunks counts chunks whose document is indexed.
func (s *Store) CountIndexedChunks(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for docID, list := range s.chunks {
		if s.indexed(docID) {
			n += len(list)
		}
	}
	return n, nil
}

// IndexedChunkIDs returns the IDs of chunks whose document is indexed, sorted.
func (s *Store) IndexedChunkIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for docID, list := range s.chunks {
		if !s.indexed(docID) {
			continue
		}
		for i := range list {
			ids = append(ids, list[i].ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// StreamIndexedChunks calls fn for every chunk of an indexed document.
// The store is snapshotted first so fn may call back into it.
func (s *Store) StreamIndexedChunks(ctx context.Context, fn func(domain.Chunk) error) error {
	s.mu.RLock()
	docIDs := make([]string, 0, len(s.chunks))
	for docID := range s.chunks {
		if s.indexed(docID) {
			docIDs = append(docIDs, docID)
		}
	}
	sort.Strings(docIDs)

	var snapshot []domain.Chunk
	for _, docID := range docIDs {
		doc := s.documents[docID]
		for _, c := range s.chunks[docID] {
			c = copyChunk(c)
			merged := copyMap(doc.Metadata)
			if merged == nil {
				merged = make(map[string]any)
			}
			if doc.Filename != "" {
				merged["filename"] = doc.Filename
			}
			for k, v := range c.Metadata {
				merged[k] = v
			}
			c.Metadata = merged
			snapshot = append(snapshot, c)
		}
	}
	s.mu.RUnlock()

	for _, c := range snapshot {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

// Stats describes the store.
func (s *Store) Stats(_ context.Context) (domain.StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var stats domain.StoreStats
	for _, doc := range s.documents {
		if doc.Status != domain.StatusDeleted {
			stats.TotalDocuments++
		}
	}
	for docID, list := range s.chunks {
		stats.TotalChunks += len(list)
		if s.indexed(docID) {
			stats.IndexedChunks += len(list)
		}
	}
	return stats, nil
}

// Ping returns PingErr.
func (s *Store) Ping(_ context.Context) error {
	return s.PingErr
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

// indexed must be called with mu held.
func (s *Store) indexed(docID string) bool {
	doc, ok := s.documents[docID]
	return ok && doc.Status == domain.StatusIndexed
}

func findChunk(list []domain.Chunk, chunkID string) (domain.Chunk, bool) {
	for i := range list {
		if list[i].ID == chunkID {
			return copyChunk(list[i]), true
		}
	}
	return domain.Chunk{}, false
}

func copyChunk(c domain.Chunk) domain.Chunk {
	c.Metadata = copyMap(c.Metadata)
	c.Sentences = append([]string(nil), c.Sentences...)
	c.Embedding = append([]float32(nil), c.Embedding...)
	return c
}

func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
