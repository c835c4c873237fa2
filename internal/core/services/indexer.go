package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// Ensure IndexService implements the interface.
var _ driving.IndexService = (*IndexService)(nil)

// IndexService owns every mutation of the vector index outside reconciliation.
// Mutations run under the shared WriteLock and are persisted in the background.
type IndexService struct {
	index     driven.VectorIndex
	generator *EmbeddingGenerator
	chunks    driven.ChunkStore
	docs      driven.DocumentStore
	queue     driven.IndexQueue
	pipeline  driven.PostProcessorPipeline
	normalise driven.NormaliserRegistry
	lock      *WriteLock
	snapshots *Snapshotter
}

// IndexServiceDeps groups the collaborators of IndexService.
type IndexServiceDeps struct {
	Index     driven.VectorIndex
	Generator *EmbeddingGenerator
	Chunks    driven.ChunkStore
	Documents driven.DocumentStore
	// Queue is optional. Without it SubmitDocument is unavailable.
	Queue    driven.IndexQueue
	Pipeline driven.PostProcessorPipeline
	// Normalisers is optional. Without it submitted content is stored as is.
	Normalisers driven.NormaliserRegistry
	Lock        *WriteLock
	Snapshots   *Snapshotter
}

// NewIndexService creates an index service.
func NewIndexService(deps IndexServiceDeps) *IndexService {
	lock := deps.Lock
	if lock == nil {
		lock = NewWriteLock()
	}
	snapshots := deps.Snapshots
	if snapshots == nil {
		snapshots = NewSnapshotter(deps.Index)
	}
	return &IndexService{
		index:     deps.Index,
		generator: deps.Generator,
		chunks:    deps.Chunks,
		docs:      deps.Documents,
		queue:     deps.Queue,
		pipeline:  deps.Pipeline,
		normalise: deps.Normalisers,
		lock:      lock,
		snapshots: snapshots,
	}
}

// IndexChunks embeds pre-chunked text and adds it to the index.
// Chunks already indexed under the same ID are replaced. The request is
// all or nothing: on failure the document's chunks, vectors and status are
// restored, and a document the request created is marked failed.
func (s *IndexService) IndexChunks(ctx context.Context, req domain.IndexRequest) (*domain.IndexResponse, error) {
	started := time.Now()

	chunks, err := chunksFromRequest(req)
	if err != nil {
		return nil, err
	}
	documentID := chunks[0].DocumentID

	if err := s.lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer s.lock.Unlock()

	before, err := s.captureDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if before.doc == nil {
		if err := s.docs.EnsureDocument(ctx, documentID, domain.StatusProcessing); err != nil {
			return nil, fmt.Errorf("ensure document: %w", err)
		}
	}

	added, indexed, err := s.applyChunks(ctx, documentID, chunks)
	if err != nil {
		s.restoreDocument(documentID, before, chunks, indexed, err)
		return nil, err
	}

	s.snapshots.Schedule()

	elapsed := time.Since(started).Milliseconds()
	logger.Info("indexed chunks", "document_id", documentID, "chunks", len(chunks),
		"vectors", added, "duration_ms", elapsed)

	return &domain.IndexResponse{
		DocumentID:       documentID,
		ChunksProcessed:  len(chunks),
		VectorsAdded:     added,
		ProcessingTimeMs: elapsed,
		Status:           domain.IndexStateCompleted,
	}, nil
}

// documentState is a document as it was before an IndexChunks request.
type documentState struct {
	// doc is nil when the document did not exist.
	doc    *domain.Document
	chunks []domain.Chunk
	live   map[string]struct{}
}

func (s *IndexService) captureDocument(ctx context.Context, documentID string) (documentState, error) {
	var state documentState

	doc, err := s.docs.GetDocument(ctx, documentID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
	case err != nil:
		return state, fmt.Errorf("get document: %w", err)
	default:
		state.doc = doc
	}

	if state.chunks, err = s.chunks.ListChunks(ctx, documentID); err != nil {
		return state, fmt.Errorf("list chunks: %w", err)
	}
	live, err := s.index.ChunkIDs(ctx)
	if err != nil {
		return state, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
	}
	state.live = make(map[string]struct{})
	for _, id := range live {
		if domain.DocumentIDFromChunkID(id) == documentID {
			state.live[id] = struct{}{}
		}
	}
	return state, nil
}

// applyChunks embeds, stores and indexes chunks, then marks the document
// indexed. indexed reports whether the vector index was changed, also when
// a later step failed.
func (s *IndexService) applyChunks(ctx context.Context, documentID string, chunks []domain.Chunk) (added int, indexed bool, err error) {
	if err := s.embedChunks(ctx, chunks); err != nil {
		return 0, false, err
	}
	if err := s.chunks.UpsertChunks(ctx, chunks); err != nil {
		return 0, false, fmt.Errorf("store chunks: %w", err)
	}

	// Re-adding an ID retires its previous vector.
	slots, err := s.index.Add(ctx, indexEntries(chunks))
	if err != nil {
		return 0, false, fmt.Errorf("add vectors: %w", err)
	}

	stored, err := s.chunks.ListChunks(ctx, documentID)
	if err != nil {
		return 0, true, fmt.Errorf("list chunks: %w", err)
	}
	if err := s.docs.UpdateStatus(ctx, documentID, domain.StatusUpdate{
		Status:       domain.StatusIndexed,
		ChunksTotal:  len(stored),
		VectorsAdded: len(stored),
	}); err != nil {
		return 0, true, fmt.Errorf("update status: %w", err)
	}
	return len(slots), true, nil
}

// restoreDocument undoes a failed IndexChunks. It runs on a fresh context
// so a cancelled caller does not leave a half-written document behind.
func (s *IndexService) restoreDocument(documentID string, before documentState, written []domain.Chunk, indexed bool, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var errs []error
	if indexed {
		ids := make([]string, len(written))
		for i, c := range written {
			ids[i] = c.ID
		}
		if _, err := s.index.Delete(ctx, ids); err != nil {
			errs = append(errs, fmt.Errorf("delete vectors: %w", err))
		}
		if replaced := replacedChunks(before, ids); len(replaced) > 0 {
			if _, err := s.index.Add(ctx, indexEntries(replaced)); err != nil {
				errs = append(errs, fmt.Errorf("restore vectors: %w", err))
			}
		}
		s.snapshots.Schedule()
	}

	var err error
	if len(before.chunks) == 0 {
		_, err = s.chunks.DeleteChunks(ctx, documentID)
	} else {
		err = s.chunks.ReplaceChunks(ctx, documentID, before.chunks)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("restore chunks: %w", err))
	}

	update := domain.StatusUpdate{Status: domain.StatusFailed, Error: cause.Error()}
	if before.doc != nil {
		update = domain.StatusUpdate{
			Status:       before.doc.Status,
			ChunksTotal:  before.doc.ChunksTotal,
			VectorsAdded: before.doc.VectorsAdded,
			Error:        before.doc.Error,
		}
	}
	if err := s.docs.UpdateStatus(ctx, documentID, update); err != nil {
		errs = append(errs, fmt.Errorf("restore status: %w", err))
	}

	if err := errors.Join(errs...); err != nil {
		logger.Error("rollback incomplete", "document_id", documentID, "error", err)
		return
	}
	logger.Warn("index request rolled back", "document_id", documentID, "error", cause)
}

// replacedChunks returns the earlier versions of ids that were live in the
// index before the request overwrote them.
func replacedChunks(before documentState, ids []string) []domain.Chunk {
	overwritten := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		overwritten[id] = struct{}{}
	}
	var out []domain.Chunk
	for _, c := range before.chunks {
		_, wasLive := before.live[c.ID]
		_, hit := overwritten[c.ID]
		if wasLive && hit && len(c.Embedding) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// SubmitDocument stores the document as pending and queues it for ingestion.
// A missing ID is generated and written back to doc.
func (s *IndexService) SubmitDocument(ctx context.Context, doc *domain.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is required", domain.ErrInvalidInput)
	}
	if s.queue == nil {
		return fmt.Errorf("%w: ingestion queue is not configured", domain.ErrNotImplemented)
	}

	doc.ID = strings.TrimSpace(doc.ID)
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if s.normalise != nil {
		if err := s.normalise.Normalise(ctx, doc); err != nil {
			return err
		}
	}
	doc.Status = domain.StatusPending
	doc.Error = ""

	if err := s.docs.SaveDocument(ctx, doc); err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	if err := s.queue.Publish(ctx, domain.IndexEvent{DocumentID: doc.ID}); err != nil {
		return fmt.Errorf("queue document: %w", err)
	}

	logger.Info("document queued", "document_id", doc.ID, "filename", doc.Filename,
		"characters", len(doc.Content))
	return nil
}

// Status reports the indexing state of a document.
func (s *IndexService) Status(ctx context.Context, documentID string) (*domain.IndexStatus, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, fmt.Errorf("%w: document_id is required", domain.ErrInvalidInput)
	}

	doc, err := s.docs.GetDocument(ctx, documentID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.IndexStatus{DocumentID: documentID, Status: domain.IndexStateNotFound}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}

	status := &domain.IndexStatus{
		DocumentID:   documentID,
		ChunksTotal:  doc.ChunksTotal,
		VectorsAdded: doc.VectorsAdded,
		ErrorMessage: doc.Error,
	}
	if !doc.CreatedAt.IsZero() {
		created := doc.CreatedAt
		status.CreatedAt = &created
	}
	if !doc.UpdatedAt.IsZero() {
		updated := doc.UpdatedAt
		status.UpdatedAt = &updated
	}

	switch doc.Status {
	case domain.StatusPending, domain.StatusProcessing:
		status.Status = domain.IndexStateProcessing
	case domain.StatusIndexed:
		status.Status = domain.IndexStateCompleted
		status.ChunksProcessed = doc.ChunksTotal
	case domain.StatusFailed:
		status.Status = domain.IndexStateFailed
	default:
		status.Status = domain.IndexStateNotFound
	}
	return status, nil
}

// Delete removes a document's vectors and chunks.
// Vectors are soft-deleted and reclaimed by the next rebuild.
func (s *IndexService) Delete(ctx context.Context, documentID string) (*domain.DeleteResponse, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, fmt.Errorf("%w: document_id is required", domain.ErrInvalidInput)
	}

	if err := s.lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer s.lock.Unlock()

	ids, err := s.documentChunkIDs(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no indexed chunks for document %s", domain.ErrNotFound, documentID)
	}

	vectorsDeleted, err := s.index.Delete(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("delete vectors: %w", err)
	}
	chunksDeleted, err := s.chunks.DeleteChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("delete chunks: %w", err)
	}

	err = s.docs.UpdateStatus(ctx, documentID, domain.StatusUpdate{Status: domain.StatusDeleted})
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.snapshots.Schedule()

	logger.Info("document deleted", "document_id", documentID,
		"chunks", chunksDeleted, "vectors", vectorsDeleted)

	return &domain.DeleteResponse{
		DocumentID:     documentID,
		ChunksDeleted:  chunksDeleted,
		VectorsDeleted: vectorsDeleted,
		Status:         "deleted",
		RebuildPending: true,
	}, nil
}

// Flush waits for background snapshot writes.
func (s *IndexService) Flush(ctx context.Context) error {
	return s.snapshots.Flush(ctx)
}

// Ingest chunks, embeds and indexes a stored document, replacing any
// previous version. The document ends up indexed on success. On failure
// the new chunks and vectors are removed and the status is left to the caller.
func (s *IndexService) Ingest(ctx context.Context, doc *domain.Document) (int, error) {
	if err := s.lock.Lock(ctx); err != nil {
		return 0, err
	}
	defer s.lock.Unlock()

	// 1. MARK PROCESSING
	if err := s.docs.UpdateStatus(ctx, doc.ID, domain.StatusUpdate{Status: domain.StatusProcessing}); err != nil {
		return 0, fmt.Errorf("update status: %w", err)
	}

	previous, err := s.documentChunkIDs(ctx, doc.ID)
	if err != nil {
		return 0, err
	}

	// 2. CHUNK
	var chunks []domain.Chunk
	if len([]rune(strings.TrimSpace(doc.Content))) >= s.pipeline.MinContentLength() {
		if chunks, err = s.pipeline.Process(ctx, doc); err != nil {
			return 0, fmt.Errorf("chunk document: %w", err)
		}
	}

	if len(chunks) == 0 {
		return 0, s.clearDocument(ctx, doc.ID, previous)
	}

	// 3. EMBED
	if err := s.embedChunks(ctx, chunks); err != nil {
		return 0, err
	}

	// 4. STORE
	if err := s.chunks.ReplaceChunks(ctx, doc.ID, chunks); err != nil {
		return 0, fmt.Errorf("store chunks: %w", err)
	}

	// 5. INDEX
	current := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		current[c.ID] = struct{}{}
	}
	var retired []string
	for _, id := range previous {
		if _, ok := current[id]; !ok {
			retired = append(retired, id)
		}
	}

	entries := indexEntries(chunks)
	if _, err := s.index.Add(ctx, entries); err != nil {
		s.compensate(doc.ID, chunks)
		return 0, fmt.Errorf("add vectors: %w", err)
	}
	if len(retired) > 0 {
		if _, err := s.index.Delete(ctx, retired); err != nil {
			s.compensate(doc.ID, chunks)
			return 0, fmt.Errorf("retire vectors: %w", err)
		}
	}

	// 6. MARK INDEXED
	if err := s.docs.UpdateStatus(ctx, doc.ID, domain.StatusUpdate{
		Status:       domain.StatusIndexed,
		ChunksTotal:  len(chunks),
		VectorsAdded: len(entries),
	}); err != nil {
		s.compensate(doc.ID, chunks)
		return 0, fmt.Errorf("update status: %w", err)
	}

	s.snapshots.Schedule()
	return len(chunks), nil
}

// clearDocument marks a document indexed with no chunks, removing any
// chunks and vectors left by an older version.
func (s *IndexService) clearDocument(ctx context.Context, documentID string, previous []string) error {
	if len(previous) > 0 {
		if _, err := s.index.Delete(ctx, previous); err != nil {
			return fmt.Errorf("delete vectors: %w", err)
		}
		if _, err := s.chunks.DeleteChunks(ctx, documentID); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		s.snapshots.Schedule()
	}
	if err := s.docs.UpdateStatus(ctx, documentID, domain.StatusUpdate{Status: domain.StatusIndexed}); err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return nil
}

// compensate removes the chunks and vectors written by a failed ingestion.
// It runs on a fresh context so a cancelled caller does not leave them behind.
func (s *IndexService) compensate(documentID string, chunks []domain.Chunk) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	ids := make([]string, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}

	var errs []error
	if _, err := s.index.Delete(ctx, ids); err != nil {
		errs = append(errs, fmt.Errorf("delete vectors: %w", err))
	}
	if _, err := s.chunks.DeleteChunks(ctx, documentID); err != nil {
		errs = append(errs, fmt.Errorf("delete chunks: %w", err))
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error("compensation incomplete", "document_id", documentID, "error", err)
		return
	}
	s.snapshots.Schedule()
}

// documentChunkIDs returns the chunk IDs of a document found in the store
// or live in the index.
func (s *IndexService) documentChunkIDs(ctx context.Context, documentID string) ([]string, error) {
	stored, err := s.chunks.ListChunks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	live, err := s.index.ChunkIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
	}

	seen := make(map[string]struct{}, len(stored))
	ids := make([]string, 0, len(stored))
	for _, c := range stored {
		seen[c.ID] = struct{}{}
		ids = append(ids, c.ID)
	}
	for _, id := range live {
		if domain.DocumentIDFromChunkID(id) != documentID {
			continue
		}
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// embedChunks fills in the embeddings of chunks.
func (s *IndexService) embedChunks(ctx context.Context, chunks []domain.Chunk) error {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := s.generator.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	model := s.generator.ModelName()
	for i := range chunks {
		chunks[i].Embedding = vectors[i]
		chunks[i].EmbeddingModel = model
	}
	return nil
}

// chunksFromRequest validates an indexing request and converts it to chunks.
func chunksFromRequest(req domain.IndexRequest) ([]domain.Chunk, error) {
	documentID := strings.TrimSpace(req.DocumentID)
	if documentID == "" {
		return nil, fmt.Errorf("%w: document_id is required", domain.ErrInvalidInput)
	}
	if len(req.Chunks) == 0 {
		return nil, fmt.Errorf("%w: at least one chunk is required", domain.ErrInvalidInput)
	}

	seen := make(map[int]struct{}, len(req.Chunks))
	chunks := make([]domain.Chunk, 0, len(req.Chunks))
	for i, in := range req.Chunks {
		if strings.TrimSpace(in.Content) == "" {
			return nil, fmt.Errorf("%w: chunk %d has empty content", domain.ErrInvalidInput, i)
		}
		if in.Index < 0 {
			return nil, fmt.Errorf("%w: chunk %d has negative index", domain.ErrInvalidInput, i)
		}
		if _, dup := seen[in.Index]; dup {
			return nil, fmt.Errorf("%w: duplicate chunk index %d", domain.ErrInvalidInput, in.Index)
		}
		seen[in.Index] = struct{}{}

		meta := make(map[string]any, len(in.Metadata)+2)
		for k, v := range in.Metadata {
			meta[k] = v
		}
		meta["document_id"] = documentID
		meta["chunk_index"] = in.Index

		chunks = append(chunks, domain.Chunk{
			ID:         domain.ChunkID(documentID, in.Index),
			DocumentID: documentID,
			Index:      in.Index,
			Content:    in.Content,
			Sentences:  in.Sentences,
			Metadata:   meta,
		})
	}
	return chunks, nil
}

// indexEntries converts embedded chunks to index entries. The chunk text
// travels in the entry metadata so searches need no store round trip.
func indexEntries(chunks []domain.Chunk) []domain.IndexEntry {
	entries := make([]domain.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = indexEntry(c)
	}
	return entries
}

func indexEntry(c domain.Chunk) domain.IndexEntry {
	meta := make(map[string]any, len(c.Metadata)+1)
	for k, v := range c.Metadata {
		meta[k] = v
	}
	meta["content"] = c.Content
	return domain.IndexEntry{ChunkID: c.ID, Vector: c.Embedding, Metadata: meta}
}
