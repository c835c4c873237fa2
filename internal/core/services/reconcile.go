package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// Ensure Reconciler implements the interface.
var _ driving.Reconciler = (*Reconciler)(nil)

// Reconciler rebuilds the vector index from the chunk store when the two
// disagree. The chunk store is the source of truth.
type Reconciler struct {
	index     driven.VectorIndex
	chunks    driven.ChunkStore
	generator *EmbeddingGenerator
	lock      *WriteLock
	snapshots *Snapshotter
}

// NewReconciler creates a reconciler sharing the write lock and snapshotter
// used by ingestion.
func NewReconciler(
	index driven.VectorIndex,
	chunks driven.ChunkStore,
	generator *EmbeddingGenerator,
	lock *WriteLock,
	snapshots *Snapshotter,
) *Reconciler {
	return &Reconciler{
		index:     index,
		chunks:    chunks,
		generator: generator,
		lock:      lock,
		snapshots: snapshots,
	}
}

// Reconcile compares the store with the index and rebuilds the index when
// they diverge or force is set.
func (r *Reconciler) Reconcile(ctx context.Context, force bool) (*domain.ReconcileReport, error) {
	started := time.Now()

	if err := r.lock.Lock(ctx); err != nil {
		return nil, err
	}
	defer r.lock.Unlock()

	storeCount, err := r.chunks.CountIndexedChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("count stored chunks: %w", err)
	}
	stats := r.index.Stats()

	report := &domain.ReconcileReport{
		ChunkStoreCount: storeCount,
		IndexCount:      stats.TotalVectors,
	}

	reason := "forced"
	if !force {
		reason, err = r.divergence(ctx, storeCount, stats)
		if err != nil {
			return nil, err
		}
		if reason == "" {
			report.Status = domain.ReconcileInSync
			report.DurationMs = time.Since(started).Milliseconds()
			logger.Info("index in sync with chunk store", "chunks", storeCount, "vectors", stats.TotalVectors)
			return report, nil
		}
	}
	report.Reason = reason

	logger.Info("rebuilding index", "reason", reason, "store_chunks", storeCount, "index_vectors", stats.TotalVectors)

	if err := r.rebuild(ctx, report); err != nil {
		logger.Error("index rebuild failed", "reason", reason, "error", err)
		return nil, err
	}

	report.Rebuilt = true
	report.Status = domain.ReconcileRebuilt
	if report.ChunkStoreCount == 0 {
		report.Status = domain.ReconcileEmpty
	}
	report.IndexCount = r.index.Stats().TotalVectors
	report.DurationMs = time.Since(started).Milliseconds()

	logger.Info("index rebuilt", "status", report.Status, "documents", report.Documents,
		"vectors", report.IndexCount, "reused", report.ReusedEmbeddings,
		"regenerated", report.RegeneratedEmbeddings, "duration_ms", report.DurationMs)
	return report, nil
}

// divergence explains why the index needs a rebuild, or returns "" when it does not.
func (r *Reconciler) divergence(ctx context.Context, storeCount int, stats domain.IndexStats) (string, error) {
	if stats.RebuildPending {
		return "rebuild pending", nil
	}
	if storeCount != stats.TotalVectors {
		return fmt.Sprintf("count mismatch: store %d, index %d", storeCount, stats.TotalVectors), nil
	}

	stored, err := r.chunks.IndexedChunkIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("list stored chunk ids: %w", err)
	}
	live, err := r.index.ChunkIDs(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrVectorIndexUnavailable, err)
	}
	slices.Sort(stored)
	slices.Sort(live)
	if !slices.Equal(stored, live) {
		return "chunk id mismatch", nil
	}
	return "", nil
}

// rebuild streams indexed chunks from the store, reuses stored embeddings
// from the current model and regenerates the rest.
func (r *Reconciler) rebuild(ctx context.Context, report *domain.ReconcileReport) error {
	model := r.generator.ModelName()
	dim := r.generator.Dimensions()

	var (
		entries []domain.IndexEntry
		missing []int
		lastDoc string
	)
	err := r.chunks.StreamIndexedChunks(ctx, func(c domain.Chunk) error {
		if c.DocumentID != lastDoc {
			report.Documents++
			lastDoc = c.DocumentID
		}

		unit, ok := c.Embedding, false
		if c.EmbeddingModel == model && len(c.Embedding) == dim {
			unit, ok = Normalize(c.Embedding)
		}
		if ok {
			c.Embedding = unit
			report.ReusedEmbeddings++
		} else {
			c.Embedding = nil
			missing = append(missing, len(entries))
		}
		entries = append(entries, indexEntry(c))
		return nil
	})
	if err != nil {
		return fmt.Errorf("stream chunks: %w", err)
	}
	report.ChunkStoreCount = len(entries)

	if len(missing) > 0 {
		texts := make([]string, len(missing))
		for i, pos := range missing {
			texts[i], _ = entries[pos].Metadata["content"].(string)
		}
		vectors, err := r.generator.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("regenerate embeddings: %w", err)
		}

		updates := make(map[string][]float32, len(missing))
		for i, pos := range missing {
			entries[pos].Vector = vectors[i]
			updates[entries[pos].ChunkID] = vectors[i]
		}
		if err := r.chunks.SetEmbeddings(ctx, model, updates); err != nil {
			return fmt.Errorf("store embeddings: %w", err)
		}
		report.RegeneratedEmbeddings = len(missing)
	}

	if err := r.index.Rebuild(ctx, entries); err != nil {
		return fmt.Errorf("rebuild index: %w", err)
	}
	if err := r.snapshots.Persist(ctx); err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	return nil
}
