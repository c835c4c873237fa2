package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

func TestReconcile_EmptyIsInSync(t *testing.T) {
	env := newTestEnv(t)

	report, err := env.recon.Reconcile(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileInSync, report.Status)
	assert.False(t, report.Rebuilt)
}

func TestReconcile_InSyncAfterIndexing(t *testing.T) {
	env := newTestEnv(t)
	env.indexDoc(t, "doc-1", nil, "alpha", "beta")

	report, err := env.recon.Reconcile(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileInSync, report.Status)
	assert.Equal(t, 2, report.ChunkStoreCount)
	assert.Equal(t, 2, report.IndexCount)
}

func TestReconcile_RebuildsFromStoreAndIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.indexDoc(t, "doc-1", nil, "alpha", "beta")
	env.indexDoc(t, "doc-2", nil, "gamma")
	_, err := env.indexer.Delete(ctx, "doc-2")
	require.NoError(t, err)

	// Simulate a lost snapshot: the index forgets everything.
	require.NoError(t, env.index.Rebuild(ctx, nil))
	calls := env.embedder.callCount()

	report, err := env.recon.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileRebuilt, report.Status)
	assert.True(t, report.Rebuilt)
	assert.Equal(t, 2, report.ChunkStoreCount)
	assert.Equal(t, 2, report.IndexCount)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, 2, report.ReusedEmbeddings)
	assert.Zero(t, report.RegeneratedEmbeddings)
	assert.Equal(t, calls, env.embedder.callCount(), "stored embeddings are reused")

	ids, err := env.index.ChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1_chunk_0", "doc-1_chunk_1"}, ids)

	again, err := env.recon.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileInSync, again.Status)
}

func TestReconcile_RebuildPendingTriggersCompaction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.indexDoc(t, "doc-1", nil, "alpha")
	env.indexDoc(t, "doc-1", nil, "alpha again")
	require.True(t, env.index.Stats().RebuildPending)

	report, err := env.recon.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, "rebuild pending", report.Reason)

	stats := env.index.Stats()
	assert.False(t, stats.RebuildPending)
	assert.Equal(t, 1, stats.TotalVectors)
	assert.Zero(t, stats.StaleVectors)
}

func TestReconcile_RegeneratesForNewModel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.indexDoc(t, "doc-1", nil, "alpha", "beta")

	env.embedder.model = "other-model"
	report, err := env.recon.Reconcile(ctx, true)
	require.NoError(t, err)

	assert.Equal(t, "forced", report.Reason)
	assert.Equal(t, 2, report.RegeneratedEmbeddings)
	assert.Zero(t, report.ReusedEmbeddings)

	stored, err := env.store.GetChunk(ctx, "doc-1_chunk_0")
	require.NoError(t, err)
	assert.Equal(t, "other-model", stored.EmbeddingModel)
}

func TestReconcile_EmptyStoreResetsIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.index.Add(ctx, []domain.IndexEntry{{ChunkID: "orphan_chunk_0", Vector: unitVec(0)}})
	require.NoError(t, err)

	report, err := env.recon.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileEmpty, report.Status)
	assert.Zero(t, env.index.Stats().TotalVectors)
	assert.GreaterOrEqual(t, env.index.persists.Load(), int32(1), "rebuilds are persisted")
}

func TestReconcile_EmbeddingFailureLeavesIndex(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.indexDoc(t, "doc-1", nil, "alpha")

	env.embedder.model = "other-model"
	env.embedder.setErr(errBoom)

	_, err := env.recon.Reconcile(ctx, true)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.Equal(t, 1, env.index.Stats().TotalChunks)
}
