package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// setupPostgres starts a pgvector container. Skipped unless
// SERCHA_INDEXER_PG_TEST=1 since it needs a Docker daemon.
func setupPostgres(t *testing.T) *Store {
	t.Helper()
	if os.Getenv("SERCHA_INDEXER_PG_TEST") != "1" {
		t.Skip("set SERCHA_INDEXER_PG_TEST=1 to run postgres integration tests")
	}

	pool, err := dockertest.NewPool("")
	require.NoError(t, err)
	pool.MaxWait = 2 * time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "pgvector/pgvector",
		Tag:        "pg16",
		Env: []string{
			"POSTGRES_USER=sercha",
			"POSTGRES_PASSWORD=sercha",
			"POSTGRES_DB=sercha",
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })
	require.NoError(t, resource.Expire(300))

	dsn := fmt.Sprintf("postgres://sercha:sercha@%s/sercha?sslmode=disable", resource.GetHostPort("5432/tcp"))

	var store *Store
	err = pool.Retry(func() error {
		var err error
		store, err = NewStore(context.Background(), dsn)
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestNewStore_EmptyDSN(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestStore_Integration(t *testing.T) {
	store := setupPostgres(t)
	ctx := context.Background()

	doc := &domain.Document{
		ID:       "doc-1",
		Filename: "visit.txt",
		Content:  "Patient reports mild headache.",
		Metadata: map[string]any{"patient_id": "p-9"},
		Status:   domain.StatusProcessing,
	}
	require.NoError(t, store.SaveDocument(ctx, doc))

	chunks := []domain.Chunk{
		{ID: "doc-1_chunk_0", DocumentID: "doc-1", Index: 0, Content: "Patient reports mild headache.",
			Sentences: []string{"Patient reports mild headache."}, Embedding: []float32{0.6, 0.8}, EmbeddingModel: "m"},
		{ID: "doc-1_chunk_1", DocumentID: "doc-1", Index: 1, Content: "No fever."},
	}
	require.NoError(t, store.ReplaceChunks(ctx, "doc-1", chunks))

	got, err := store.GetChunk(ctx, "doc-1_chunk_0")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.6, 0.8}, got.Embedding)
	assert.Equal(t, []string{"Patient reports mild headache."}, got.Sentences)

	got, err = store.GetChunk(ctx, "doc-1_chunk_1")
	require.NoError(t, err)
	assert.Nil(t, got.Embedding)

	n, err := store.CountIndexedChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "processing documents are not indexed")

	require.NoError(t, store.UpdateStatus(ctx, "doc-1", domain.StatusUpdate{Status: domain.StatusIndexed, ChunksTotal: 2, VectorsAdded: 2}))

	var streamed []domain.Chunk
	require.NoError(t, store.StreamIndexedChunks(ctx, func(c domain.Chunk) error {
		streamed = append(streamed, c)
		return nil
	}))
	require.Len(t, streamed, 2)
	assert.Equal(t, "p-9", streamed[0].Metadata["patient_id"])
	assert.Equal(t, "visit.txt", streamed[0].Metadata["filename"])

	require.NoError(t, store.SetEmbeddings(ctx, "m2", map[string][]float32{"doc-1_chunk_1": {1, 0}}))
	got, err = store.GetChunk(ctx, "doc-1_chunk_1")
	require.NoError(t, err)
	assert.Equal(t, "m2", got.EmbeddingModel)

	loaded, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, loaded.Status)
	assert.NotNil(t, loaded.IndexedAt)

	deleted, err := store.DeleteChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	_, err = store.GetChunk(ctx, "doc-1_chunk_0")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
