package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

func chunksFor(docID string, n int) []domain.Chunk {
	out := make([]domain.Chunk, n)
	for i := range out {
		out[i] = domain.Chunk{
			ID:         domain.ChunkID(docID, i),
			DocumentID: docID,
			Index:      i,
			Content:    "content",
			Metadata:   map[string]any{"chunk_index": i},
		}
	}
	return out
}

func TestStore_Documents(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	doc := &domain.Document{ID: "doc-1", Filename: "a.txt", Metadata: map[string]any{"k": "v"}}
	require.NoError(t, store.SaveDocument(ctx, doc))
	assert.Equal(t, domain.StatusPending, doc.Status)
	created := doc.CreatedAt

	got, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got.Filename)

	got.Metadata["k"] = "changed"
	again, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "v", again.Metadata["k"], "returned documents are copies")

	time.Sleep(time.Millisecond)
	require.NoError(t, store.SaveDocument(ctx, &domain.Document{ID: "doc-1"}))
	again, err = store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, created, again.CreatedAt)

	require.NoError(t, store.UpdateStatus(ctx, "doc-1", domain.StatusUpdate{Status: domain.StatusIndexed, ChunksTotal: 2}))
	again, err = store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, again.Status)
	assert.NotNil(t, again.IndexedAt)

	assert.ErrorIs(t, store.UpdateStatus(ctx, "missing", domain.StatusUpdate{}), domain.ErrNotFound)
	_, err = store.GetDocument(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_EnsureDocument(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.EnsureDocument(ctx, "doc-1", domain.StatusIndexed))
	require.NoError(t, store.EnsureDocument(ctx, "doc-1", domain.StatusPending))

	doc, err := store.GetDocument(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusIndexed, doc.Status)
}

func TestStore_Chunks(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.UpsertChunks(ctx, chunksFor("doc-1", 3)))
	updated := chunksFor("doc-1", 1)
	updated[0].Content = "updated"
	require.NoError(t, store.UpsertChunks(ctx, updated))

	list, err := store.ListChunks(ctx, "doc-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "updated", list[0].Content)

	c, err := store.GetChunk(ctx, "doc-1_chunk_2")
	require.NoError(t, err)
	assert.Equal(t, 2, c.Index)
	_, err = store.GetChunk(ctx, "doc-1_chunk_7")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.ReplaceChunks(ctx, "doc-1", chunksFor("doc-1", 2)))
	list, err = store.ListChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	assert.ErrorIs(t, store.ReplaceChunks(ctx, "doc-1", chunksFor("doc-2", 1)), domain.ErrInvalidInput)

	n, err := store.DeleteChunks(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_IndexedChunks(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	require.NoError(t, store.SaveDocument(ctx, &domain.Document{
		ID: "doc-b", Filename: "b.txt", Status: domain.StatusIndexed, Metadata: map[string]any{"patient_id": "p"},
	}))
	require.NoError(t, store.SaveDocument(ctx, &domain.Document{ID: "doc-a", Status: domain.StatusIndexed}))
	require.NoError(t, store.SaveDocument(ctx, &domain.Document{ID: "doc-c", Status: domain.StatusFailed}))
	require.NoError(t, store.UpsertChunks(ctx, chunksFor("doc-b", 2)))
	require.NoError(t, store.UpsertChunks(ctx, chunksFor("doc-a", 1)))
	require.NoError(t, store.UpsertChunks(ctx, chunksFor("doc-c", 4)))

	n, err := store.CountIndexedChunks(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ids, err := store.IndexedChunkIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-a_chunk_0", "doc-b_chunk_0", "doc-b_chunk_1"}, ids)

	var streamed []domain.Chunk
	require.NoError(t, store.StreamIndexedChunks(ctx, func(c domain.Chunk) error {
		streamed = append(streamed, c)
		return nil
	}))
	require.Len(t, streamed, 3)
	assert.Equal(t, "doc-a_chunk_0", streamed[0].ID)
	assert.Equal(t, "b.txt", streamed[1].Metadata["filename"])
	assert.Equal(t, "p", streamed[1].Metadata["patient_id"])

	require.NoError(t, store.SetEmbeddings(ctx, "m", map[string][]float32{"doc-a_chunk_0": {1, 0}}))
	c, err := store.GetChunk(ctx, "doc-a_chunk_0")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, c.Embedding)
	assert.Equal(t, "m", c.EmbeddingModel)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StoreStats{TotalDocuments: 3, TotalChunks: 7, IndexedChunks: 3}, stats)
}

func TestQueue_Lifecycle(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, domain.IndexEvent{DocumentID: "doc-1"}))
	assert.ErrorIs(t, q.Publish(ctx, domain.IndexEvent{}), domain.ErrInvalidInput)

	d, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, d.Attempt)
	require.NoError(t, q.Nack(ctx, d.ID, true))

	d, err = q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Attempt)
	require.NoError(t, q.Ack(ctx, d.ID))
	assert.Equal(t, 0, q.Len())

	assert.ErrorIs(t, q.Ack(ctx, d.ID), domain.ErrNotFound)
}

func TestQueue_NackDrop(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, domain.IndexEvent{DocumentID: "doc-1"}))
	d, err := q.Receive(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Nack(ctx, d.ID, false))
	assert.Equal(t, 0, q.Len())
}

func TestQueue_BlockingReceive(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan string, 1)
	go func() {
		d, err := q.Receive(ctx)
		if err == nil {
			got <- d.Event.DocumentID
		}
		close(got)
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Publish(ctx, domain.IndexEvent{DocumentID: "doc-9"}))
	assert.Equal(t, "doc-9", <-got)
}

func TestQueue_Close(t *testing.T) {
	q := NewQueue()
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())

	_, err := q.Receive(context.Background())
	assert.ErrorIs(t, err, domain.ErrQueueClosed)
	assert.ErrorIs(t, q.Publish(context.Background(), domain.IndexEvent{DocumentID: "x"}), domain.ErrQueueClosed)
}

func TestQueue_ReceiveCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Receive(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
