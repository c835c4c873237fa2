package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

const longText = "The patient reported mild symptoms. Follow up is planned in two weeks."

// runConsumer starts the consumer and returns a stop function that waits for it.
func runConsumer(t *testing.T, c *Consumer) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	return func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("consumer did not stop")
		}
	}
}

func waitForStatus(t *testing.T, env *testEnv, id string, want domain.DocumentStatus) *domain.Document {
	t.Helper()
	var doc *domain.Document
	require.Eventually(t, func() bool {
		var err error
		doc, err = env.store.GetDocument(context.Background(), id)
		return err == nil && doc.Status == want
	}, 5*time.Second, 5*time.Millisecond)
	return doc
}

func TestConsumer_IndexesSubmittedDocument(t *testing.T) {
	env := newTestEnv(t)
	stop := runConsumer(t, env.consumer)
	defer stop()

	doc := &domain.Document{ID: "doc-1", Content: longText}
	require.NoError(t, env.indexer.SubmitDocument(context.Background(), doc))

	stored := waitForStatus(t, env, "doc-1", domain.StatusIndexed)
	assert.Equal(t, 1, stored.ChunksTotal)
	assert.Eventually(t, func() bool { return env.queue.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, env.index.Stats().TotalChunks)
}

func TestConsumer_MissingDocumentIsAcked(t *testing.T) {
	env := newTestEnv(t)
	stop := runConsumer(t, env.consumer)
	defer stop()

	require.NoError(t, env.queue.Publish(context.Background(), domain.IndexEvent{DocumentID: "ghost"}))
	assert.Eventually(t, func() bool { return env.queue.Len() == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestConsumer_UnavailableRequeuesThenFails(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.setErr(errBoom)
	stop := runConsumer(t, env.consumer)
	defer stop()

	require.NoError(t, env.indexer.SubmitDocument(context.Background(), &domain.Document{ID: "doc-1", Content: longText}))

	// The consumer allows 3 attempts; the last one marks the document failed.
	doc := waitForStatus(t, env, "doc-1", domain.StatusFailed)
	assert.Contains(t, doc.Error, "embedding service unavailable")
	assert.Eventually(t, func() bool { return env.queue.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, env.embedder.callCount())
}

func TestConsumer_RecoversAfterOutage(t *testing.T) {
	env := newTestEnv(t)
	env.consumer.maxAttempts = 10
	env.embedder.setErr(errBoom)
	stop := runConsumer(t, env.consumer)
	defer stop()

	require.NoError(t, env.indexer.SubmitDocument(context.Background(), &domain.Document{ID: "doc-1", Content: longText}))
	require.Eventually(t, func() bool { return env.embedder.callCount() >= 2 }, 5*time.Second, time.Millisecond)

	env.embedder.setErr(nil)
	waitForStatus(t, env, "doc-1", domain.StatusIndexed)
}

func TestConsumer_PermanentFailureMarksFailed(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.dims = testDims + 1
	env.embedder.override = func(texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts))
		for i := range out {
			out[i] = make([]float32, testDims+1)
			out[i][0] = 1
		}
		return out, nil
	}
	stop := runConsumer(t, env.consumer)
	defer stop()

	require.NoError(t, env.indexer.SubmitDocument(context.Background(), &domain.Document{ID: "doc-1", Content: longText}))

	doc := waitForStatus(t, env, "doc-1", domain.StatusFailed)
	assert.Contains(t, doc.Error, "dimension mismatch")
	assert.Eventually(t, func() bool { return env.queue.Len() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, env.embedder.callCount(), "permanent failures are not retried")
}

func TestConsumer_PanicIsRequeued(t *testing.T) {
	env := newTestEnv(t)
	env.consumer.maxAttempts = 10
	panics := 0
	env.embedder.override = func(texts []string) ([][]float32, error) {
		if panics == 0 {
			panics++
			panic("provider bug")
		}
		out := make([][]float32, len(texts))
		for i, text := range texts {
			out[i] = hashVector(text, testDims)
		}
		return out, nil
	}
	stop := runConsumer(t, env.consumer)
	defer stop()

	require.NoError(t, env.indexer.SubmitDocument(context.Background(), &domain.Document{ID: "doc-1", Content: longText}))
	waitForStatus(t, env, "doc-1", domain.StatusIndexed)
}

func TestConsumer_StopsOnQueueClose(t *testing.T) {
	env := newTestEnv(t)
	done := make(chan error, 1)
	go func() { done <- env.consumer.Run(context.Background()) }()

	require.NoError(t, env.queue.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestConsumer_ProcessesInOrder(t *testing.T) {
	env := newTestEnv(t)
	stop := runConsumer(t, env.consumer)
	defer stop()

	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("doc-%d", i)
		require.NoError(t, env.indexer.SubmitDocument(context.Background(), &domain.Document{ID: id, Content: longText}))
	}
	for i := 0; i < 5; i++ {
		waitForStatus(t, env, fmt.Sprintf("doc-%d", i), domain.StatusIndexed)
	}
	assert.Equal(t, 5, env.index.Stats().TotalChunks)
}
