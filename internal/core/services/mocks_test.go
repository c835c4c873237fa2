package services

import (
	"context"
	"errors"
	"hash/fnv"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-indexer/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sercha-indexer/internal/adapters/driven/vector/flat"
	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/normalisers"
	"github.com/custodia-labs/sercha-indexer/internal/postprocessors"
)

const testDims = 8

// mockEmbedder is a deterministic EmbeddingService. Texts listed in vectors
// get that exact vector, everything else is hashed into a bag of words.
type mockEmbedder struct {
	mu       sync.Mutex
	dims     int
	model    string
	vectors  map[string][]float32
	err      error
	pingErr  error
	batches  [][]string
	override func(texts []string) ([][]float32, error)
}

func newMockEmbedder() *mockEmbedder {
	return &mockEmbedder{dims: testDims, model: "mock-model", vectors: make(map[string][]float32)}
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := m.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]string(nil), texts...))
	if m.err != nil {
		return nil, m.err
	}
	if m.override != nil {
		return m.override(texts)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		if v, ok := m.vectors[text]; ok {
			out[i] = append([]float32(nil), v...)
			continue
		}
		out[i] = hashVector(text, m.dims)
	}
	return out, nil
}

func (m *mockEmbedder) Dimensions() int  { return m.dims }
func (m *mockEmbedder) ModelName() string { return m.model }
func (m *mockEmbedder) Close() error      { return nil }

func (m *mockEmbedder) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pingErr
}

func (m *mockEmbedder) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockEmbedder) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.batches)
}

func hashVector(text string, dims int) []float32 {
	v := make([]float32, dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		v[h.Sum32()%uint32(dims)]++
	}
	v[0] += 0.01
	return v
}

// unitVec returns the i-th standard basis vector.
func unitVec(i int) []float32 {
	v := make([]float32, testDims)
	v[i%testDims] = 1
	return v
}

// countingIndex wraps an index and counts snapshot writes. When gate is
// set each Persist waits for a value on it.
type countingIndex struct {
	driven.VectorIndex
	persists atomic.Int32
	gate     chan struct{}
	err      error
}

func (c *countingIndex) Persist(ctx context.Context) error {
	if c.gate != nil {
		<-c.gate
	}
	c.persists.Add(1)
	if c.err != nil {
		return c.err
	}
	return c.VectorIndex.Persist(ctx)
}

// rejectIndexedStatus fails every transition to indexed.
type rejectIndexedStatus struct {
	driven.DocumentStore
}

func (r rejectIndexedStatus) UpdateStatus(ctx context.Context, id string, update domain.StatusUpdate) error {
	if update.Status == domain.StatusIndexed {
		return errBoom
	}
	return r.DocumentStore.UpdateStatus(ctx, id, update)
}

// testEnv wires the services over in-memory adapters and a real flat index.
type testEnv struct {
	store     *memory.Store
	queue     *memory.Queue
	index     *countingIndex
	embedder  *mockEmbedder
	generator *EmbeddingGenerator
	snapshots *Snapshotter
	indexer   *IndexService
	recon     *Reconciler
	search    *SearchService
	consumer  *Consumer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	flatIndex, err := flat.New(testDims, filepath.Join(t.TempDir(), "index.sixf"))
	require.NoError(t, err)
	index := &countingIndex{VectorIndex: flatIndex}

	pipeline, err := postprocessors.NewDefaultPipeline(domain.ChunkerSettings{
		ChunkSize: 120, ChunkOverlap: 30, MinChunkLength: 20,
	})
	require.NoError(t, err)

	env := &testEnv{
		store:    memory.NewStore(),
		queue:    memory.NewQueue(),
		index:    index,
		embedder: newMockEmbedder(),
	}
	env.generator = NewEmbeddingGenerator(env.embedder, 4, time.Second)
	env.snapshots = NewSnapshotter(index)
	lock := NewWriteLock()

	env.indexer = NewIndexService(IndexServiceDeps{
		Index:       index,
		Generator:   env.generator,
		Chunks:      env.store,
		Documents:   env.store,
		Queue:       env.queue,
		Pipeline:    pipeline,
		Normalisers: normalisers.NewDefaultRegistry(),
		Lock:        lock,
		Snapshots:   env.snapshots,
	})
	env.recon = NewReconciler(index, env.store, env.generator, lock, env.snapshots)

	settings := domain.DefaultSettings().Search
	env.search = NewSearchService(index, env.generator, env.store, settings)
	env.consumer = NewConsumer(env.queue, env.store, env.indexer, 3)

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.snapshots.Flush(ctx)
		_ = env.queue.Close()
	})
	return env
}

// indexDoc indexes the given texts as chunks 0..n-1 of documentID.
func (e *testEnv) indexDoc(t *testing.T, documentID string, meta map[string]any, texts ...string) {
	t.Helper()
	chunks := make([]domain.ChunkInput, len(texts))
	for i, text := range texts {
		chunks[i] = domain.ChunkInput{Index: i, Content: text, Metadata: meta}
	}
	_, err := e.indexer.IndexChunks(context.Background(), domain.IndexRequest{DocumentID: documentID, Chunks: chunks})
	require.NoError(t, err)
}

var errBoom = errors.New("boom")
