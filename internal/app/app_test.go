package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

const noteText = "Patient reports improved glucose control after the insulin dose was adjusted. " +
	"Blood pressure remains within the target range and no new symptoms were noted."

func writeConfig(t *testing.T, backend string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	cfg := fmt.Sprintf(`
[storage]
backend = %q
data_dir = %q

[embedding]
provider = "local"
dimensions = 64

[chunker]
chunk_size = 200
chunk_overlap = 20
min_chunk_length = 10

[consumer]
poll_interval = "20ms"

[log]
level = "warn"
`, backend, dataDir)
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path, dataDir
}

func TestLoadSettings_RejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[server]\nport = 0\n"), 0o600))

	_, _, err := LoadSettings(path)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNew_MemoryBackendIngestsAndSearches(t *testing.T) {
	path, _ := writeConfig(t, "memory")
	ctx := context.Background()

	a, err := New(ctx, Options{ConfigPath: path})
	require.NoError(t, err)
	defer a.Close()

	doc := &domain.Document{Filename: "visit.txt", Content: noteText}
	require.NoError(t, a.Indexer.SubmitDocument(ctx, doc))
	require.NotEmpty(t, doc.ID)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- a.Consumer.Run(runCtx) }()

	require.Eventually(t, func() bool {
		status, err := a.Indexer.Status(ctx, doc.ID)
		return err == nil && status.Status == domain.IndexStateCompleted
	}, 5*time.Second, 20*time.Millisecond)

	stop()
	require.NoError(t, <-done)

	resp, err := a.Search.Search(ctx, domain.SearchRequest{Query: "insulin dose glucose"})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, doc.ID, resp.Results[0].DocumentID)

	report := a.Health.Health(ctx)
	assert.Equal(t, domain.HealthHealthy, report.Status)
}

func TestNew_SQLiteSnapshotSurvivesRestart(t *testing.T) {
	path, dataDir := writeConfig(t, "sqlite")
	ctx := context.Background()

	a, err := New(ctx, Options{ConfigPath: path})
	require.NoError(t, err)

	_, err = a.Indexer.IndexChunks(ctx, domain.IndexRequest{
		DocumentID: "doc-1",
		Chunks: []domain.ChunkInput{
			{Index: 0, Content: "first chunk about insulin"},
			{Index: 1, Content: "second chunk about blood pressure"},
		},
	})
	require.NoError(t, err)
	require.NoError(t, a.Close())

	assert.FileExists(t, filepath.Join(dataDir, "index.sixf"))

	a, err = New(ctx, Options{ConfigPath: path})
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, 2, a.Index.Stats().TotalChunks)

	report, err := a.Reconciler.Reconcile(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, domain.ReconcileInSync, report.Status)
	assert.False(t, report.Rebuilt)
}

func TestServe_StopsOnCancel(t *testing.T) {
	path, _ := writeConfig(t, "memory")
	ctx, cancel := context.WithCancel(context.Background())

	a, err := New(ctx, Options{ConfigPath: path})
	require.NoError(t, err)
	defer a.Close()

	done := make(chan error, 1)
	go func() {
		done <- a.Serve(ctx, ServeOptions{Version: "test", Addr: "127.0.0.1:0", MCP: true})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
