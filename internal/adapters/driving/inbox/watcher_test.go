package inbox

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// recordingIndex captures submitted documents.
type recordingIndex struct {
	mu   sync.Mutex
	docs []*domain.Document
	got  chan *domain.Document
}

func newRecordingIndex() *recordingIndex {
	return &recordingIndex{got: make(chan *domain.Document, 16)}
}

func (r *recordingIndex) IndexChunks(context.Context, domain.IndexRequest) (*domain.IndexResponse, error) {
	return nil, domain.ErrNotImplemented
}

func (r *recordingIndex) SubmitDocument(_ context.Context, doc *domain.Document) error {
	r.mu.Lock()
	r.docs = append(r.docs, doc)
	r.mu.Unlock()
	r.got <- doc
	return nil
}

func (r *recordingIndex) Status(context.Context, string) (*domain.IndexStatus, error) {
	return nil, domain.ErrNotImplemented
}

func (r *recordingIndex) Delete(context.Context, string) (*domain.DeleteResponse, error) {
	return nil, domain.ErrNotImplemented
}

func (r *recordingIndex) Flush(context.Context) error { return nil }

func (r *recordingIndex) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

func TestDocumentID(t *testing.T) {
	a := DocumentID("notes/visit.txt")
	assert.Equal(t, a, DocumentID("notes/visit.txt"))
	assert.Equal(t, a, DocumentID("notes/./visit.txt"))
	assert.NotEqual(t, a, DocumentID("notes/other.txt"))
	assert.Len(t, a, 36)
}

func TestIsHidden(t *testing.T) {
	tests := []struct {
		path     string
		expected bool
	}{
		{".hidden", true},
		{"dir/.git/config", true},
		{"notes/visit.txt", false},
		{".", false},
		{"..", false},
		{"file.hidden", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.expected, isHidden(tt.path))
		})
	}
}

func TestHandleFsEvent(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, newRecordingIndex())

	write := func(name string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))
		return path
	}
	txt := write("note.txt")
	md := write("readme.MD")
	html := write("letter.htm")
	pdf := write("scan.pdf")
	hidden := write(".draft.txt")
	sub := filepath.Join(dir, "folder.txt")
	require.NoError(t, os.Mkdir(sub, 0o755))

	tests := []struct {
		name   string
		path   string
		op     fsnotify.Op
		submit bool
	}{
		{"create text", txt, fsnotify.Create, true},
		{"write markdown", md, fsnotify.Write, true},
		{"create html", html, fsnotify.Create, true},
		{"write and chmod", txt, fsnotify.Write | fsnotify.Chmod, true},
		{"chmod only", txt, fsnotify.Chmod, false},
		{"remove", filepath.Join(dir, "gone.txt"), fsnotify.Remove, false},
		{"rename", txt, fsnotify.Rename, false},
		{"unsupported type", pdf, fsnotify.Create, false},
		{"hidden file", hidden, fsnotify.Create, false},
		{"directory named like a file", sub, fsnotify.Create, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, ok := w.handleFsEvent(fsnotify.Event{Name: tt.path, Op: tt.op})
			assert.Equal(t, tt.submit, ok)
			if tt.submit {
				assert.Equal(t, tt.path, path)
			}
		})
	}
}

func TestSubmit(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "ward"), 0o755))
	path := filepath.Join(dir, "ward", "Visit.md")
	require.NoError(t, os.WriteFile(path, []byte("# Visit\nPatient stable."), 0o644))

	index := newRecordingIndex()
	w := New(dir, index)
	require.NoError(t, w.submit(context.Background(), path))

	require.Equal(t, 1, index.count())
	doc := index.docs[0]
	assert.Equal(t, DocumentID("ward/Visit.md"), doc.ID)
	assert.Equal(t, "Visit.md", doc.Filename)
	assert.Equal(t, "md", doc.FileType)
	assert.Equal(t, "# Visit\nPatient stable.", doc.Content)
	assert.Equal(t, "ward/Visit.md", doc.Metadata["path"])
	assert.Equal(t, "inbox", doc.Metadata["source"])

	// A file removed before its debounce fired is skipped.
	require.NoError(t, w.submit(context.Background(), filepath.Join(dir, "missing.txt")))
	assert.Equal(t, 1, index.count())
}

func TestWatcher_Run(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "inbox")
	index := newRecordingIndex()
	w := New(dir, index)
	w.debounce = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	// Wait for the directory to be created and watched.
	require.Eventually(t, func() bool {
		_, err := os.Stat(dir)
		return err == nil
	}, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("first"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte("first draft, revised"), 0o644))

	select {
	case doc := <-index.got:
		assert.Equal(t, DocumentID("note.txt"), doc.ID)
		assert.Equal(t, "first draft, revised", doc.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for submission")
	}

	// Back-to-back writes are coalesced into one submission.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, index.count())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}
}
