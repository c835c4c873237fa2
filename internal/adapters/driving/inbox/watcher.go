// Package inbox watches a drop directory and submits new or changed text
// files for indexing.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

const (
	defaultDebounce = 500 * time.Millisecond

	// maxFileSize skips files too large to be plain notes.
	maxFileSize = 16 << 20
)

// namespace scopes inbox document ids.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("sercha-indexer://inbox"))

// extensions lists the file types picked up from the inbox. Each has a
// normaliser applied on submission.
var extensions = map[string]struct{}{
	".txt":      {},
	".md":       {},
	".markdown": {},
	".html":     {},
	".htm":      {},
}

// DocumentID derives a stable document id from a path relative to the inbox.
// Dropping the same file again re-indexes the same document.
func DocumentID(rel string) string {
	return uuid.NewSHA1(namespace, []byte(filepath.ToSlash(filepath.Clean(rel)))).String()
}

// Watcher submits files written to a directory tree.
type Watcher struct {
	dir      string
	index    driving.IndexService
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	wg      sync.WaitGroup
}

// New creates a watcher for dir. The directory is created if missing.
func New(dir string, index driving.IndexService) *Watcher {
	return &Watcher{
		dir:      dir,
		index:    index,
		debounce: defaultDebounce,
		pending:  make(map[string]*time.Timer),
	}
}

// Run watches until ctx is cancelled. Submissions already started are
// allowed to finish before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("creating inbox %s: %w", w.dir, err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer fsw.Close()

	if err := w.addTree(fsw, w.dir); err != nil {
		return err
	}
	logger.Info("inbox watching", "dir", w.dir)

	defer w.wait()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && isDir(event.Name) && !isHidden(w.rel(event.Name)) {
				if err := w.addTree(fsw, event.Name); err != nil {
					logger.Warn("inbox subdirectory not watched", "path", event.Name, "error", err)
				}
				continue
			}
			if path, ok := w.handleFsEvent(event); ok {
				w.schedule(ctx, path)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("inbox watcher error", "error", err)
		}
	}
}

// handleFsEvent returns the file to submit for an event, if any.
func (w *Watcher) handleFsEvent(event fsnotify.Event) (string, bool) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return "", false
	}
	if isHidden(w.rel(event.Name)) {
		return "", false
	}
	if _, ok := extensions[strings.ToLower(filepath.Ext(event.Name))]; !ok {
		return "", false
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.Mode().IsRegular() {
		return "", false
	}
	return event.Name, true
}

// schedule submits path once writes to it have settled.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.pending[path]; ok && t.Stop() {
		t.Reset(w.debounce)
		return
	}

	var timer *time.Timer
	w.wg.Add(1)
	timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()

		w.mu.Lock()
		if w.pending[path] == timer {
			delete(w.pending, path)
		}
		w.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if err := w.submit(context.WithoutCancel(ctx), path); err != nil {
			logger.Warn("inbox submit failed", "path", path, "error", err)
		}
	})
	w.pending[path] = timer
}

// wait stops timers that have not fired and waits for running submissions.
func (w *Watcher) wait() {
	w.mu.Lock()
	for path, t := range w.pending {
		if t.Stop() {
			w.wg.Done()
		}
		delete(w.pending, path)
	}
	w.mu.Unlock()
	w.wg.Wait()
}

// submit reads a file and hands it to the index service.
func (w *Watcher) submit(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	if info.Size() > maxFileSize {
		return fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrInvalidInput, info.Size(), maxFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	rel := w.rel(path)
	doc := &domain.Document{
		ID:       DocumentID(rel),
		Filename: filepath.Base(path),
		FileType: strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."),
		Content:  string(content),
		Metadata: map[string]any{
			"source":     "inbox",
			"path":       filepath.ToSlash(rel),
			"created_at": info.ModTime().UTC().Format(time.RFC3339),
		},
	}
	if err := w.index.SubmitDocument(ctx, doc); err != nil {
		return err
	}
	logger.Debug("inbox file submitted", "path", rel, "document_id", doc.ID)
	return nil
}

// addTree watches root and every non-hidden directory below it.
func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.dir && isHidden(w.rel(path)) {
			return filepath.SkipDir
		}
		if err := fsw.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) rel(path string) string {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil {
		return path
	}
	return rel
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// isHidden reports whether any element of path starts with a dot.
// "." and ".." are not hidden.
func isHidden(path string) bool {
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if len(part) > 1 && part[0] == '.' && part != ".." {
			return true
		}
	}
	return false
}
