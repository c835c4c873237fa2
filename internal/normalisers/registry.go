package normalisers

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
	"github.com/custodia-labs/sercha-indexer/internal/normalisers/html"
	"github.com/custodia-labs/sercha-indexer/internal/normalisers/markdown"
	"github.com/custodia-labs/sercha-indexer/internal/normalisers/plaintext"
)

// fallbackMaxPriority is the highest priority of the fallback band.
const fallbackMaxPriority = 9

// Ensure Registry implements the interface.
var _ driven.NormaliserRegistry = (*Registry)(nil)

// Registry dispatches documents to normalisers by file type.
type Registry struct {
	mu          sync.RWMutex
	normalisers []driven.Normaliser // sorted by descending priority
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry returns a registry with the plaintext, markdown and
// html normalisers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(plaintext.New())
	r.Register(markdown.New())
	r.Register(html.New())
	return r
}

// Register adds a normaliser.
func (r *Registry) Register(n driven.Normaliser) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.normalisers = append(r.normalisers, n)
	sort.SliceStable(r.normalisers, func(i, j int) bool {
		return r.normalisers[i].Priority() > r.normalisers[j].Priority()
	})
}

// SupportedFileTypes returns the sorted set of registered file types.
func (r *Registry) SupportedFileTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, n := range r.normalisers {
		for _, ft := range n.SupportedFileTypes() {
			seen[ft] = struct{}{}
		}
	}
	types := make([]string, 0, len(seen))
	for ft := range seen {
		types = append(types, ft)
	}
	sort.Strings(types)
	return types
}

// Normalise runs the selected normaliser on doc. A document with no
// matching normaliser and no fallback is left untouched.
func (r *Registry) Normalise(ctx context.Context, doc *domain.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is required", domain.ErrInvalidInput)
	}

	n := r.selectFor(normaliseFileType(doc.FileType))
	if n == nil {
		return nil
	}
	if err := n.Normalise(ctx, doc); err != nil {
		return fmt.Errorf("normalise %s: %w", doc.FileType, err)
	}
	logger.Debug("document normalised", "file_type", doc.FileType, "characters", len(doc.Content))
	return nil
}

func (r *Registry) selectFor(fileType string) driven.Normaliser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if fileType != "" {
		for _, n := range r.normalisers {
			for _, ft := range n.SupportedFileTypes() {
				if ft == fileType {
					return n
				}
			}
		}
	}
	for _, n := range r.normalisers {
		if n.Priority() <= fallbackMaxPriority {
			return n
		}
	}
	return nil
}

// normaliseFileType lower cases a file type and drops a leading dot.
func normaliseFileType(ft string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ft)), ".")
}
