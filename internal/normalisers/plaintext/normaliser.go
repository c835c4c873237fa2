// Package plaintext cleans up plain text submissions.
package plaintext

import (
	"context"
	"strings"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

const byteOrderMark = "\ufeff"

// Normaliser handles plain text documents and any type without a dedicated
// normaliser.
type Normaliser struct{}

// New creates a new plain text normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedFileTypes returns the file types this normaliser handles.
func (n *Normaliser) SupportedFileTypes() []string {
	return []string{"txt", "text", "log", "csv"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 5 // Fallback normaliser
}

// Normalise strips a byte order mark, converts line endings to \n and
// trims surrounding whitespace.
func (n *Normaliser) Normalise(_ context.Context, doc *domain.Document) error {
	if doc == nil {
		return domain.ErrInvalidInput
	}
	doc.Content = Clean(doc.Content)

	SetDefault(doc, "title", TitleFromFilename(doc.Filename))
	return nil
}

// Clean applies the plain text clean up shared by every normaliser.
func Clean(s string) string {
	s = strings.TrimPrefix(s, byteOrderMark)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	return strings.TrimSpace(s)
}

// TitleFromFilename derives a readable title from a file name.
func TitleFromFilename(filename string) string {
	if filename == "" {
		return ""
	}
	name := filename
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i > 0 {
		name = name[:i]
	}
	name = strings.ReplaceAll(name, "_", " ")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}

// SetDefault sets metadata key to value unless the key is present or the
// value is empty.
func SetDefault(doc *domain.Document, key, value string) {
	if value == "" {
		return
	}
	if doc.Metadata == nil {
		doc.Metadata = make(map[string]any)
	}
	if _, ok := doc.Metadata[key]; !ok {
		doc.Metadata[key] = value
	}
}
