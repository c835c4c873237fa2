// Package markdown reduces markdown to plain text.
package markdown

import (
	"context"
	"regexp"
	"strings"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles Markdown documents.
type Normaliser struct{}

// New creates a new Markdown normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedFileTypes returns the file types this normaliser handles.
func (n *Normaliser) SupportedFileTypes() []string {
	return []string{"md", "markdown"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise replaces the markdown in doc.Content with its text and records
// the first H1 as the title.
func (n *Normaliser) Normalise(_ context.Context, doc *domain.Document) error {
	if doc == nil {
		return domain.ErrInvalidInput
	}

	source := plaintext.Clean(doc.Content)
	title := extractTitle(source)
	if title == "" {
		title = plaintext.TitleFromFilename(doc.Filename)
	}

	doc.Content = stripMarkdown(source)
	plaintext.SetDefault(doc, "title", title)
	plaintext.SetDefault(doc, "format", "markdown")
	return nil
}

var (
	fencedCode    = regexp.MustCompile("(?m)^\\s*(```|~~~).*$")
	inlineCode    = regexp.MustCompile("`([^`\n]+)`")
	images        = regexp.MustCompile(`!\[([^\]]*)\]\([^)]*\)`)
	links         = regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`)
	headings      = regexp.MustCompile(`(?m)^\s{0,3}#{1,6}\s+`)
	bold          = regexp.MustCompile(`(\*\*|__)([^*_\n]+)(\*\*|__)`)
	italic        = regexp.MustCompile(`(^|[\s(])[*_]([^*_\s][^*_\n]*?)[*_]([\s).,;:!?]|$)`)
	blockquotes   = regexp.MustCompile(`(?m)^\s{0,3}>\s?`)
	rules         = regexp.MustCompile(`(?m)^\s*([-*_]\s*){3,}$`)
	bullets       = regexp.MustCompile(`(?m)^(\s*)[-*+]\s+`)
	numbered      = regexp.MustCompile(`(?m)^(\s*)\d+[.)]\s+`)
	tablePipes    = regexp.MustCompile(`(?m)^\s*\|?(\s*:?-+:?\s*\|)+\s*:?-*:?\s*$`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// extractTitle returns the text of the first H1 heading.
func extractTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "# "))
		}
	}
	return ""
}

// stripMarkdown removes markdown syntax. Code keeps its text so identifiers
// stay searchable; only the fences go.
func stripMarkdown(content string) string {
	content = fencedCode.ReplaceAllString(content, "")
	content = inlineCode.ReplaceAllString(content, "$1")
	content = images.ReplaceAllString(content, "$1")
	content = links.ReplaceAllString(content, "$1")
	content = headings.ReplaceAllString(content, "")
	content = bold.ReplaceAllString(content, "$2")
	content = italic.ReplaceAllString(content, "$1$2$3")
	content = blockquotes.ReplaceAllString(content, "")
	content = tablePipes.ReplaceAllString(content, "")
	content = rules.ReplaceAllString(content, "")
	content = bullets.ReplaceAllString(content, "$1")
	content = numbered.ReplaceAllString(content, "$1")
	content = multiNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}
