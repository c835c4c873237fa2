// Package html extracts readable text from HTML documents.
package html

import (
	"context"
	"html"
	"regexp"
	"strings"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/normalisers/plaintext"
)

// Ensure Normaliser implements the interface.
var _ driven.Normaliser = (*Normaliser)(nil)

// Normaliser handles HTML documents.
type Normaliser struct{}

// New creates a new HTML normaliser.
func New() *Normaliser {
	return &Normaliser{}
}

// SupportedFileTypes returns the file types this normaliser handles.
func (n *Normaliser) SupportedFileTypes() []string {
	return []string{"html", "htm", "xhtml"}
}

// Priority returns the selection priority.
func (n *Normaliser) Priority() int {
	return 50
}

// Normalise replaces the markup in doc.Content with its visible text and
// records the <title> as the title.
func (n *Normaliser) Normalise(_ context.Context, doc *domain.Document) error {
	if doc == nil {
		return domain.ErrInvalidInput
	}

	source := plaintext.Clean(doc.Content)
	title := extractTitle(source)
	if title == "" {
		title = plaintext.TitleFromFilename(doc.Filename)
	}

	doc.Content = stripHTML(source)
	plaintext.SetDefault(doc, "title", title)
	plaintext.SetDefault(doc, "format", "html")
	return nil
}

// Pre-compiled regular expressions for HTML parsing performance.
var (
	titleTag      = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	comments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockBoundary = regexp.MustCompile(`(?i)</?(p|div|h[1-6]|li|tr|td|th|blockquote|pre|table|section|article|header|footer|ul|ol|dl|dt|dd)(\s[^>]*)?>`)
	lineBreaks    = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags       = regexp.MustCompile(`<[^>]+>`)
	multiSpaces   = regexp.MustCompile(`[ \t\f\v]+`)

	// Elements whose content is never visible.
	dropped = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<head[\s>].*?</head>`),
		regexp.MustCompile(`(?is)<script[\s>].*?</script>`),
		regexp.MustCompile(`(?is)<style[\s>].*?</style>`),
		regexp.MustCompile(`(?is)<noscript[\s>].*?</noscript>`),
		regexp.MustCompile(`(?is)<svg[\s>].*?</svg>`),
		regexp.MustCompile(`(?is)<template[\s>].*?</template>`),
	}
)

// extractTitle returns the decoded text of the <title> element.
func extractTitle(content string) string {
	matches := titleTag.FindStringSubmatch(content)
	if len(matches) < 2 {
		return ""
	}
	return strings.TrimSpace(multiSpaces.ReplaceAllString(html.UnescapeString(matches[1]), " "))
}

// stripHTML drops non-visible elements and tags, keeping one line per block.
func stripHTML(content string) string {
	for _, re := range dropped {
		content = re.ReplaceAllString(content, "")
	}
	content = comments.ReplaceAllString(content, "")
	content = blockBoundary.ReplaceAllString(content, "\n")
	content = lineBreaks.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = strings.ReplaceAll(content, "\u00a0", " ")

	lines := strings.Split(content, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(multiSpaces.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
