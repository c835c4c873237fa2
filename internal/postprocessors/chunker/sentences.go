package chunker

import (
	"regexp"
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"

	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// Splitter splits normalised text into sentences.
type Splitter interface {
	Split(text string) []string
}

// PunktSplitter detects sentence boundaries with the Punkt algorithm,
// which handles abbreviations ("Dr.", "e.g.") and initials.
type PunktSplitter struct {
	tokenizer *sentences.DefaultSentenceTokenizer
}

// NewPunktSplitter loads the English Punkt model.
func NewPunktSplitter() (*PunktSplitter, error) {
	tokenizer, err := english.NewSentenceTokenizer(nil)
	if err != nil {
		return nil, err
	}
	return &PunktSplitter{tokenizer: tokenizer}, nil
}

// Split returns the trimmed, non-empty sentences of text.
func (s *PunktSplitter) Split(text string) []string {
	tokens := s.tokenizer.Tokenize(text)
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if sentence := strings.TrimSpace(tok.Text); sentence != "" {
			out = append(out, sentence)
		}
	}
	return out
}

// RegexSplitter splits on terminal punctuation followed by whitespace, so
// "3.5" and "a.m." stay whole. Text after the last terminator is kept as a
// final sentence.
type RegexSplitter struct {
	pattern *regexp.Regexp
}

// NewRegexSplitter creates a punctuation-based splitter.
func NewRegexSplitter() *RegexSplitter {
	return &RegexSplitter{pattern: regexp.MustCompile(`(?s).+?[.!?]+(?:\s+|$)`)}
}

// Split returns the trimmed, non-empty sentences of text.
func (s *RegexSplitter) Split(text string) []string {
	var out []string
	end := 0
	for _, loc := range s.pattern.FindAllStringIndex(text, -1) {
		if sentence := strings.TrimSpace(text[loc[0]:loc[1]]); sentence != "" {
			out = append(out, sentence)
		}
		end = loc[1]
	}
	if rest := strings.TrimSpace(text[end:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// punctuation re-splits sentences too long for a chunk.
var punctuation = NewRegexSplitter()

var defaultSplitter = sync.OnceValue(func() Splitter {
	punkt, err := NewPunktSplitter()
	if err != nil {
		logger.Warn("punkt model unavailable, using punctuation splitter", "error", err)
		return NewRegexSplitter()
	}
	return punkt
})
