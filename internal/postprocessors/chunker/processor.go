// Package chunker provides a sentence-aligned text chunking processor.
//
// Text is normalised, split into sentences and packed greedily into chunks
// of at most ChunkSize characters. Each chunk after the first starts with
// the trailing sentences of its predecessor, up to ChunkOverlap characters.
// A sentence longer than ChunkSize is split again on terminal punctuation;
// one with no inner break becomes a chunk of its own.
package chunker

import (
	"context"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

// Defaults, in characters.
const (
	DefaultChunkSize      = 512
	DefaultChunkOverlap   = 50
	DefaultMinChunkLength = 50
)

// Processor splits document content into sentence-aligned chunks.
// It implements the PostProcessor interface.
type Processor struct {
	chunkSize      int
	overlap        int
	minChunkLength int
	splitter       Splitter
}

// Option configures the chunker processor.
type Option func(*Processor)

// WithChunkSize sets the target chunk size in characters.
func WithChunkSize(size int) Option {
	return func(p *Processor) {
		if size > 0 {
			p.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap budget between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(p *Processor) {
		if overlap >= 0 {
			p.overlap = overlap
		}
	}
}

// WithMinChunkLength sets the shortest chunk worth emitting.
func WithMinChunkLength(n int) Option {
	return func(p *Processor) {
		if n >= 0 {
			p.minChunkLength = n
		}
	}
}

// WithSplitter replaces the sentence splitter.
func WithSplitter(s Splitter) Option {
	return func(p *Processor) {
		if s != nil {
			p.splitter = s
		}
	}
}

// New creates a new chunker processor with the given options.
func New(opts ...Option) *Processor {
	p := &Processor{
		chunkSize:      DefaultChunkSize,
		overlap:        DefaultChunkOverlap,
		minChunkLength: DefaultMinChunkLength,
	}

	for _, opt := range opts {
		opt(p)
	}

	// Ensure overlap doesn't exceed chunk size
	if p.overlap >= p.chunkSize {
		p.overlap = p.chunkSize / 4
	}
	if p.splitter == nil {
		p.splitter = defaultSplitter()
	}

	return p
}

// Name returns the processor name.
func (p *Processor) Name() string {
	return "chunker"
}

// MinChunkLength returns the shortest text that produces a chunk.
func (p *Processor) MinChunkLength() int {
	return p.minChunkLength
}

// Process chunks the document content.
// Input chunks are ignored; this processor creates new chunks from document content.
func (p *Processor) Process(ctx context.Context, doc *domain.Document, _ []domain.Chunk) ([]domain.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := make(map[string]any, len(doc.Metadata)+3)
	for k, v := range doc.Metadata {
		base[k] = v
	}
	base["document_id"] = doc.ID
	if doc.Filename != "" {
		base["filename"] = doc.Filename
	}
	if doc.FileType != "" {
		base["file_type"] = doc.FileType
	}

	chunks := p.Chunk(doc.Content, base)
	for i := range chunks {
		chunks[i].DocumentID = doc.ID
		chunks[i].ID = domain.ChunkID(doc.ID, chunks[i].Index)
	}
	return chunks, nil
}

// Chunk splits text into chunks carrying metadata plus per-chunk statistics.
// IDs are left empty. Text shorter than the minimum length yields no chunks.
func (p *Processor) Chunk(text string, metadata map[string]any) []domain.Chunk {
	normalised := Normalize(text)
	if runeLen(normalised) < p.minChunkLength || normalised == "" {
		return nil
	}

	sentences := p.sentences(normalised)

	var (
		groups  []group
		current group
		curLen  int
	)
	for _, sentence := range sentences {
		sentLen := runeLen(sentence)
		if current.fresh() > 0 && joinedLen(curLen, sentLen) > p.chunkSize && curLen >= p.minChunkLength {
			groups = append(groups, current)
			current = p.seed(current.sentences, sentLen)
			curLen = sentencesLen(current.sentences)
		}
		current.sentences = append(current.sentences, sentence)
		curLen = joinedLen(curLen, sentLen)
	}

	if current.fresh() > 0 {
		if curLen < p.minChunkLength && len(groups) > 0 {
			last := &groups[len(groups)-1]
			last.sentences = append(last.sentences, current.sentences[current.overlap:]...)
		} else {
			groups = append(groups, current)
		}
	}

	chunks := make([]domain.Chunk, 0, len(groups))
	for i, g := range groups {
		chunks = append(chunks, g.chunk(i, metadata))
	}
	return chunks
}

// sentences splits normalised text. A sentence longer than ChunkSize is
// split again on terminal punctuation: Punkt never breaks after a number
// ("during visit 1. Observation 2"), which can fuse a run of short
// statements into one sentence no chunk can hold.
func (p *Processor) sentences(text string) []string {
	split := p.splitter.Split(text)
	if len(split) == 0 {
		return []string{text}
	}
	out := make([]string, 0, len(split))
	for _, sentence := range split {
		if runeLen(sentence) > p.chunkSize {
			if parts := punctuation.Split(sentence); len(parts) > 1 {
				out = append(out, parts...)
				continue
			}
		}
		out = append(out, sentence)
	}
	return out
}

// Estimate returns the expected number of chunks for text.
func (p *Processor) Estimate(text string) int {
	n := runeLen(Normalize(text))
	if n < p.minChunkLength || n == 0 {
		return 0
	}
	step := p.chunkSize - p.overlap/2
	return n/step + 1
}

// seed returns a group starting with the trailing sentences of prev whose
// joined length fits the overlap budget. Leading overlap sentences are
// dropped while the next sentence would push the chunk over ChunkSize, so
// at least one sentence of prev is always left behind.
func (p *Processor) seed(prev []string, nextLen int) group {
	start := len(prev)
	length := 0
	for i := len(prev) - 1; i >= 0; i-- {
		candidate := joinedLen(length, runeLen(prev[i]))
		if candidate > p.overlap {
			break
		}
		length = candidate
		start = i
	}
	for start < len(prev) && joinedLen(sentencesLen(prev[start:]), nextLen) > p.chunkSize {
		start++
	}

	tail := make([]string, len(prev)-start)
	copy(tail, prev[start:])
	return group{sentences: tail, overlap: len(tail)}
}

// group is a chunk under construction.
type group struct {
	sentences []string
	overlap   int
}

// fresh returns the number of sentences not carried over as overlap.
func (g group) fresh() int {
	return len(g.sentences) - g.overlap
}

func (g group) chunk(index int, metadata map[string]any) domain.Chunk {
	c := domain.Chunk{
		Index:            index,
		Content:          strings.Join(g.sentences, " "),
		Sentences:        g.sentences,
		OverlapSentences: g.overlap,
	}

	meta := make(map[string]any, len(metadata)+5)
	for k, v := range metadata {
		meta[k] = v
	}
	meta["chunk_index"] = index
	meta["sentence_count"] = c.SentenceCount()
	meta["character_count"] = c.CharacterCount()
	meta["word_count"] = c.WordCount()
	meta["overlap_sentence_count"] = g.overlap
	c.Metadata = meta

	return c
}

// Normalize replaces control characters with spaces, collapses whitespace
// runs to a single space and trims the result.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	space := false
	for _, r := range text {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == utf8.RuneError {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// joinedLen is the length after appending a piece of length n with a separator.
func joinedLen(cur, n int) int {
	if cur == 0 {
		return n
	}
	return cur + 1 + n
}

func sentencesLen(sentences []string) int {
	length := 0
	for _, s := range sentences {
		length = joinedLen(length, runeLen(s))
	}
	return length
}
