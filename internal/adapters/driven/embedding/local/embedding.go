// Package local provides an embedding service that needs no model server.
//
// Text is tokenised into lower-cased words; word unigrams, word bigrams and
// character trigrams are hashed into a fixed number of buckets with a signed
// feature hash and weighted by log term frequency. Similar wording yields
// similar vectors, which is enough for development, tests and offline use.
package local

import (
	"context"
	"hash/fnv"
	"math"
	"regexp"
	"strings"

	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultDimensions = 384
	ModelName         = "local-hash-v1"
)

var tokenPattern = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`)

// EmbeddingService is a deterministic feature-hashing embedder.
type EmbeddingService struct {
	dimensions int
}

// NewEmbeddingService creates a local embedder producing dimensions-sized vectors.
func NewEmbeddingService(dimensions int) *EmbeddingService {
	if dimensions <= 0 {
		dimensions = DefaultDimensions
	}
	return &EmbeddingService{dimensions: dimensions}
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.vector(text), nil
}

// EmbedBatch generates embeddings for multiple texts.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = s.vector(text)
	}
	return out, nil
}

func (s *EmbeddingService) vector(text string) []float32 {
	counts := make(map[string]int)
	tokens := tokenPattern.FindAllString(strings.ToLower(text), -1)
	for i, tok := range tokens {
		counts["w:"+tok]++
		if i > 0 {
			counts["b:"+tokens[i-1]+" "+tok]++
		}
		runes := []rune(" " + tok + " ")
		for j := 0; j+3 <= len(runes); j++ {
			counts["c:"+string(runes[j:j+3])]++
		}
	}

	vec := make([]float32, s.dimensions)
	for feature, n := range counts {
		h := fnv.New64a()
		_, _ = h.Write([]byte(feature))
		sum := h.Sum64()

		weight := float32(1 + math.Log(float64(n)))
		if strings.HasPrefix(feature, "c:") {
			weight *= 0.5
		}
		if sum>>63 == 1 {
			weight = -weight
		}
		vec[sum%uint64(s.dimensions)] += weight
	}
	return vec
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return ModelName
}

// Ping always succeeds; the embedder runs in process.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}
