package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/viant/vec/search"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/logger"
)

// Embedding generator defaults.
const (
	DefaultEmbeddingBatchSize    = 32
	DefaultEmbeddingBatchTimeout = 60 * time.Second
)

// EmbeddingGenerator turns texts into L2-normalised vectors using a provider.
// Inputs are sent in fixed-size batches, each bounded by a timeout.
type EmbeddingGenerator struct {
	svc          driven.EmbeddingService
	batchSize    int
	batchTimeout time.Duration
}

// NewEmbeddingGenerator wraps svc. Non-positive values fall back to defaults.
func NewEmbeddingGenerator(svc driven.EmbeddingService, batchSize int, batchTimeout time.Duration) *EmbeddingGenerator {
	if batchSize <= 0 {
		batchSize = DefaultEmbeddingBatchSize
	}
	if batchTimeout <= 0 {
		batchTimeout = DefaultEmbeddingBatchTimeout
	}
	return &EmbeddingGenerator{svc: svc, batchSize: batchSize, batchTimeout: batchTimeout}
}

// Dimensions returns the vector size of the model.
func (g *EmbeddingGenerator) Dimensions() int {
	return g.svc.Dimensions()
}

// ModelName returns the model identifier stored alongside embeddings.
func (g *EmbeddingGenerator) ModelName() string {
	return g.svc.ModelName()
}

// Embed returns one normalised vector per text, in input order.
// An empty input returns an empty result without calling the provider.
func (g *EmbeddingGenerator) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := min(start+g.batchSize, len(texts))

		vectors, err := g.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// EmbedQuery embeds a single search query.
func (g *EmbeddingGenerator) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := g.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *EmbeddingGenerator) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	batchCtx, cancel := context.WithTimeout(ctx, g.batchTimeout)
	defer cancel()

	started := time.Now()
	vectors, err := g.svc.EmbedBatch(batchCtx, batch)
	if err != nil {
		// Caller cancellation is not an outage.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, domain.ErrEmbeddingUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEmbeddingUnavailable, g.svc.ModelName(), err)
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("%w: %s returned %d vectors for %d texts",
			domain.ErrEmbeddingUnavailable, g.svc.ModelName(), len(vectors), len(batch))
	}

	dim := g.svc.Dimensions()
	for i, v := range vectors {
		if len(v) != dim {
			return nil, fmt.Errorf("%w: %s returned %d dimensions, expected %d",
				domain.ErrDimensionMismatch, g.svc.ModelName(), len(v), dim)
		}
		unit, ok := Normalize(v)
		if !ok {
			return nil, fmt.Errorf("%w: %s returned a zero vector for text %q",
				domain.ErrInvalidInput, g.svc.ModelName(), preview(batch[i]))
		}
		vectors[i] = unit
	}

	logger.Debug("embedded batch", "model", g.svc.ModelName(), "size", len(batch),
		"duration_ms", time.Since(started).Milliseconds())
	return vectors, nil
}

// Info describes the model. Status is "loaded" when the provider answers a ping.
func (g *EmbeddingGenerator) Info(ctx context.Context) domain.EmbeddingInfo {
	status := "loaded"
	if err := g.Ping(ctx); err != nil {
		status = "unavailable"
	}
	return domain.EmbeddingInfo{
		Name:      g.svc.ModelName(),
		Dimension: g.svc.Dimensions(),
		BatchSize: g.batchSize,
		Status:    status,
	}
}

// Ping checks the provider is reachable.
func (g *EmbeddingGenerator) Ping(ctx context.Context) error {
	if err := g.svc.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", domain.ErrEmbeddingUnavailable, err)
	}
	return nil
}

// Normalize scales v to unit length in place. It reports false, leaving v
// unchanged, when v has no direction: a zero, NaN or infinite magnitude.
func Normalize(v []float32) ([]float32, bool) {
	mag := search.Float32s(v).Magnitude()
	if mag == 0 || math.IsNaN(float64(mag)) || math.IsInf(float64(mag), 0) {
		return v, false
	}
	for i := range v {
		v[i] /= mag
	}
	return v, true
}

// preview shortens text for error messages.
func preview(text string) string {
	const limit = 40
	if r := []rune(text); len(r) > limit {
		return string(r[:limit]) + "..."
	}
	return text
}
