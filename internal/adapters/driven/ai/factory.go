// Package ai provides factory functions for creating AI service adapters.
package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-indexer/internal/adapters/driven/embedding/local"
	ollamaembed "github.com/custodia-labs/sercha-indexer/internal/adapters/driven/embedding/ollama"
	openaiembed "github.com/custodia-labs/sercha-indexer/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
)

// pingTimeout is the maximum time to wait for service connectivity validation.
const pingTimeout = 5 * time.Second

// CreateEmbeddingService creates an embedding service from settings.
// The service's dimension must match settings.Dimensions.
func CreateEmbeddingService(settings *domain.EmbeddingSettings) (driven.EmbeddingService, error) {
	if settings == nil {
		return nil, fmt.Errorf("%w: no embedding settings", domain.ErrInvalidInput)
	}
	if !settings.IsConfigured() {
		return nil, fmt.Errorf("%w: embedding provider %q not configured", domain.ErrInvalidInput, settings.Provider)
	}

	var svc driven.EmbeddingService
	switch settings.Provider {
	case domain.EmbeddingProviderLocal:
		svc = local.NewEmbeddingService(settings.Dimensions)
	case domain.EmbeddingProviderOllama:
		svc = ollamaembed.NewEmbeddingService(ollamaembed.Config{
			BaseURL:           settings.BaseURL,
			Model:             settings.Model,
			Timeout:           settings.BatchTimeout,
			Dimensions:        settings.Dimensions,
			RequestsPerSecond: settings.RequestsPerSecond,
		})
	case domain.EmbeddingProviderOpenAI:
		openaiSvc, err := openaiembed.NewEmbeddingService(openaiembed.Config{
			APIKey:            settings.APIKey,
			BaseURL:           settings.BaseURL,
			Model:             settings.Model,
			Timeout:           settings.BatchTimeout,
			Dimensions:        settings.Dimensions,
			MaxTokens:         settings.MaxTokens,
			RequestsPerSecond: settings.RequestsPerSecond,
		})
		if err != nil {
			return nil, err
		}
		svc = openaiSvc
	default:
		return nil, fmt.Errorf("%w: embedding provider %q", domain.ErrUnsupportedType, settings.Provider)
	}

	if settings.Dimensions > 0 && svc.Dimensions() != settings.Dimensions {
		_ = svc.Close()
		return nil, fmt.Errorf("%w: model %s produces %d dimensions, configured %d",
			domain.ErrDimensionMismatch, svc.ModelName(), svc.Dimensions(), settings.Dimensions)
	}
	return svc, nil
}

// CheckEmbeddingService pings the service with a short timeout.
// Failures are wrapped with domain.ErrEmbeddingUnavailable.
func CheckEmbeddingService(ctx context.Context, svc driven.EmbeddingService) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := svc.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %s unreachable: %w", domain.ErrEmbeddingUnavailable, svc.ModelName(), err)
	}
	return nil
}
