package services

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-indexer/internal/core/ports/driving"
)

// Ensure HealthService implements the interface.
var _ driving.HealthService = (*HealthService)(nil)

const healthCheckTimeout = 5 * time.Second

// HealthService checks the service dependencies.
type HealthService struct {
	generator *EmbeddingGenerator
	index     driven.VectorIndex
	chunks    driven.ChunkStore
}

// NewHealthService creates a health service.
func NewHealthService(generator *EmbeddingGenerator, index driven.VectorIndex, chunks driven.ChunkStore) *HealthService {
	return &HealthService{generator: generator, index: index, chunks: chunks}
}

// Health runs every check. The chunk store and the index are required;
// an unreachable embedding provider only degrades the service since
// stored content stays readable.
func (h *HealthService) Health(ctx context.Context) domain.HealthReport {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	report := domain.HealthReport{
		Status: domain.HealthHealthy,
		Checks: make(map[string]domain.HealthCheck, 3),
	}

	if err := h.generator.Ping(ctx); err != nil {
		report.Checks["embedding"] = domain.HealthCheck{Status: domain.HealthUnhealthy, Message: err.Error()}
		report.Status = domain.HealthDegraded
	} else {
		report.Checks["embedding"] = domain.HealthCheck{
			Status:  domain.HealthHealthy,
			Message: fmt.Sprintf("%s (%d dimensions)", h.generator.ModelName(), h.generator.Dimensions()),
		}
	}

	stats := h.index.Stats()
	if stats.Dimension != h.generator.Dimensions() {
		report.Checks["vector_store"] = domain.HealthCheck{
			Status:  domain.HealthUnhealthy,
			Message: fmt.Sprintf("index dimension %d does not match model dimension %d", stats.Dimension, h.generator.Dimensions()),
		}
		report.Status = domain.HealthUnhealthy
	} else {
		report.Checks["vector_store"] = domain.HealthCheck{
			Status:  domain.HealthHealthy,
			Message: fmt.Sprintf("%d live chunks", stats.TotalChunks),
		}
	}

	if err := h.chunks.Ping(ctx); err != nil {
		report.Checks["chunk_store"] = domain.HealthCheck{Status: domain.HealthUnhealthy, Message: err.Error()}
		report.Status = domain.HealthUnhealthy
	} else {
		report.Checks["chunk_store"] = domain.HealthCheck{Status: domain.HealthHealthy}
	}

	return report
}
