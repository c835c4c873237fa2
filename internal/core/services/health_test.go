package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/custodia-labs/sercha-indexer/internal/core/domain"
)

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	health := NewHealthService(env.generator, env.index, env.store)

	report := health.Health(context.Background())
	assert.Equal(t, domain.HealthHealthy, report.Status)
	assert.Len(t, report.Checks, 3)

	env.embedder.pingErr = errBoom
	report = health.Health(context.Background())
	assert.Equal(t, domain.HealthDegraded, report.Status)
	assert.Equal(t, domain.HealthUnhealthy, report.Checks["embedding"].Status)

	env.store.PingErr = domain.ErrStoreUnavailable
	report = health.Health(context.Background())
	assert.Equal(t, domain.HealthUnhealthy, report.Status)
	assert.Contains(t, report.Checks["chunk_store"].Message, "unavailable")
}

func TestHealth_DimensionMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.embedder.dims = testDims * 2
	health := NewHealthService(env.generator, env.index, env.store)

	report := health.Health(context.Background())
	assert.Equal(t, domain.HealthUnhealthy, report.Status)
	assert.Equal(t, domain.HealthUnhealthy, report.Checks["vector_store"].Status)
}
