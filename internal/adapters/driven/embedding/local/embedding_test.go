package local

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestNewEmbeddingService(t *testing.T) {
	s := NewEmbeddingService(0)
	assert.Equal(t, DefaultDimensions, s.Dimensions())
	assert.Equal(t, ModelName, s.ModelName())
	assert.NoError(t, s.Ping(context.Background()))
	assert.NoError(t, s.Close())
}

func TestEmbed_Deterministic(t *testing.T) {
	s := NewEmbeddingService(64)
	ctx := context.Background()

	a, err := s.Embed(ctx, "Patient presents with chest pain")
	require.NoError(t, err)
	b, err := s.Embed(ctx, "Patient presents with chest pain")
	require.NoError(t, err)

	assert.Len(t, a, 64)
	assert.Equal(t, a, b)
}

func TestEmbed_SimilarTextScoresHigher(t *testing.T) {
	s := NewEmbeddingService(384)
	ctx := context.Background()

	vecs, err := s.EmbedBatch(ctx, []string{
		"severe chest pain radiating to the left arm",
		"chest pain radiating to the arm",
		"quarterly revenue grew in the retail segment",
	})
	require.NoError(t, err)
	require.Len(t, vecs, 3)

	assert.Greater(t, cosine(vecs[0], vecs[1]), cosine(vecs[0], vecs[2]))
}

func TestEmbedBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEmbeddingService(8).EmbedBatch(ctx, []string{"a"})
	assert.Error(t, err)
}
