package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	calls   int
	sent    [][]string
	dim     int
	failErr error
}

func (f *fakeBackend) GenerateBatchEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	f.sent = append(f.sent, texts)
	if f.failErr != nil {
		return nil, f.failErr
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, f.dim)
		// Deterministic per-text vector so assertions can tell inputs apart.
		vec[0] = float32(len(text))
		out[i] = vec
	}
	return out, nil
}

func newTestService(backend *fakeBackend) *Service {
	return NewService(backend, NewMemoryCache(16), "test-model", backend.dim, time.Hour)
}

func TestEmbedCachesRepeatedText(t *testing.T) {
	backend := &fakeBackend{dim: 4}
	svc := newTestService(backend)
	ctx := context.Background()

	first, err := svc.Embed(ctx, "I feel anxious")
	require.NoError(t, err)

	second, err := svc.Embed(ctx, "I feel anxious")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, backend.calls)
}

func TestEmbedNormalizationSharesCacheEntry(t *testing.T) {
	backend := &fakeBackend{dim: 4}
	svc := newTestService(backend)
	ctx := context.Background()

	_, err := svc.Embed(ctx, "I Feel   Anxious")
	require.NoError(t, err)
	_, err = svc.Embed(ctx, "i feel anxious")
	require.NoError(t, err)

	assert.Equal(t, 1, backend.calls)
}

func TestEmbedBatchPreservesOrder(t *testing.T) {
	backend := &fakeBackend{dim: 4}
	svc := newTestService(backend)
	ctx := context.Background()

	vecs, err := svc.EmbedBatch(ctx, []string{"alpha", "be", "gamma ray"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, float32(len("alpha")), vecs[0][0])
	assert.Equal(t, float32(len("be")), vecs[1][0])
	assert.Equal(t, float32(len("gamma ray")), vecs[2][0])
}

func TestEmbedBatchDeduplicatesWithinCall(t *testing.T) {
	backend := &fakeBackend{dim: 4}
	svc := newTestService(backend)
	ctx := context.Background()

	vecs, err := svc.EmbedBatch(ctx, []string{"same", "same", "other"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, vecs[0], vecs[1])

	require.Len(t, backend.sent, 1)
	assert.Equal(t, []string{"same", "other"}, backend.sent[0])
}

func TestEmbedEmptyInput(t *testing.T) {
	svc := newTestService(&fakeBackend{dim: 4})
	ctx := context.Background()

	_, err := svc.EmbedBatch(ctx, nil)
	assert.ErrorIs(t, err, ErrEmptyInput)

	_, err = svc.Embed(ctx, "   ")
	assert.ErrorIs(t, err, ErrEmptyInput)
}

func TestEmbedBackendFailure(t *testing.T) {
	backend := &fakeBackend{dim: 4, failErr: errors.New("connection refused")}
	svc := newTestService(backend)

	_, err := svc.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEmbedDimensionMismatch(t *testing.T) {
	backend := &fakeBackend{dim: 4}
	svc := NewService(backend, nil, "test-model", 8, time.Hour)

	_, err := svc.Embed(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("  A\tb \n C "))
	assert.Equal(t, "", Normalize("   "))
}
