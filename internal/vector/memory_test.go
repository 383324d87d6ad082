package vector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/internal/tenant"
)

func chunk(id, docID string, idx int, orgID string, vec []float32, updated time.Time) models.Chunk {
	return models.Chunk{
		ID:           id,
		DocumentID:   docID,
		ChunkIndex:   idx,
		Text:         "text " + id,
		Vector:       vec,
		OrgID:        orgID,
		DocUpdatedAt: updated,
	}
}

func TestMemoryStoreScopeFiltering(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Upsert(ctx, []models.Chunk{
		chunk("g1", "doc-g", 0, "", []float32{1, 0}, now),
		chunk("a1", "doc-a", 0, "org-a", []float32{1, 0}, now),
		chunk("b1", "doc-b", 0, "org-b", []float32{1, 0}, now),
	}))

	global, err := store.Search(ctx, []float32{1, 0}, tenant.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.Equal(t, "g1", global[0].ChunkID)

	orgA, err := store.Search(ctx, []float32{1, 0}, tenant.OrgScope("org-a"), 10)
	require.NoError(t, err)
	require.Len(t, orgA, 2)
	for _, m := range orgA {
		assert.NotEqual(t, "b1", m.ChunkID)
	}
}

func TestMemoryStoreRanking(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Upsert(ctx, []models.Chunk{
		chunk("far", "doc-1", 0, "", []float32{0, 1}, now),
		chunk("near", "doc-2", 0, "", []float32{1, 0}, now),
		chunk("mid", "doc-3", 0, "", []float32{1, 1}, now),
	}))

	matches, err := store.Search(ctx, []float32{1, 0}, tenant.GlobalScope(), 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "near", matches[0].ChunkID)
	assert.Equal(t, "mid", matches[1].ChunkID)
}

func TestMemoryStoreTieBreaks(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := older.AddDate(0, 0, 1)

	// Identical vectors: newer document wins, then (doc ID, chunk index).
	require.NoError(t, store.Upsert(ctx, []models.Chunk{
		chunk("c-old", "doc-z", 0, "", []float32{1, 0}, older),
		chunk("c-new", "doc-m", 0, "", []float32{1, 0}, newer),
		chunk("c-new2", "doc-a", 1, "", []float32{1, 0}, newer),
		chunk("c-new1", "doc-a", 0, "", []float32{1, 0}, newer),
	}))

	matches, err := store.Search(ctx, []float32{1, 0}, tenant.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, matches, 4)
	assert.Equal(t, "c-new1", matches[0].ChunkID)
	assert.Equal(t, "c-new2", matches[1].ChunkID)
	assert.Equal(t, "c-new", matches[2].ChunkID)
	assert.Equal(t, "c-old", matches[3].ChunkID)

	// Repeated search returns the identical ordering.
	again, err := store.Search(ctx, []float32{1, 0}, tenant.GlobalScope(), 10)
	require.NoError(t, err)
	assert.Equal(t, matches, again)
}

func TestMemoryStoreDeleteDocument(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Upsert(ctx, []models.Chunk{
		chunk("a0", "doc-a", 0, "", []float32{1, 0}, now),
		chunk("a1", "doc-a", 1, "", []float32{1, 0}, now),
		chunk("b0", "doc-b", 0, "", []float32{1, 0}, now),
	}))

	require.NoError(t, store.DeleteDocument(ctx, "doc-a"))

	matches, err := store.Search(ctx, []float32{1, 0}, tenant.GlobalScope(), 10)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "b0", matches[0].ChunkID)
}

func TestMemoryStoreDimensionMismatch(t *testing.T) {
	store := NewMemoryStore(2)
	ctx := context.Background()

	err := store.Upsert(ctx, []models.Chunk{
		chunk("bad", "doc", 0, "", []float32{1, 0, 0}, time.Now()),
	})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = store.Search(ctx, []float32{1}, tenant.GlobalScope(), 5)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestCosineSimilarityZeroVector(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity([]float32{0, 0}, []float32{1, 0}))
}
