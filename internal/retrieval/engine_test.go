package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindease/backend/internal/embedding"
	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/internal/storage/sqlite"
	"github.com/mindease/backend/internal/tenant"
	"github.com/mindease/backend/internal/vector"
)

type fixedBackend struct {
	vec []float32
}

func (f *fixedBackend) GenerateBatchEmbeddings(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

func newTestEngine(t *testing.T) (*Engine, *sqlite.Client, *vector.MemoryStore) {
	t.Helper()
	db, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	store := vector.NewMemoryStore(2)
	embedder := embedding.NewService(&fixedBackend{vec: []float32{1, 0}}, nil, "test-model", 2, time.Hour)
	return NewEngine(embedder, store, db), db, store
}

func seedDoc(t *testing.T, db *sqlite.Client, store *vector.MemoryStore, docID, title, orgID string, vec []float32, updated time.Time) {
	t.Helper()
	require.NoError(t, db.UpsertDocument(&models.Document{
		ID:        docID,
		Title:     title,
		Content:   "content of " + docID,
		Category:  "wellness",
		Source:    "handbook",
		OrgID:     orgID,
		CreatedAt: updated,
		UpdatedAt: updated,
	}))
	require.NoError(t, store.Upsert(context.Background(), []models.Chunk{{
		ID:           docID + "_0",
		DocumentID:   docID,
		ChunkIndex:   0,
		Text:         "content of " + docID,
		Vector:       vec,
		OrgID:        orgID,
		DocUpdatedAt: updated,
	}}))
}

func TestRetrieveResolvesDocuments(t *testing.T) {
	engine, db, store := newTestEngine(t)
	now := time.Now()

	seedDoc(t, db, store, "doc-1", "Coping with anxiety", "", []float32{1, 0}, now)
	seedDoc(t, db, store, "doc-2", "Sleep hygiene", "", []float32{0, 1}, now)

	results, err := engine.Retrieve(context.Background(), "anxious", tenant.GlobalScope(), 5)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, "doc-1", results[0].DocumentID)
	assert.Equal(t, "Coping with anxiety", results[0].Title)
	assert.Equal(t, "wellness", results[0].Category)
	assert.Equal(t, "handbook", results[0].Source)
	assert.Greater(t, results[0].Similarity, results[1].Similarity)
}

func TestRetrieveScopeValidation(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	var zero tenant.Scope
	_, err := engine.Retrieve(context.Background(), "q", zero, 5)
	assert.ErrorIs(t, err, ErrInvalidScope)

	_, err = engine.Retrieve(context.Background(), "q", tenant.OrgScope(""), 5)
	assert.ErrorIs(t, err, ErrInvalidScope)
}

func TestRetrieveInvalidK(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.Retrieve(context.Background(), "q", tenant.GlobalScope(), -1)
	assert.ErrorIs(t, err, ErrInvalidK)

	_, err = engine.Retrieve(context.Background(), "q", tenant.GlobalScope(), 0)
	assert.ErrorIs(t, err, ErrInvalidK)
}

func TestRetrieveCapsAtK(t *testing.T) {
	engine, db, store := newTestEngine(t)
	now := time.Now()

	for i := 0; i < 8; i++ {
		seedDoc(t, db, store, "doc-"+string(rune('a'+i)), "Title", "", []float32{1, 0}, now)
	}

	results, err := engine.Retrieve(context.Background(), "q", tenant.GlobalScope(), 5)
	require.NoError(t, err)
	assert.Len(t, results, 5)
}

func TestRetrieveSkipsDeletedDocuments(t *testing.T) {
	engine, db, store := newTestEngine(t)
	now := time.Now()

	seedDoc(t, db, store, "doc-1", "Kept", "", []float32{1, 0}, now)
	seedDoc(t, db, store, "doc-2", "Gone", "", []float32{1, 0}, now)

	// Simulate a deletion that raced the query: the document row is
	// gone but its vectors are still indexed.
	require.NoError(t, db.DeleteDocument("doc-2"))

	results, err := engine.Retrieve(context.Background(), "q", tenant.GlobalScope(), 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-1", results[0].DocumentID)
}

func TestRetrieveOrgScope(t *testing.T) {
	engine, db, store := newTestEngine(t)
	now := time.Now()

	seedDoc(t, db, store, "doc-global", "Global", "", []float32{1, 0}, now)
	seedDoc(t, db, store, "doc-org", "Org only", "org-1", []float32{1, 0}, now)

	global, err := engine.Retrieve(context.Background(), "q", tenant.GlobalScope(), 5)
	require.NoError(t, err)
	require.Len(t, global, 1)
	assert.Equal(t, "doc-global", global[0].DocumentID)

	org, err := engine.Retrieve(context.Background(), "q", tenant.OrgScope("org-1"), 5)
	require.NoError(t, err)
	assert.Len(t, org, 2)
}
