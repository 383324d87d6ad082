package sqlite

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindease/backend/internal/storage/models"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	db, err := NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())
	return db
}

func testDoc(id, orgID string) *models.Document {
	now := time.Now()
	return &models.Document{
		ID:        id,
		Title:     "Title " + id,
		Content:   "content",
		Category:  "wellness",
		Source:    "handbook",
		Language:  "en",
		OrgID:     orgID,
		Metadata:  map[string]string{"author": "staff"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testChunksFor(docID string, n int) []models.Chunk {
	now := time.Now()
	chunks := make([]models.Chunk, n)
	for i := range chunks {
		chunks[i] = models.Chunk{
			ID:           docID + "_" + string(rune('a'+i)),
			DocumentID:   docID,
			ChunkIndex:   i,
			Text:         "chunk text",
			Vector:       []float32{1, 0},
			ModelID:      "test-model",
			DocUpdatedAt: now,
			CreatedAt:    now,
		}
	}
	return chunks
}

func TestUpsertAndGetDocument(t *testing.T) {
	db := newTestClient(t)

	doc := testDoc("doc-1", "org-1")
	require.NoError(t, db.UpsertDocument(doc))

	got, err := db.GetDocument("doc-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, doc.Title, got.Title)
	assert.Equal(t, "org-1", got.OrgID)
	assert.Equal(t, map[string]string{"author": "staff"}, got.Metadata)

	// Upsert with the same ID updates in place.
	doc.Title = "Updated"
	require.NoError(t, db.UpsertDocument(doc))
	got, err = db.GetDocument("doc-1")
	require.NoError(t, err)
	assert.Equal(t, "Updated", got.Title)
}

func TestGetDocumentMissing(t *testing.T) {
	db := newTestClient(t)

	got, err := db.GetDocument("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReplaceChunks(t *testing.T) {
	db := newTestClient(t)
	require.NoError(t, db.UpsertDocument(testDoc("doc-1", "")))

	require.NoError(t, db.ReplaceChunks("doc-1", testChunksFor("doc-1", 4)))
	chunks, err := db.GetChunksByDocument("doc-1")
	require.NoError(t, err)
	assert.Len(t, chunks, 4)

	// Replacing with fewer chunks removes the surplus.
	require.NoError(t, db.ReplaceChunks("doc-1", testChunksFor("doc-1", 2)))
	chunks, err = db.GetChunksByDocument("doc-1")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, []float32{1, 0}, chunks[0].Vector)
}

func TestDeleteDocumentCascadesChunks(t *testing.T) {
	db := newTestClient(t)
	require.NoError(t, db.UpsertDocument(testDoc("doc-1", "")))
	require.NoError(t, db.ReplaceChunks("doc-1", testChunksFor("doc-1", 3)))

	require.NoError(t, db.DeleteDocument("doc-1"))

	chunks, err := db.GetChunksByDocument("doc-1")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestAllChunks(t *testing.T) {
	db := newTestClient(t)
	require.NoError(t, db.UpsertDocument(testDoc("doc-1", "")))
	require.NoError(t, db.UpsertDocument(testDoc("doc-2", "org-1")))
	require.NoError(t, db.ReplaceChunks("doc-1", testChunksFor("doc-1", 2)))
	require.NoError(t, db.ReplaceChunks("doc-2", testChunksFor("doc-2", 3)))

	all, err := db.AllChunks()
	require.NoError(t, err)
	assert.Len(t, all, 5)
}
