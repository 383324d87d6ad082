// Package vector defines the similarity search store backing retrieval.
// Two implementations exist: an in-process brute-force store warmed from
// SQLite, and a Milvus-backed store for larger corpora.
package vector

import (
	"context"
	"errors"
	"time"

	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/internal/tenant"
)

var ErrDimensionMismatch = errors.New("vector dimension does not match store dimension")

// Match is one scored chunk returned by a search. Document metadata
// (title, category, source) is resolved by the retrieval layer.
type Match struct {
	ChunkID      string
	DocumentID   string
	ChunkIndex   int
	Text         string
	OrgID        string
	DocUpdatedAt time.Time
	Similarity   float64
}

// Store indexes chunk embeddings and answers scoped nearest-neighbor
// queries. Scope filtering happens before ranking, so topK always
// refers to the visible corpus.
type Store interface {
	Upsert(ctx context.Context, chunks []models.Chunk) error
	DeleteDocument(ctx context.Context, documentID string) error
	Search(ctx context.Context, queryVector []float32, scope tenant.Scope, topK int) ([]Match, error)
	Close() error
}
