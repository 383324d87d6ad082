package vector

import (
	"context"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/internal/tenant"
	"github.com/mindease/backend/pkg/logger"
)

// MemoryStore is a brute-force cosine store held entirely in process.
// It is the default backend for embedded deployments and is warmed
// from the SQLite chunk table at startup.
type MemoryStore struct {
	mu     sync.RWMutex
	dim    int
	chunks map[string]models.Chunk // chunk ID -> chunk
	byDoc  map[string][]string     // document ID -> chunk IDs
}

func NewMemoryStore(dim int) *MemoryStore {
	return &MemoryStore{
		dim:    dim,
		chunks: make(map[string]models.Chunk),
		byDoc:  make(map[string][]string),
	}
}

// Warm loads previously persisted chunks, typically from SQLite.
func (m *MemoryStore) Warm(chunks []models.Chunk) error {
	if err := m.Upsert(context.Background(), chunks); err != nil {
		return err
	}
	logger.Info("In-memory vector store warmed", zap.Int("chunks", len(chunks)))
	return nil
}

func (m *MemoryStore) Upsert(_ context.Context, chunks []models.Chunk) error {
	for _, ch := range chunks {
		if len(ch.Vector) != m.dim {
			return ErrDimensionMismatch
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range chunks {
		if _, exists := m.chunks[ch.ID]; !exists {
			m.byDoc[ch.DocumentID] = append(m.byDoc[ch.DocumentID], ch.ID)
		}
		m.chunks[ch.ID] = ch
	}
	return nil
}

func (m *MemoryStore) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.byDoc[documentID] {
		delete(m.chunks, id)
	}
	delete(m.byDoc, documentID)
	return nil
}

func (m *MemoryStore) Search(_ context.Context, queryVector []float32, scope tenant.Scope, topK int) ([]Match, error) {
	if len(queryVector) != m.dim {
		return nil, ErrDimensionMismatch
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := make([]Match, 0, topK)
	for _, ch := range m.chunks {
		if !scope.Allows(ch.OrgID) {
			continue
		}
		matches = append(matches, Match{
			ChunkID:      ch.ID,
			DocumentID:   ch.DocumentID,
			ChunkIndex:   ch.ChunkIndex,
			Text:         ch.Text,
			OrgID:        ch.OrgID,
			DocUpdatedAt: ch.DocUpdatedAt,
			Similarity:   cosineSimilarity(queryVector, ch.Vector),
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		if !matches[i].DocUpdatedAt.Equal(matches[j].DocUpdatedAt) {
			return matches[i].DocUpdatedAt.After(matches[j].DocUpdatedAt)
		}
		if matches[i].DocumentID != matches[j].DocumentID {
			return matches[i].DocumentID < matches[j].DocumentID
		}
		return matches[i].ChunkIndex < matches[j].ChunkIndex
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

// cosineSimilarity returns 0 for zero-magnitude vectors instead of NaN
// so empty embeddings never outrank real ones.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
