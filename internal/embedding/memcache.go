package embedding

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/mindease/backend/internal/metrics"
)

// MemoryCache is a bounded in-process LRU used when Redis is disabled.
type MemoryCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*list.Element
	order    *list.List
}

type memEntry struct {
	key string
	vec []float32
}

func NewMemoryCache(capacity int) *MemoryCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &MemoryCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (m *MemoryCache) GetEmbedding(_ context.Context, modelID, textHash string) ([]float32, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[modelID+":"+textHash]
	if !ok {
		metrics.EmbeddingCacheMisses.WithLabelValues("memory").Inc()
		return nil, false, nil
	}
	m.order.MoveToFront(elem)
	metrics.EmbeddingCacheHits.WithLabelValues("memory").Inc()
	return elem.Value.(*memEntry).vec, true, nil
}

func (m *MemoryCache) SetEmbedding(_ context.Context, modelID, textHash string, embedding []float32, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := modelID + ":" + textHash
	if elem, ok := m.entries[key]; ok {
		elem.Value.(*memEntry).vec = embedding
		m.order.MoveToFront(elem)
		return nil
	}

	m.entries[key] = m.order.PushFront(&memEntry{key: key, vec: embedding})
	if m.order.Len() > m.capacity {
		oldest := m.order.Back()
		m.order.Remove(oldest)
		delete(m.entries, oldest.Value.(*memEntry).key)
	}
	return nil
}
