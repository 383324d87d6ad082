// Package embedding turns text into fixed-dimension vectors, with a
// cache in front of the model so repeated texts never hit the backend
// twice.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mindease/backend/pkg/logger"
	"github.com/mindease/backend/pkg/utils"
)

var (
	ErrEmptyInput        = errors.New("embedding input is empty")
	ErrUnavailable       = errors.New("embedding backend unavailable")
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Backend is the model call. The LLM client satisfies this.
type Backend interface {
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Cache stores vectors keyed by (model, text hash). The Redis client
// satisfies this; a nil cache disables caching entirely.
type Cache interface {
	GetEmbedding(ctx context.Context, modelID, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, modelID, textHash string, embedding []float32, ttl time.Duration) error
}

type Service struct {
	backend Backend
	cache   Cache
	modelID string
	dim     int
	ttl     time.Duration
}

func NewService(backend Backend, cache Cache, modelID string, dim int, ttl time.Duration) *Service {
	return &Service{
		backend: backend,
		cache:   cache,
		modelID: modelID,
		dim:     dim,
		ttl:     ttl,
	}
}

func (s *Service) ModelID() string {
	return s.modelID
}

func (s *Service) Dimension() int {
	return s.dim
}

// Embed returns the vector for a single text.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch returns one vector per input, in input order. Texts that
// normalize to the same string share a single backend call; cached
// texts are never re-sent.
func (s *Service) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, ErrEmptyInput
	}

	normalized := make([]string, len(texts))
	for i, t := range texts {
		n := Normalize(t)
		if n == "" {
			return nil, fmt.Errorf("%w: input %d", ErrEmptyInput, i)
		}
		normalized[i] = n
	}

	results := make([][]float32, len(texts))

	// First pass: serve from cache, collect unique misses.
	missTexts := make([]string, 0)
	missIndex := make(map[string][]int) // normalized text -> input positions
	for i, n := range normalized {
		if cached := s.cacheGet(ctx, n); cached != nil {
			results[i] = cached
			continue
		}
		if _, seen := missIndex[n]; !seen {
			missTexts = append(missTexts, n)
		}
		missIndex[n] = append(missIndex[n], i)
	}

	if len(missTexts) > 0 {
		vectors, err := s.backend.GenerateBatchEmbeddings(ctx, missTexts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if len(vectors) != len(missTexts) {
			return nil, fmt.Errorf("%w: expected %d vectors, got %d", ErrUnavailable, len(missTexts), len(vectors))
		}

		for j, n := range missTexts {
			vec := vectors[j]
			if len(vec) != s.dim {
				return nil, fmt.Errorf("%w: model returned %d dims, want %d", ErrDimensionMismatch, len(vec), s.dim)
			}
			s.cacheSet(ctx, n, vec)
			for _, pos := range missIndex[n] {
				results[pos] = vec
			}
		}
	}

	logger.Debug("Embeddings resolved",
		zap.Int("total", len(texts)),
		zap.Int("cache_misses", len(missTexts)),
	)

	return results, nil
}

func (s *Service) cacheGet(ctx context.Context, normalized string) []float32 {
	if s.cache == nil {
		return nil
	}
	vec, ok, err := s.cache.GetEmbedding(ctx, s.modelID, utils.HashString(normalized))
	if err != nil {
		// Cache failures degrade to a backend call, never to an error.
		logger.Warn("Embedding cache read failed", zap.Error(err))
		return nil
	}
	if !ok || len(vec) != s.dim {
		return nil
	}
	return vec
}

func (s *Service) cacheSet(ctx context.Context, normalized string, vec []float32) {
	if s.cache == nil {
		return
	}
	if err := s.cache.SetEmbedding(ctx, s.modelID, utils.HashString(normalized), vec, s.ttl); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
}

// Normalize collapses internal whitespace and lowercases the text so
// trivially different renderings of the same content share one cache
// entry and one vector.
func Normalize(text string) string {
	return strings.ToLower(strings.Join(strings.Fields(text), " "))
}
