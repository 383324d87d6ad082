// Package retrieval answers scoped similarity queries over the indexed
// corpus and resolves matches back to their source documents.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/mindease/backend/internal/embedding"
	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/internal/storage/sqlite"
	"github.com/mindease/backend/internal/tenant"
	"github.com/mindease/backend/internal/vector"
	"github.com/mindease/backend/pkg/logger"
)

var (
	ErrInvalidScope = errors.New("invalid retrieval scope")
	ErrInvalidK     = errors.New("topK must be positive")
)

// Result is one retrieved chunk with its source document resolved.
type Result struct {
	ChunkID      string
	DocumentID   string
	ChunkIndex   int
	Text         string
	Title        string
	Category     string
	Source       string
	Similarity   float64
	DocUpdatedAt time.Time
}

func (r Result) SourceRef() models.SourceRef {
	return models.SourceRef{
		DocumentID: r.DocumentID,
		Title:      r.Title,
		Category:   r.Category,
		Source:     r.Source,
		Similarity: r.Similarity,
	}
}

type Engine struct {
	embedder *embedding.Service
	store    vector.Store
	db       *sqlite.Client
}

func NewEngine(embedder *embedding.Service, store vector.Store, db *sqlite.Client) *Engine {
	return &Engine{
		embedder: embedder,
		store:    store,
		db:       db,
	}
}

// Retrieve embeds the query and returns up to topK chunks visible
// under scope, best first. topK must be positive.
// Equal similarities break ties deterministically: newer document
// first, then (document ID, chunk index) ascending, so repeated
// queries over an unchanged corpus return identical orderings.
func (e *Engine) Retrieve(ctx context.Context, query string, scope tenant.Scope, topK int) ([]Result, error) {
	if err := scope.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScope, err)
	}
	if topK <= 0 {
		return nil, ErrInvalidK
	}

	queryVector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := e.store.Search(ctx, queryVector, scope, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
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

	results := make([]Result, 0, len(matches))
	docs := make(map[string]*models.Document)
	for _, m := range matches {
		doc, ok := docs[m.DocumentID]
		if !ok {
			doc, err = e.db.GetDocument(m.DocumentID)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve document %s: %w", m.DocumentID, err)
			}
			docs[m.DocumentID] = doc
		}
		// A match whose document row is gone points at a deletion that
		// raced this query; skip it rather than return a dangling ref.
		if doc == nil {
			continue
		}

		results = append(results, Result{
			ChunkID:      m.ChunkID,
			DocumentID:   m.DocumentID,
			ChunkIndex:   m.ChunkIndex,
			Text:         m.Text,
			Title:        doc.Title,
			Category:     doc.Category,
			Source:       doc.Source,
			Similarity:   m.Similarity,
			DocUpdatedAt: m.DocUpdatedAt,
		})
	}

	logger.Debug("Retrieval completed",
		zap.String("scope", scope.String()),
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
	)

	return results, nil
}
