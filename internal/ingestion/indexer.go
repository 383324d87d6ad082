// Package ingestion turns raw documents into embedded chunks and keeps
// the SQLite record and the vector store in step with each other.
package ingestion

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/mindease/backend/internal/embedding"
	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/internal/storage/sqlite"
	"github.com/mindease/backend/internal/vector"
	"github.com/mindease/backend/pkg/logger"
	"github.com/mindease/backend/pkg/utils"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

type Indexer struct {
	db       *sqlite.Client
	store    vector.Store
	embedder *embedding.Service
	chunker  *Chunker

	// Per-document locks serialize concurrent Index/Delete calls on the
	// same document while leaving different documents fully parallel.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewIndexer(db *sqlite.Client, store vector.Store, embedder *embedding.Service, chunker *Chunker) *Indexer {
	return &Indexer{
		db:       db,
		store:    store,
		embedder: embedder,
		chunker:  chunker,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Index persists the document and replaces all of its chunks, both in
// SQLite and in the vector store. Re-indexing the same content is
// idempotent: chunk IDs derive from the document ID, chunk index, and
// content hash.
func (ix *Indexer) Index(ctx context.Context, doc *models.Document) (int, error) {
	if doc.ID == "" {
		return 0, fmt.Errorf("document id is required")
	}

	unlock := ix.lockDocument(doc.ID)
	defer unlock()

	content := doc.Content
	if looksLikeHTML(content) {
		content = stripHTML(content)
	}
	content = strings.TrimSpace(whitespaceRe.ReplaceAllString(content, " "))
	if content == "" {
		return 0, fmt.Errorf("document %s has no indexable content", doc.ID)
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	if err := ix.db.UpsertDocument(doc); err != nil {
		return 0, fmt.Errorf("failed to persist document: %w", err)
	}

	texts := ix.chunker.Chunk(content)
	vectors, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("failed to embed chunks: %w", err)
	}

	contentHash := utils.HashString(content)
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{
			ID:           fmt.Sprintf("%s_%d_%s", doc.ID, i, contentHash[:8]),
			DocumentID:   doc.ID,
			ChunkIndex:   i,
			Text:         text,
			Vector:       vectors[i],
			ModelID:      ix.embedder.ModelID(),
			OrgID:        doc.OrgID,
			DocUpdatedAt: doc.UpdatedAt,
			CreatedAt:    now,
		}
	}

	if err := ix.db.ReplaceChunks(doc.ID, chunks); err != nil {
		return 0, fmt.Errorf("failed to persist chunks: %w", err)
	}

	// Vector store refresh mirrors the SQLite replace: old chunks go
	// first so a renamed chunk ID never lingers.
	if err := ix.store.DeleteDocument(ctx, doc.ID); err != nil {
		return 0, fmt.Errorf("failed to clear old vectors: %w", err)
	}
	if err := ix.store.Upsert(ctx, chunks); err != nil {
		return 0, fmt.Errorf("failed to index vectors: %w", err)
	}

	logger.Info("Document indexed",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", len(chunks)),
		zap.String("org_id", doc.OrgID),
	)

	return len(chunks), nil
}

// Delete removes the document and all derived chunks from both stores.
// Deleting an unknown document is a no-op.
func (ix *Indexer) Delete(ctx context.Context, documentID string) error {
	unlock := ix.lockDocument(documentID)
	defer unlock()

	if err := ix.store.DeleteDocument(ctx, documentID); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	if err := ix.db.DeleteDocument(documentID); err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	logger.Info("Document deleted", zap.String("document_id", documentID))
	return nil
}

func (ix *Indexer) lockDocument(id string) func() {
	ix.mu.Lock()
	lock, ok := ix.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		ix.locks[id] = lock
	}
	ix.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

func looksLikeHTML(content string) bool {
	lower := strings.ToLower(content)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<body") ||
		strings.Contains(lower, "<p>") || strings.Contains(lower, "<div")
}

func stripHTML(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return html
	}

	doc.Find("script, style, nav, footer, header, aside").Each(func(i int, s *goquery.Selection) {
		s.Remove()
	})

	text := doc.Find("body").Text()
	if text == "" {
		text = doc.Text()
	}

	return text
}

// ExtractTitle pulls a display title from HTML content when the caller
// did not supply one.
func ExtractTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "Untitled"
	}

	title := doc.Find("title").First().Text()
	if title == "" {
		title = doc.Find("h1").First().Text()
	}
	if title == "" {
		return "Untitled"
	}

	return strings.TrimSpace(title)
}
