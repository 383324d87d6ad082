package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindease/backend/internal/ingestion"
	"github.com/mindease/backend/internal/metrics"
	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/pkg/logger"
)

type DocumentHandler struct {
	indexer *ingestion.Indexer
}

func NewDocumentHandler(indexer *ingestion.Indexer) *DocumentHandler {
	return &DocumentHandler{
		indexer: indexer,
	}
}

func (h *DocumentHandler) IndexDocument(c *fiber.Ctx) error {
	var req struct {
		ID       string            `json:"id"`
		Title    string            `json:"title"`
		Content  string            `json:"content"`
		Category string            `json:"category"`
		Source   string            `json:"source"`
		Language string            `json:"language"`
		OrgID    string            `json:"organization_id"`
		Metadata map[string]string `json:"metadata"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.Content == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Content is required",
		})
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.Title == "" {
		req.Title = ingestion.ExtractTitle(req.Content)
	}

	doc := &models.Document{
		ID:       req.ID,
		Title:    req.Title,
		Content:  req.Content,
		Category: req.Category,
		Source:   req.Source,
		Language: req.Language,
		OrgID:    req.OrgID,
		Metadata: req.Metadata,
	}

	chunkCount, err := h.indexer.Index(c.Context(), doc)
	if err != nil {
		logger.Error("Failed to index document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to index document",
		})
	}

	metrics.DocumentsIndexed.Inc()
	metrics.ChunksIndexed.Add(float64(chunkCount))

	return c.JSON(fiber.Map{
		"document_id":     doc.ID,
		"chunk_count":     chunkCount,
		"organization_id": doc.OrgID,
	})
}

func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	documentID := c.Params("id")

	if err := h.indexer.Delete(c.Context(), documentID); err != nil {
		logger.Error("Failed to delete document", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete document",
		})
	}

	return c.JSON(fiber.Map{
		"document_id": documentID,
		"deleted":     true,
	})
}
