package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mindease/backend/internal/chat"
	"github.com/mindease/backend/internal/crisis"
	"github.com/mindease/backend/internal/metrics"
	"github.com/mindease/backend/internal/orchestrator"
	"github.com/mindease/backend/pkg/logger"
)

type ChatHandler struct {
	orch  *orchestrator.Orchestrator
	chats *chat.Manager
}

func NewChatHandler(orch *orchestrator.Orchestrator, chats *chat.Manager) *ChatHandler {
	return &ChatHandler{
		orch:  orch,
		chats: chats,
	}
}

func (h *ChatHandler) HandleChat(c *fiber.Ctx) error {
	var req struct {
		ConversationID string `json:"conversation_id"`
		UserID         string `json:"user_id"`
		OrgID          string `json:"organization_id"`
		Content        string `json:"content"`
		Language       string `json:"language"`
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
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	response, err := h.orch.Handle(c.Context(), orchestrator.Request{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		OrgID:          req.OrgID,
		Message:        req.Content,
		Language:       req.Language,
	})
	if err != nil {
		logger.Error("Failed to process chat turn", zap.Error(err))
		metrics.TurnTotal.WithLabelValues("unknown", "error").Inc()
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to process message",
		})
	}

	metrics.TurnTotal.WithLabelValues(string(response.Mode), "ok").Inc()
	metrics.TurnDuration.WithLabelValues(string(response.Mode)).Observe(float64(response.ResponseTimeMS) / 1000)
	metrics.CrisisDetections.WithLabelValues(string(response.CrisisLevel)).Inc()
	metrics.RetrievalResultsCount.Observe(float64(response.DocsRetrieved))

	return c.JSON(fiber.Map{
		"conversation_id":  response.ConversationID,
		"message_id":       response.MessageID,
		"response":         response.Content,
		"mode":             response.Mode,
		"crisis_detected":  response.CrisisLevel == crisis.LevelHigh,
		"crisis_level":     response.CrisisLevel,
		"sources":          response.Sources,
		"response_time_ms": response.ResponseTimeMS,
	})
}

func (h *ChatHandler) GetHistory(c *fiber.Ctx) error {
	conversationID := c.Params("id")
	limit := c.QueryInt("limit", 0)

	messages, err := h.chats.History(c.Context(), conversationID, limit)
	if err != nil {
		if errors.Is(err, chat.ErrConversationNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Conversation not found",
			})
		}
		logger.Error("Failed to load history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load history",
		})
	}

	out := make([]fiber.Map, 0, len(messages))
	for _, m := range messages {
		out = append(out, fiber.Map{
			"id":         m.ID,
			"role":       m.Role,
			"content":    m.Content,
			"sources":    m.Sources,
			"language":   m.Language,
			"created_at": m.CreatedAt,
		})
	}

	return c.JSON(fiber.Map{
		"conversation_id": conversationID,
		"messages":        out,
	})
}

func (h *ChatHandler) ListConversations(c *fiber.Ctx) error {
	userID := c.Query("user_id")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "user_id is required",
		})
	}

	convs, err := h.chats.ListByUser(c.Context(), userID, c.QueryInt("limit", 20))
	if err != nil {
		logger.Error("Failed to list conversations", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list conversations",
		})
	}

	return c.JSON(fiber.Map{
		"conversations": convs,
	})
}
