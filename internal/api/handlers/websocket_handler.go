package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/mindease/backend/internal/crisis"
	"github.com/mindease/backend/internal/orchestrator"
	"github.com/mindease/backend/pkg/logger"
)

type WebSocketHandler struct {
	orch *orchestrator.Orchestrator
}

func NewWebSocketHandler(orch *orchestrator.Orchestrator) *WebSocketHandler {
	return &WebSocketHandler{
		orch: orch,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type           string `json:"type"`
			ConversationID string `json:"conversation_id"`
			UserID         string `json:"user_id"`
			OrgID          string `json:"organization_id"`
			Content        string `json:"content"`
			Language       string `json:"language"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "message" {
			continue
		}
		if msg.Content == "" || msg.UserID == "" {
			h.sendError(c, "content and user_id are required")
			continue
		}

		err = h.streamResponse(c, orchestrator.Request{
			ConversationID: msg.ConversationID,
			UserID:         msg.UserID,
			OrgID:          msg.OrgID,
			Message:        msg.Content,
			Language:       msg.Language,
		})
		if err != nil {
			logger.Error("Failed to stream response", zap.Error(err))
			h.sendError(c, "Failed to process message")
		}
	}
}

// streamResponse runs the turn, then delivers the reply word by word
// before the completion frame with metadata.
func (h *WebSocketHandler) streamResponse(c *websocket.Conn, req orchestrator.Request) error {
	ctx := context.Background()

	h.sendChunk(c, "status", "Thinking...")

	response, err := h.orch.Handle(ctx, req)
	if err != nil {
		return err
	}

	words := splitIntoWords(response.Content)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}

		err := h.sendChunk(c, "chunk", chunk)
		if err != nil {
			return err
		}
	}

	return h.sendComplete(c, response)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, response *orchestrator.Response) error {
	msg := map[string]interface{}{
		"type":             "complete",
		"conversation_id":  response.ConversationID,
		"message_id":       response.MessageID,
		"mode":             response.Mode,
		"crisis_detected":  response.CrisisLevel == crisis.LevelHigh,
		"crisis_level":     response.CrisisLevel,
		"sources":          response.Sources,
		"response_time_ms": response.ResponseTimeMS,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
