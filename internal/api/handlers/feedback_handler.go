package handlers

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/mindease/backend/internal/feedback"
	"github.com/mindease/backend/internal/metrics"
	"github.com/mindease/backend/pkg/logger"
)

type FeedbackHandler struct {
	service *feedback.Service
}

func NewFeedbackHandler(service *feedback.Service) *FeedbackHandler {
	return &FeedbackHandler{
		service: service,
	}
}

func (h *FeedbackHandler) SubmitFeedback(c *fiber.Ctx) error {
	var req struct {
		MessageID      string `json:"message_id"`
		UserID         string `json:"user_id"`
		OrgID          string `json:"organization_id"`
		Relevance      int    `json:"relevance"`
		Helpfulness    int    `json:"helpfulness"`
		Accuracy       int    `json:"accuracy"`
		Clarity        int    `json:"clarity"`
		Safety         int    `json:"safety"`
		FeedbackText   string `json:"feedback_text"`
		EmotionalState string `json:"emotional_state"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if req.MessageID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Message ID is required",
		})
	}

	fb, err := h.service.Submit(c.Context(), feedback.Submission{
		MessageID: req.MessageID,
		UserID:    req.UserID,
		OrgID:     req.OrgID,
		Ratings: feedback.Ratings{
			Relevance:   req.Relevance,
			Helpfulness: req.Helpfulness,
			Accuracy:    req.Accuracy,
			Clarity:     req.Clarity,
			Safety:      req.Safety,
		},
		FeedbackText:   req.FeedbackText,
		EmotionalState: req.EmotionalState,
	})
	if err != nil {
		switch {
		case errors.Is(err, feedback.ErrInvalidRating):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Ratings must be between 1 and 5",
			})
		case errors.Is(err, feedback.ErrMessageNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Message not found",
			})
		case errors.Is(err, feedback.ErrNotAssistant):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Feedback must target an assistant message",
			})
		default:
			logger.Error("Failed to submit feedback", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Failed to submit feedback",
			})
		}
	}

	metrics.FeedbackSubmitted.WithLabelValues(fmt.Sprintf("%t", fb.SafetyConcern)).Inc()
	metrics.FeedbackOverallRating.Observe(fb.OverallRating)

	return c.JSON(fiber.Map{
		"feedback_id":    fb.ID,
		"overall_rating": fb.OverallRating,
		"query_intent":   fb.QueryIntent,
		"safety_concern": fb.SafetyConcern,
	})
}

func (h *FeedbackHandler) GetAnalytics(c *fiber.Ctx) error {
	orgID := c.Query("organization_id")
	date := c.Query("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	analytics, err := h.service.GetAnalytics(c.Context(), orgID, date)
	if err != nil {
		logger.Error("Failed to load analytics", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load analytics",
		})
	}
	if analytics == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No analytics for that date",
		})
	}

	return c.JSON(analytics)
}

// RecomputeAnalytics triggers a synchronous rebuild for one org/day,
// normally done by the background job.
func (h *FeedbackHandler) RecomputeAnalytics(c *fiber.Ctx) error {
	var req struct {
		OrgID string `json:"organization_id"`
		Date  string `json:"date"`
	}

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	day := time.Now()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Date must be YYYY-MM-DD",
			})
		}
		day = parsed
	}

	analytics, err := h.service.RecomputeAnalytics(c.Context(), req.OrgID, day)
	if err != nil {
		logger.Error("Failed to recompute analytics", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to recompute analytics",
		})
	}

	return c.JSON(analytics)
}

func (h *FeedbackHandler) ListImprovements(c *fiber.Ctx) error {
	items, err := h.service.ListImprovements(c.Context(), c.Query("status"), c.QueryInt("limit", 50))
	if err != nil {
		logger.Error("Failed to list improvements", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list improvement items",
		})
	}

	return c.JSON(fiber.Map{
		"improvements": items,
	})
}
