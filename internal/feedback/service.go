// Package feedback collects per-response ratings and turns them into
// daily analytics, curated training examples, and improvement items.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/internal/storage/sqlite"
	"github.com/mindease/backend/pkg/config"
	"github.com/mindease/backend/pkg/logger"
)

var (
	ErrMessageNotFound = errors.New("rated message not found")
	ErrNotAssistant    = errors.New("feedback targets an assistant message")
	ErrInvalidRating   = errors.New("ratings must be between 1 and 5")
)

// Sub-rating weights for the overall score. Safety dominates because a
// low safety rating must drag the overall down regardless of the rest.
const (
	weightRelevance   = 0.15
	weightHelpfulness = 0.20
	weightAccuracy    = 0.20
	weightClarity     = 0.10
	weightSafety      = 0.35
)

type Ratings struct {
	Relevance   int
	Helpfulness int
	Accuracy    int
	Clarity     int
	Safety      int
}

type Submission struct {
	MessageID      string
	UserID         string
	OrgID          string
	Ratings        Ratings
	FeedbackText   string
	EmotionalState string
}

type Service struct {
	db           *sqlite.Client
	classifier   *IntentClassifier
	cfg          config.FeedbackConfig
	modelVersion string
}

func NewService(db *sqlite.Client, classifier *IntentClassifier, cfg config.FeedbackConfig, modelVersion string) *Service {
	return &Service{
		db:           db,
		classifier:   classifier,
		cfg:          cfg,
		modelVersion: modelVersion,
	}
}

// Submit records feedback for an assistant message. Submitting twice
// for the same message updates the earlier record instead of creating
// a duplicate.
func (s *Service) Submit(_ context.Context, sub Submission) (*models.Feedback, error) {
	if err := validateRatings(sub.Ratings); err != nil {
		return nil, err
	}

	msg, err := s.db.GetMessage(sub.MessageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, ErrMessageNotFound
	}
	if msg.Role != models.RoleAssistant {
		return nil, ErrNotAssistant
	}

	queryText := ""
	if userMsg, err := s.db.PrecedingUserMessage(msg.ConversationID, msg.CreatedAt); err == nil && userMsg != nil {
		queryText = userMsg.Content
	}

	crisisLevel := ""
	if lvl, ok := msg.UserState["crisis_level"].(string); ok {
		crisisLevel = lvl
	}

	// The snapshot travels through JSON, so the latency comes back as a
	// float64; it is an int only before the message has been persisted.
	responseTimeMS := 0
	switch v := msg.UserState["response_time_ms"].(type) {
	case float64:
		responseTimeMS = int(v)
	case int:
		responseTimeMS = v
	}

	overall := OverallRating(sub.Ratings)
	now := time.Now()

	fb := &models.Feedback{
		ID:              uuid.NewString(),
		MessageID:       sub.MessageID,
		ConversationID:  msg.ConversationID,
		UserID:          sub.UserID,
		OrgID:           sub.OrgID,
		QueryText:       queryText,
		ResponseText:    msg.Content,
		Relevance:       sub.Ratings.Relevance,
		Helpfulness:     sub.Ratings.Helpfulness,
		Accuracy:        sub.Ratings.Accuracy,
		Clarity:         sub.Ratings.Clarity,
		Safety:          sub.Ratings.Safety,
		OverallRating:   overall,
		FeedbackText:    sub.FeedbackText,
		QueryIntent:     s.classifier.Classify(queryText),
		EmotionalState:  sub.EmotionalState,
		CrisisLevel:     crisisLevel,
		SafetyConcern:   sub.Ratings.Safety <= s.cfg.SafetyConcernThreshold || crisisLevel == "high",
		ResponseTimeMS:  responseTimeMS,
		DocsRetrieved:   len(msg.Sources),
		RetrievalMethod: "vector",
		ModelVersion:    s.modelVersion,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	existing, err := s.db.GetFeedbackByMessage(sub.MessageID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		fb.ID = existing.ID
		fb.CreatedAt = existing.CreatedAt
		if err := s.db.UpdateFeedback(fb); err != nil {
			return nil, fmt.Errorf("failed to update feedback: %w", err)
		}
	} else {
		if err := s.db.InsertFeedback(fb); err != nil {
			return nil, fmt.Errorf("failed to insert feedback: %w", err)
		}
	}

	if fb.SafetyConcern {
		logger.Warn("Safety concern flagged in feedback",
			zap.String("feedback_id", fb.ID),
			zap.String("message_id", fb.MessageID),
			zap.Int("safety_rating", fb.Safety),
			zap.String("crisis_level", fb.CrisisLevel),
		)
	}

	return fb, nil
}

func (s *Service) Get(_ context.Context, id string) (*models.Feedback, error) {
	return s.db.GetFeedback(id)
}

// OverallRating collapses the five sub-ratings into a weighted mean,
// rounded to two decimals.
func OverallRating(r Ratings) float64 {
	overall := float64(r.Relevance)*weightRelevance +
		float64(r.Helpfulness)*weightHelpfulness +
		float64(r.Accuracy)*weightAccuracy +
		float64(r.Clarity)*weightClarity +
		float64(r.Safety)*weightSafety
	return math.Round(overall*100) / 100
}

func validateRatings(r Ratings) error {
	for _, v := range []int{r.Relevance, r.Helpfulness, r.Accuracy, r.Clarity, r.Safety} {
		if v < 1 || v > 5 {
			return fmt.Errorf("%w: got %d", ErrInvalidRating, v)
		}
	}
	return nil
}
