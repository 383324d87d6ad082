package feedback

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/internal/storage/sqlite"
	"github.com/mindease/backend/pkg/config"
)

func testFeedbackConfig() config.FeedbackConfig {
	return config.FeedbackConfig{
		SafetyConcernThreshold: 2,
		TrainingOverallGate:    4.0,
		TrainingSafetyGate:     4,
		ClusterSize:            5,
		ClusterWindowDays:      7,
		JobIntervalMinutes:     60,
	}
}

func newTestService(t *testing.T) (*Service, *sqlite.Client) {
	t.Helper()
	db, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	svc := NewService(db, NewIntentClassifier(), testFeedbackConfig(), "model-v1")
	return svc, db
}

// seedTurn inserts a conversation with one user and one assistant
// message and returns the assistant message ID.
func seedTurn(t *testing.T, db *sqlite.Client, query, response string) string {
	t.Helper()
	convID := uuid.NewString()
	now := time.Now()

	require.NoError(t, db.InsertConversation(&models.Conversation{
		ID: convID, UserID: "u1", Title: "t", CreatedAt: now, UpdatedAt: now,
	}))

	require.NoError(t, db.InsertMessage(&models.Message{
		ID: uuid.NewString(), ConversationID: convID, UserID: "u1",
		Role: models.RoleUser, Content: query, CreatedAt: now,
	}))

	assistantID := uuid.NewString()
	require.NoError(t, db.InsertMessage(&models.Message{
		ID: assistantID, ConversationID: convID, UserID: "u1",
		Role: models.RoleAssistant, Content: response,
		UserState: map[string]any{"mode": "generated", "crisis_level": "none", "response_time_ms": 240},
		CreatedAt: now.Add(time.Second),
	}))

	return assistantID
}

func TestOverallRatingWeights(t *testing.T) {
	// All fives collapse to 5.00.
	assert.Equal(t, 5.0, OverallRating(Ratings{5, 5, 5, 5, 5}))
	assert.Equal(t, 1.0, OverallRating(Ratings{1, 1, 1, 1, 1}))

	// Safety carries the heaviest weight: dropping only safety hurts
	// more than dropping only clarity.
	safetyLow := OverallRating(Ratings{5, 5, 5, 5, 1})
	clarityLow := OverallRating(Ratings{5, 5, 5, 1, 5})
	assert.Less(t, safetyLow, clarityLow)

	// Spot-check the exact weighted means.
	assert.Equal(t, 2.7, OverallRating(Ratings{Relevance: 5, Helpfulness: 4, Accuracy: 3, Clarity: 2, Safety: 1}))
	assert.Equal(t, 3.65, OverallRating(Ratings{Relevance: 4, Helpfulness: 4, Accuracy: 4, Clarity: 4, Safety: 3}))
}

func TestSubmitStoresFeedback(t *testing.T) {
	svc, db := newTestService(t)
	msgID := seedTurn(t, db, "I am so anxious about exams", "Try box breathing")

	fb, err := svc.Submit(context.Background(), Submission{
		MessageID: msgID,
		UserID:    "u1",
		OrgID:     "org-1",
		Ratings:   Ratings{Relevance: 5, Helpfulness: 4, Accuracy: 4, Clarity: 5, Safety: 5},
	})
	require.NoError(t, err)

	assert.Equal(t, "I am so anxious about exams", fb.QueryText)
	assert.Equal(t, "Try box breathing", fb.ResponseText)
	assert.Equal(t, "anxiety_management", fb.QueryIntent)
	assert.Equal(t, "none", fb.CrisisLevel)
	assert.False(t, fb.SafetyConcern)
	assert.Equal(t, "model-v1", fb.ModelVersion)
}

func TestSubmitCopiesTurnLatency(t *testing.T) {
	svc, db := newTestService(t)
	msgID := seedTurn(t, db, "query", "response")

	fb, err := svc.Submit(context.Background(), Submission{
		MessageID: msgID, UserID: "u1", OrgID: "org-1",
		Ratings: Ratings{4, 4, 4, 4, 4},
	})
	require.NoError(t, err)

	// The latency recorded on the turn travels onto its feedback row.
	assert.Equal(t, 240, fb.ResponseTimeMS)

	stored, err := db.GetFeedbackByMessage(msgID)
	require.NoError(t, err)
	assert.Equal(t, 240, stored.ResponseTimeMS)
}

func TestSubmitIdempotentPerMessage(t *testing.T) {
	svc, db := newTestService(t)
	msgID := seedTurn(t, db, "query", "response")
	ctx := context.Background()

	first, err := svc.Submit(ctx, Submission{
		MessageID: msgID, UserID: "u1", OrgID: "org-1",
		Ratings: Ratings{3, 3, 3, 3, 3},
	})
	require.NoError(t, err)

	second, err := svc.Submit(ctx, Submission{
		MessageID: msgID, UserID: "u1", OrgID: "org-1",
		Ratings: Ratings{5, 5, 5, 5, 5},
	})
	require.NoError(t, err)

	// Second submission updated in place.
	assert.Equal(t, first.ID, second.ID)
	stored, err := db.GetFeedbackByMessage(msgID)
	require.NoError(t, err)
	assert.Equal(t, 5.0, stored.OverallRating)
}

func TestSubmitSafetyConcern(t *testing.T) {
	svc, db := newTestService(t)
	msgID := seedTurn(t, db, "query", "response")

	fb, err := svc.Submit(context.Background(), Submission{
		MessageID: msgID, UserID: "u1", OrgID: "org-1",
		Ratings: Ratings{Relevance: 5, Helpfulness: 5, Accuracy: 5, Clarity: 5, Safety: 2},
	})
	require.NoError(t, err)
	assert.True(t, fb.SafetyConcern)
}

func TestSubmitValidation(t *testing.T) {
	svc, db := newTestService(t)
	msgID := seedTurn(t, db, "query", "response")
	ctx := context.Background()

	_, err := svc.Submit(ctx, Submission{
		MessageID: msgID, Ratings: Ratings{0, 3, 3, 3, 3},
	})
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = svc.Submit(ctx, Submission{
		MessageID: msgID, Ratings: Ratings{3, 3, 3, 3, 6},
	})
	assert.ErrorIs(t, err, ErrInvalidRating)

	_, err = svc.Submit(ctx, Submission{
		MessageID: "missing", Ratings: Ratings{3, 3, 3, 3, 3},
	})
	assert.ErrorIs(t, err, ErrMessageNotFound)
}

func TestIntentClassifier(t *testing.T) {
	ic := NewIntentClassifier()

	assert.Equal(t, "anxiety_management", ic.Classify("I feel anxious and my panic is back"))
	assert.Equal(t, "sleep_help", ic.Classify("I cannot sleep, insomnia every night"))
	assert.Equal(t, IntentGeneral, ic.Classify("hello there"))
	assert.Equal(t, IntentGeneral, ic.Classify(""))
}

func TestIntentClassifierDeterministic(t *testing.T) {
	ic := NewIntentClassifier()
	query := "anxious and depressed at the same time"

	first := ic.Classify(query)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ic.Classify(query), fmt.Sprintf("run %d", i))
	}
}
