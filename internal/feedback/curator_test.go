package feedback

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/internal/storage/sqlite"
)

func insertFeedbackRow(t *testing.T, db *sqlite.Client, id, orgID string, overall float64, safety int, concern bool, intent string, createdAt time.Time) {
	t.Helper()
	require.NoError(t, db.InsertFeedback(&models.Feedback{
		ID:             id,
		MessageID:      "msg-" + id,
		ConversationID: "conv-" + id,
		UserID:         "u1",
		OrgID:          orgID,
		QueryText:      "query " + id,
		ResponseText:   "response " + id,
		Relevance:      4,
		Helpfulness:    4,
		Accuracy:       4,
		Clarity:        4,
		Safety:         safety,
		OverallRating:  overall,
		QueryIntent:    intent,
		SafetyConcern:  concern,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}))
}

func TestRecomputeAnalyticsIdempotent(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	day := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	insertFeedbackRow(t, db, "f1", "org-1", 4.5, 5, false, "anxiety_management", day)
	insertFeedbackRow(t, db, "f2", "org-1", 3.0, 4, false, "anxiety_management", day.Add(time.Hour))
	insertFeedbackRow(t, db, "f3", "org-1", 2.0, 2, true, "sleep_help", day.Add(2*time.Hour))

	first, err := svc.RecomputeAnalytics(ctx, "org-1", day)
	require.NoError(t, err)
	second, err := svc.RecomputeAnalytics(ctx, "org-1", day)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 3, second.TotalFeedback)
	assert.Equal(t, 3.17, second.AvgOverall)
	assert.Equal(t, 1, second.SafetyConcernCount)

	assert.Equal(t, 2, second.IntentPerformance["anxiety_management"].Count)
	assert.Equal(t, 3.75, second.IntentPerformance["anxiety_management"].AvgOverall)
	assert.Equal(t, 1, second.RatingDistribution[2])
	assert.Equal(t, 1, second.RatingDistribution[3])
	assert.Equal(t, 1, second.RatingDistribution[5])
}

func TestRecomputeAnalyticsTrendDelta(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	day1 := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	insertFeedbackRow(t, db, "f1", "org-1", 3.0, 4, false, "", day1)
	insertFeedbackRow(t, db, "f2", "org-1", 4.0, 4, false, "", day2)

	_, err := svc.RecomputeAnalytics(ctx, "org-1", day1)
	require.NoError(t, err)

	second, err := svc.RecomputeAnalytics(ctx, "org-1", day2)
	require.NoError(t, err)
	assert.Equal(t, 1.0, second.TrendDelta)
}

func TestRecomputeAnalyticsEmptyDay(t *testing.T) {
	svc, _ := newTestService(t)

	analytics, err := svc.RecomputeAnalytics(context.Background(), "org-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, analytics.TotalFeedback)
	assert.Equal(t, 0.0, analytics.AvgOverall)
}

func TestCurateTrainingExamplesGates(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	insertFeedbackRow(t, db, "good", "org-1", 4.5, 5, false, "", now)
	insertFeedbackRow(t, db, "low-overall", "org-1", 3.5, 5, false, "", now)
	insertFeedbackRow(t, db, "low-safety", "org-1", 4.5, 3, false, "", now)
	insertFeedbackRow(t, db, "concern", "org-1", 4.8, 5, true, "", now)

	promoted, err := svc.CurateTrainingExamples(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	// Rerun promotes nothing new.
	promoted, err = svc.CurateTrainingExamples(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 0, promoted)
}

func TestSplitDeterministicAndDistributed(t *testing.T) {
	counts := map[models.TrainingSplit]int{}
	for i := 0; i < 1000; i++ {
		id := fmt.Sprintf("feedback-%d", i)
		split := splitFor(id)
		assert.Equal(t, split, splitFor(id), "split must be stable per ID")
		counts[split]++
	}

	// Roughly 80/10/10.
	assert.Greater(t, counts[models.SplitTrain], 700)
	assert.Greater(t, counts[models.SplitValidation], 30)
	assert.Greater(t, counts[models.SplitTest], 30)
	assert.Equal(t, 1000, counts[models.SplitTrain]+counts[models.SplitValidation]+counts[models.SplitTest])
}

func TestDetectImprovementClusters(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	// Five low ratings on the same intent inside the window.
	for i := 0; i < 5; i++ {
		insertFeedbackRow(t, db, fmt.Sprintf("low-%d", i), "org-1", 2.0, 4, false,
			"sleep_help", now.Add(-time.Duration(i)*time.Hour))
	}
	// Low ratings outside the window are ignored.
	insertFeedbackRow(t, db, "stale", "org-1", 1.5, 4, false, "sleep_help", now.AddDate(0, 0, -10))

	items, err := svc.DetectImprovementClusters(ctx, "org-1", now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "low_rating_sleep_help", items[0].Type)
	assert.Equal(t, 5, items[0].FeedbackCount)
	assert.Equal(t, models.ImprovementOpen, items[0].Status)
	assert.Equal(t, 2.0, items[0].BeforeMetrics["avg_overall"])

	// Second run in the same window opens nothing new.
	items, err = svc.DetectImprovementClusters(ctx, "org-1", now)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestDetectImprovementClustersBelowThreshold(t *testing.T) {
	svc, db := newTestService(t)
	now := time.Now()

	for i := 0; i < 4; i++ {
		insertFeedbackRow(t, db, fmt.Sprintf("low-%d", i), "org-1", 2.0, 4, false, "sleep_help", now)
	}

	items, err := svc.DetectImprovementClusters(context.Background(), "org-1", now)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestResolveImprovement(t *testing.T) {
	svc, db := newTestService(t)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 5; i++ {
		insertFeedbackRow(t, db, fmt.Sprintf("low-%d", i), "org-1", 2.0, 4, false, "sleep_help", now)
	}

	items, err := svc.DetectImprovementClusters(ctx, "org-1", now)
	require.NoError(t, err)
	require.Len(t, items, 1)

	err = svc.ResolveImprovement(ctx, items[0].ID, map[string]float64{"avg_overall": 3.5})
	require.NoError(t, err)

	resolved, err := db.GetImprovement(items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.ImprovementDone, resolved.Status)
	assert.Equal(t, 1.5, resolved.ImpactScore)
}
