package feedback

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/pkg/logger"
	"github.com/mindease/backend/pkg/utils"
)

const dateLayout = "2006-01-02"

// RecomputeAnalytics rebuilds the analytics row for one organization
// and calendar day from the raw feedback. Rerunning it for the same
// day overwrites the previous row with identical values, never a
// second row.
func (s *Service) RecomputeAnalytics(_ context.Context, orgID string, day time.Time) (*models.FeedbackAnalytics, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	date := dayStart.Format(dateLayout)

	fbs, err := s.db.FeedbackForDay(orgID, dayStart)
	if err != nil {
		return nil, err
	}

	analytics := &models.FeedbackAnalytics{
		ID:                 "analytics_" + utils.HashString(orgID+"|"+date),
		OrgID:              orgID,
		Date:               date,
		TotalFeedback:      len(fbs),
		RatingDistribution: make(map[int]int),
		IntentPerformance:  make(map[string]models.IntentStats),
		ComputedAt:         time.Now(),
	}

	if len(fbs) > 0 {
		var sumOverall, sumRelevance, sumHelpfulness, sumAccuracy, sumClarity, sumSafety float64
		intentSums := make(map[string]float64)
		intentCounts := make(map[string]int)

		for _, fb := range fbs {
			sumOverall += fb.OverallRating
			sumRelevance += float64(fb.Relevance)
			sumHelpfulness += float64(fb.Helpfulness)
			sumAccuracy += float64(fb.Accuracy)
			sumClarity += float64(fb.Clarity)
			sumSafety += float64(fb.Safety)

			analytics.RatingDistribution[int(math.Round(fb.OverallRating))]++

			if fb.SafetyConcern {
				analytics.SafetyConcernCount++
			}

			intent := fb.QueryIntent
			if intent == "" {
				intent = IntentGeneral
			}
			intentSums[intent] += fb.OverallRating
			intentCounts[intent]++
		}

		n := float64(len(fbs))
		analytics.AvgOverall = round2(sumOverall / n)
		analytics.AvgRelevance = round2(sumRelevance / n)
		analytics.AvgHelpfulness = round2(sumHelpfulness / n)
		analytics.AvgAccuracy = round2(sumAccuracy / n)
		analytics.AvgClarity = round2(sumClarity / n)
		analytics.AvgSafety = round2(sumSafety / n)

		for intent, count := range intentCounts {
			analytics.IntentPerformance[intent] = models.IntentStats{
				Count:      count,
				AvgOverall: round2(intentSums[intent] / float64(count)),
			}
		}
	}

	// Trend against the previous day's row, when one exists.
	prevDate := dayStart.AddDate(0, 0, -1).Format(dateLayout)
	if prev, err := s.db.GetAnalytics(orgID, prevDate); err == nil && prev != nil && prev.TotalFeedback > 0 {
		analytics.TrendDelta = round2(analytics.AvgOverall - prev.AvgOverall)
	}

	if err := s.db.UpsertAnalytics(analytics); err != nil {
		return nil, fmt.Errorf("failed to store analytics: %w", err)
	}

	logger.Info("Feedback analytics recomputed",
		zap.String("org_id", orgID),
		zap.String("date", date),
		zap.Int("total", analytics.TotalFeedback),
		zap.Float64("avg_overall", analytics.AvgOverall),
	)

	return analytics, nil
}

func (s *Service) GetAnalytics(_ context.Context, orgID, date string) (*models.FeedbackAnalytics, error) {
	return s.db.GetAnalytics(orgID, date)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
