package feedback

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mindease/backend/internal/metrics"
	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/pkg/logger"
	"github.com/mindease/backend/pkg/utils"
)

// splitBuckets carves feedback IDs into ten hash buckets: 0-7 train,
// 8 validation, 9 test. The assignment depends only on the feedback
// ID, so a re-run never moves an example between splits.
const splitBuckets = 10

func splitFor(feedbackID string) models.TrainingSplit {
	switch bucket := utils.Bucket(feedbackID, splitBuckets); {
	case bucket <= 7:
		return models.SplitTrain
	case bucket == 8:
		return models.SplitValidation
	default:
		return models.SplitTest
	}
}

// CurateTrainingExamples promotes highly rated, safe feedback into the
// training set. Gates: overall rating and safety rating must both
// clear their configured thresholds, and safety-concern rows never
// qualify. Already promoted feedback is skipped.
func (s *Service) CurateTrainingExamples(_ context.Context, orgID string) (int, error) {
	candidates, err := s.db.UnpromotedFeedback(orgID)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, fb := range candidates {
		if fb.SafetyConcern {
			continue
		}
		if fb.OverallRating < s.cfg.TrainingOverallGate || fb.Safety < s.cfg.TrainingSafetyGate {
			continue
		}
		if fb.QueryText == "" || fb.ResponseText == "" {
			continue
		}

		sources := []models.SourceRef{}
		if msg, err := s.db.GetMessage(fb.MessageID); err == nil && msg != nil {
			sources = msg.Sources
		}

		ex := &models.TrainingExample{
			ID:            "train_" + utils.HashString(fb.ID),
			FeedbackID:    fb.ID,
			OrgID:         orgID,
			QueryText:     fb.QueryText,
			ResponseText:  fb.ResponseText,
			RetrievedDocs: sources,
			Context: map[string]any{
				"query_intent":    fb.QueryIntent,
				"emotional_state": fb.EmotionalState,
				"crisis_level":    fb.CrisisLevel,
				"model_version":   fb.ModelVersion,
			},
			OverallRating: fb.OverallRating,
			SafetyRating:  fb.Safety,
			QualityScore:  round2(fb.OverallRating / 5.0),
			TrainingReady: true,
			Split:         splitFor(fb.ID),
			CreatedAt:     time.Now(),
		}

		if err := s.db.InsertTrainingExample(ex); err != nil {
			return promoted, fmt.Errorf("failed to promote feedback %s: %w", fb.ID, err)
		}
		metrics.TrainingExamplesPromoted.Inc()
		promoted++
	}

	if promoted > 0 {
		logger.Info("Training examples curated",
			zap.String("org_id", orgID),
			zap.Int("promoted", promoted),
			zap.Int("candidates", len(candidates)),
		)
	}

	return promoted, nil
}

// DetectImprovementClusters scans the recent low-rated feedback for
// recurring problems and opens one improvement item per (org, type,
// window). A window that already produced an item never produces a
// duplicate.
func (s *Service) DetectImprovementClusters(_ context.Context, orgID string, now time.Time) ([]models.ImprovementItem, error) {
	windowStart := now.AddDate(0, 0, -s.cfg.ClusterWindowDays)
	fbs, err := s.db.FeedbackSince(orgID, windowStart)
	if err != nil {
		return nil, err
	}

	windowKey := windowStart.Format(dateLayout)

	type cluster struct {
		count    int
		sum      float64
		priority string
		describe string
	}
	clusters := make(map[string]*cluster)

	addTo := func(key string, rating float64, priority, describe string) {
		c, ok := clusters[key]
		if !ok {
			c = &cluster{priority: priority, describe: describe}
			clusters[key] = c
		}
		c.count++
		c.sum += rating
	}

	for _, fb := range fbs {
		if fb.SafetyConcern {
			addTo("safety_concern", fb.OverallRating, "critical",
				"Responses repeatedly flagged as safety concerns")
		}
		if fb.OverallRating < 3.0 {
			intent := fb.QueryIntent
			if intent == "" {
				intent = IntentGeneral
			}
			addTo("low_rating_"+intent, fb.OverallRating, "high",
				fmt.Sprintf("Low-rated responses clustered on intent %q", intent))
		}
	}

	var created []models.ImprovementItem
	for key, c := range clusters {
		if c.count < s.cfg.ClusterSize {
			continue
		}

		exists, err := s.db.HasImprovement(orgID, key, windowKey)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		item := models.ImprovementItem{
			ID:            "improve_" + utils.HashString(orgID+"|"+key+"|"+windowKey),
			OrgID:         orgID,
			Type:          key,
			Priority:      c.priority,
			Status:        models.ImprovementOpen,
			Description:   c.describe,
			WindowStart:   windowKey,
			FeedbackCount: c.count,
			BeforeMetrics: map[string]float64{
				"avg_overall":    round2(c.sum / float64(c.count)),
				"feedback_count": float64(c.count),
			},
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		}

		if err := s.db.InsertImprovement(&item); err != nil {
			return created, fmt.Errorf("failed to open improvement item: %w", err)
		}
		metrics.ImprovementItemsOpened.WithLabelValues(key).Inc()
		created = append(created, item)

		logger.Warn("Improvement item opened",
			zap.String("org_id", orgID),
			zap.String("type", key),
			zap.String("priority", c.priority),
			zap.Int("feedback_count", c.count),
		)
	}

	return created, nil
}

func (s *Service) ListImprovements(_ context.Context, status string, limit int) ([]models.ImprovementItem, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.db.ListImprovements(status, limit)
}

// ResolveImprovement closes an item and records its measured impact.
func (s *Service) ResolveImprovement(_ context.Context, id string, afterMetrics map[string]float64) error {
	item, err := s.db.GetImprovement(id)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("improvement item %s not found", id)
	}

	impact := 0.0
	if before, ok := item.BeforeMetrics["avg_overall"]; ok {
		if after, ok := afterMetrics["avg_overall"]; ok {
			impact = round2(after - before)
		}
	}

	return s.db.UpdateImprovementStatus(id, models.ImprovementDone, afterMetrics, impact, time.Now())
}

// RunCurationCycle executes the full background pass for every org
// that has ever submitted feedback: yesterday's and today's analytics,
// training curation, and cluster detection.
func (s *Service) RunCurationCycle(ctx context.Context) error {
	orgs, err := s.db.FeedbackOrgs()
	if err != nil {
		return err
	}

	now := time.Now()
	for _, org := range orgs {
		if _, err := s.RecomputeAnalytics(ctx, org, now.AddDate(0, 0, -1)); err != nil {
			logger.Error("Analytics recompute failed", zap.String("org_id", org), zap.Error(err))
		}
		if _, err := s.RecomputeAnalytics(ctx, org, now); err != nil {
			logger.Error("Analytics recompute failed", zap.String("org_id", org), zap.Error(err))
		}
		if _, err := s.CurateTrainingExamples(ctx, org); err != nil {
			logger.Error("Training curation failed", zap.String("org_id", org), zap.Error(err))
		}
		if _, err := s.DetectImprovementClusters(ctx, org, now); err != nil {
			logger.Error("Cluster detection failed", zap.String("org_id", org), zap.Error(err))
		}
	}

	return nil
}

// StartCurationJob runs RunCurationCycle on a fixed interval until the
// context is canceled.
func (s *Service) StartCurationJob(ctx context.Context) {
	interval := time.Duration(s.cfg.JobIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.RunCurationCycle(ctx); err != nil {
					logger.Error("Curation cycle failed", zap.Error(err))
				}
			}
		}
	}()

	logger.Info("Feedback curation job started", zap.Duration("interval", interval))
}
