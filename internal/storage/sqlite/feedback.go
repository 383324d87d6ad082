package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mindease/backend/internal/storage/models"
)

func (c *Client) InsertFeedback(fb *models.Feedback) error {
	safetyConcern := 0
	if fb.SafetyConcern {
		safetyConcern = 1
	}

	query := `INSERT INTO feedback (
		id, message_id, conversation_id, user_id, org_id, query_text, response_text,
		relevance, helpfulness, accuracy, clarity, safety, overall_rating,
		feedback_text, query_intent, emotional_state, crisis_level, safety_concern,
		response_time_ms, docs_retrieved, retrieval_method, model_version, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		fb.ID, fb.MessageID, fb.ConversationID, fb.UserID, fb.OrgID, fb.QueryText, fb.ResponseText,
		fb.Relevance, fb.Helpfulness, fb.Accuracy, fb.Clarity, fb.Safety, fb.OverallRating,
		fb.FeedbackText, fb.QueryIntent, fb.EmotionalState, fb.CrisisLevel, safetyConcern,
		fb.ResponseTimeMS, fb.DocsRetrieved, fb.RetrievalMethod, fb.ModelVersion,
		fb.CreatedAt.Unix(), fb.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert feedback: %w", err)
	}

	return nil
}

func (c *Client) UpdateFeedback(fb *models.Feedback) error {
	safetyConcern := 0
	if fb.SafetyConcern {
		safetyConcern = 1
	}

	query := `UPDATE feedback SET
		relevance = ?, helpfulness = ?, accuracy = ?, clarity = ?, safety = ?,
		overall_rating = ?, feedback_text = ?, query_intent = ?, emotional_state = ?,
		safety_concern = ?, updated_at = ?
		WHERE id = ?`

	res, err := c.db.Exec(
		query,
		fb.Relevance, fb.Helpfulness, fb.Accuracy, fb.Clarity, fb.Safety,
		fb.OverallRating, fb.FeedbackText, fb.QueryIntent, fb.EmotionalState,
		safetyConcern, fb.UpdatedAt.Unix(),
		fb.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update feedback: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (c *Client) GetFeedback(id string) (*models.Feedback, error) {
	row := c.db.QueryRow(feedbackSelect+` WHERE id = ?`, id)
	fb, err := scanFeedback(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback: %w", err)
	}
	return fb, nil
}

func (c *Client) GetFeedbackByMessage(messageID string) (*models.Feedback, error) {
	row := c.db.QueryRow(feedbackSelect+` WHERE message_id = ?`, messageID)
	fb, err := scanFeedback(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feedback by message: %w", err)
	}
	return fb, nil
}

// FeedbackForDay returns every feedback row for the organization created
// within [dayStart, dayStart+24h).
func (c *Client) FeedbackForDay(orgID string, dayStart time.Time) ([]models.Feedback, error) {
	dayEnd := dayStart.Add(24 * time.Hour)
	return c.queryFeedback(
		feedbackSelect+` WHERE org_id = ? AND created_at >= ? AND created_at < ? ORDER BY created_at, id`,
		orgID, dayStart.Unix(), dayEnd.Unix(),
	)
}

func (c *Client) FeedbackSince(orgID string, since time.Time) ([]models.Feedback, error) {
	return c.queryFeedback(
		feedbackSelect+` WHERE org_id = ? AND created_at >= ? ORDER BY created_at, id`,
		orgID, since.Unix(),
	)
}

// UnpromotedFeedback returns feedback rows not yet converted into
// training examples.
func (c *Client) UnpromotedFeedback(orgID string) ([]models.Feedback, error) {
	return c.queryFeedback(
		feedbackSelect+` WHERE org_id = ? AND id NOT IN (SELECT feedback_id FROM training_examples) ORDER BY created_at, id`,
		orgID,
	)
}

func (c *Client) FeedbackOrgs() ([]string, error) {
	rows, err := c.db.Query(`SELECT DISTINCT org_id FROM feedback`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback orgs: %w", err)
	}
	defer rows.Close()

	var orgs []string
	for rows.Next() {
		var org string
		if err := rows.Scan(&org); err != nil {
			return nil, fmt.Errorf("failed to scan org row: %w", err)
		}
		orgs = append(orgs, org)
	}

	return orgs, rows.Err()
}

func (c *Client) queryFeedback(query string, args ...any) ([]models.Feedback, error) {
	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	var fbs []models.Feedback
	for rows.Next() {
		fb, err := scanFeedback(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan feedback row: %w", err)
		}
		fbs = append(fbs, *fb)
	}

	return fbs, rows.Err()
}

const feedbackSelect = `SELECT
	id, message_id, conversation_id, user_id, org_id, query_text, response_text,
	relevance, helpfulness, accuracy, clarity, safety, overall_rating,
	feedback_text, query_intent, emotional_state, crisis_level, safety_concern,
	response_time_ms, docs_retrieved, retrieval_method, model_version, created_at, updated_at
	FROM feedback`

func scanFeedback(row rowScanner) (*models.Feedback, error) {
	var fb models.Feedback
	var feedbackText, queryIntent, emotionalState, crisisLevel, retrievalMethod, modelVersion sql.NullString
	var responseTimeMS, docsRetrieved sql.NullInt64
	var safetyConcern int
	var createdAt, updatedAt int64

	err := row.Scan(
		&fb.ID, &fb.MessageID, &fb.ConversationID, &fb.UserID, &fb.OrgID, &fb.QueryText, &fb.ResponseText,
		&fb.Relevance, &fb.Helpfulness, &fb.Accuracy, &fb.Clarity, &fb.Safety, &fb.OverallRating,
		&feedbackText, &queryIntent, &emotionalState, &crisisLevel, &safetyConcern,
		&responseTimeMS, &docsRetrieved, &retrievalMethod, &modelVersion, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	fb.FeedbackText = feedbackText.String
	fb.QueryIntent = queryIntent.String
	fb.EmotionalState = emotionalState.String
	fb.CrisisLevel = crisisLevel.String
	fb.RetrievalMethod = retrievalMethod.String
	fb.ModelVersion = modelVersion.String
	fb.SafetyConcern = safetyConcern == 1
	fb.ResponseTimeMS = int(responseTimeMS.Int64)
	fb.DocsRetrieved = int(docsRetrieved.Int64)
	fb.CreatedAt = time.Unix(createdAt, 0)
	fb.UpdatedAt = time.Unix(updatedAt, 0)

	return &fb, nil
}

func (c *Client) UpsertAnalytics(a *models.FeedbackAnalytics) error {
	distJSON, err := json.Marshal(a.RatingDistribution)
	if err != nil {
		return fmt.Errorf("failed to marshal rating distribution: %w", err)
	}
	intentJSON, err := json.Marshal(a.IntentPerformance)
	if err != nil {
		return fmt.Errorf("failed to marshal intent performance: %w", err)
	}

	query := `INSERT INTO feedback_analytics (
		id, org_id, date, total_feedback, avg_overall, avg_relevance, avg_helpfulness,
		avg_accuracy, avg_clarity, avg_safety, safety_concern_count,
		rating_distribution, intent_performance, trend_delta, computed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(org_id, date) DO UPDATE SET
		total_feedback = excluded.total_feedback,
		avg_overall = excluded.avg_overall,
		avg_relevance = excluded.avg_relevance,
		avg_helpfulness = excluded.avg_helpfulness,
		avg_accuracy = excluded.avg_accuracy,
		avg_clarity = excluded.avg_clarity,
		avg_safety = excluded.avg_safety,
		safety_concern_count = excluded.safety_concern_count,
		rating_distribution = excluded.rating_distribution,
		intent_performance = excluded.intent_performance,
		trend_delta = excluded.trend_delta,
		computed_at = excluded.computed_at`

	_, err = c.db.Exec(
		query,
		a.ID, a.OrgID, a.Date, a.TotalFeedback, a.AvgOverall, a.AvgRelevance, a.AvgHelpfulness,
		a.AvgAccuracy, a.AvgClarity, a.AvgSafety, a.SafetyConcernCount,
		string(distJSON), string(intentJSON), a.TrendDelta, a.ComputedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert analytics: %w", err)
	}

	return nil
}

func (c *Client) GetAnalytics(orgID, date string) (*models.FeedbackAnalytics, error) {
	query := `SELECT id, org_id, date, total_feedback, avg_overall, avg_relevance, avg_helpfulness,
		avg_accuracy, avg_clarity, avg_safety, safety_concern_count,
		rating_distribution, intent_performance, trend_delta, computed_at
		FROM feedback_analytics WHERE org_id = ? AND date = ?`

	var a models.FeedbackAnalytics
	var distJSON, intentJSON sql.NullString
	var computedAt int64

	err := c.db.QueryRow(query, orgID, date).Scan(
		&a.ID, &a.OrgID, &a.Date, &a.TotalFeedback, &a.AvgOverall, &a.AvgRelevance, &a.AvgHelpfulness,
		&a.AvgAccuracy, &a.AvgClarity, &a.AvgSafety, &a.SafetyConcernCount,
		&distJSON, &intentJSON, &a.TrendDelta, &computedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analytics: %w", err)
	}

	if distJSON.Valid && distJSON.String != "" {
		json.Unmarshal([]byte(distJSON.String), &a.RatingDistribution)
	}
	if intentJSON.Valid && intentJSON.String != "" {
		json.Unmarshal([]byte(intentJSON.String), &a.IntentPerformance)
	}
	a.ComputedAt = time.Unix(computedAt, 0)

	return &a, nil
}

func (c *Client) InsertTrainingExample(ex *models.TrainingExample) error {
	docsJSON, err := json.Marshal(ex.RetrievedDocs)
	if err != nil {
		return fmt.Errorf("failed to marshal retrieved docs: %w", err)
	}
	ctxJSON, err := json.Marshal(ex.Context)
	if err != nil {
		return fmt.Errorf("failed to marshal example context: %w", err)
	}

	trainingReady := 0
	if ex.TrainingReady {
		trainingReady = 1
	}

	query := `INSERT INTO training_examples (
		id, feedback_id, org_id, query_text, response_text, retrieved_docs, context,
		overall_rating, safety_rating, quality_score, training_ready, split, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = c.db.Exec(
		query,
		ex.ID, ex.FeedbackID, ex.OrgID, ex.QueryText, ex.ResponseText, string(docsJSON), string(ctxJSON),
		ex.OverallRating, ex.SafetyRating, ex.QualityScore, trainingReady, string(ex.Split), ex.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert training example: %w", err)
	}

	return nil
}

func (c *Client) CountTrainingExamples(orgID string, split models.TrainingSplit) (int, error) {
	var count int
	err := c.db.QueryRow(
		`SELECT COUNT(*) FROM training_examples WHERE org_id = ? AND split = ?`,
		orgID, string(split),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count training examples: %w", err)
	}
	return count, nil
}

func (c *Client) InsertImprovement(item *models.ImprovementItem) error {
	beforeJSON, err := json.Marshal(item.BeforeMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal before metrics: %w", err)
	}
	afterJSON, err := json.Marshal(item.AfterMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal after metrics: %w", err)
	}

	query := `INSERT OR IGNORE INTO improvement_items (
		id, org_id, type, priority, status, description, window_start, feedback_count,
		before_metrics, after_metrics, impact_score, created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = c.db.Exec(
		query,
		item.ID, item.OrgID, item.Type, item.Priority, string(item.Status), item.Description,
		item.WindowStart, item.FeedbackCount, string(beforeJSON), string(afterJSON),
		item.ImpactScore, item.CreatedAt.Unix(), item.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert improvement item: %w", err)
	}

	return nil
}

func (c *Client) HasImprovement(orgID, itemType, windowStart string) (bool, error) {
	var count int
	err := c.db.QueryRow(
		`SELECT COUNT(*) FROM improvement_items WHERE org_id = ? AND type = ? AND window_start = ?`,
		orgID, itemType, windowStart,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check improvement item: %w", err)
	}
	return count > 0, nil
}

func (c *Client) ListImprovements(status string, limit int) ([]models.ImprovementItem, error) {
	query := `SELECT id, org_id, type, priority, status, description, window_start, feedback_count,
		before_metrics, after_metrics, impact_score, created_at, updated_at
		FROM improvement_items`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list improvement items: %w", err)
	}
	defer rows.Close()

	var items []models.ImprovementItem
	for rows.Next() {
		var item models.ImprovementItem
		var status string
		var beforeJSON, afterJSON sql.NullString
		var createdAt, updatedAt int64

		err := rows.Scan(
			&item.ID, &item.OrgID, &item.Type, &item.Priority, &status, &item.Description,
			&item.WindowStart, &item.FeedbackCount, &beforeJSON, &afterJSON,
			&item.ImpactScore, &createdAt, &updatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan improvement row: %w", err)
		}

		item.Status = models.ImprovementStatus(status)
		if beforeJSON.Valid && beforeJSON.String != "" {
			json.Unmarshal([]byte(beforeJSON.String), &item.BeforeMetrics)
		}
		if afterJSON.Valid && afterJSON.String != "" {
			json.Unmarshal([]byte(afterJSON.String), &item.AfterMetrics)
		}
		item.CreatedAt = time.Unix(createdAt, 0)
		item.UpdatedAt = time.Unix(updatedAt, 0)
		items = append(items, item)
	}

	return items, rows.Err()
}

func (c *Client) GetImprovement(id string) (*models.ImprovementItem, error) {
	items, err := c.ListImprovements("", 1000)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == id {
			return &items[i], nil
		}
	}
	return nil, nil
}

func (c *Client) UpdateImprovementStatus(id string, status models.ImprovementStatus, afterMetrics map[string]float64, impactScore float64, updatedAt time.Time) error {
	afterJSON, err := json.Marshal(afterMetrics)
	if err != nil {
		return fmt.Errorf("failed to marshal after metrics: %w", err)
	}

	res, err := c.db.Exec(
		`UPDATE improvement_items SET status = ?, after_metrics = ?, impact_score = ?, updated_at = ? WHERE id = ?`,
		string(status), string(afterJSON), impactScore, updatedAt.Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update improvement status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}

	return nil
}
