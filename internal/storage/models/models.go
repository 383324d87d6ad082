package models

import "time"

// Document is a unit of tenant-scoped (or global) knowledge-base content.
// OrgID empty means the document is visible to every tenant.
type Document struct {
	ID        string
	Title     string
	Content   string
	Category  string
	Source    string
	Language  string
	OrgID     string
	Metadata  map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Chunk is one embedded slice of a document. ChunkIndex is contiguous
// from 0 within the document; Vector length always equals the configured
// embedding dimension and ModelID records the model that produced it.
type Chunk struct {
	ID           string
	DocumentID   string
	ChunkIndex   int
	Text         string
	Vector       []float32
	ModelID      string
	OrgID        string
	DocUpdatedAt time.Time
	CreatedAt    time.Time
}

type Conversation struct {
	ID        string
	UserID    string
	Title     string
	Language  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Message is append-only; CreatedAt ordering is monotonic per conversation.
type Message struct {
	ID             string
	ConversationID string
	UserID         string
	Role           MessageRole
	Content        string
	Sources        []SourceRef
	UserState      map[string]any
	CrisisDetected bool
	Language       string
	CreatedAt      time.Time
}

// SourceRef is a citation attached to an assistant message.
type SourceRef struct {
	DocumentID string  `json:"document_id"`
	Title      string  `json:"title"`
	Category   string  `json:"category,omitempty"`
	Source     string  `json:"source,omitempty"`
	Similarity float64 `json:"similarity"`
}

type Feedback struct {
	ID               string
	MessageID        string
	ConversationID   string
	UserID           string
	OrgID            string
	QueryText        string
	ResponseText     string
	Relevance        int
	Helpfulness      int
	Accuracy         int
	Clarity          int
	Safety           int
	OverallRating    float64
	FeedbackText     string
	QueryIntent      string
	EmotionalState   string
	CrisisLevel      string
	SafetyConcern    bool
	ResponseTimeMS   int
	DocsRetrieved    int
	RetrievalMethod  string
	ModelVersion     string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// FeedbackAnalytics holds one recomputed row per (org, calendar date).
type FeedbackAnalytics struct {
	ID                 string
	OrgID              string
	Date               string // YYYY-MM-DD
	TotalFeedback      int
	AvgOverall         float64
	AvgRelevance       float64
	AvgHelpfulness     float64
	AvgAccuracy        float64
	AvgClarity         float64
	AvgSafety          float64
	SafetyConcernCount int
	RatingDistribution map[int]int
	IntentPerformance  map[string]IntentStats
	TrendDelta         float64
	ComputedAt         time.Time
}

type IntentStats struct {
	Count      int     `json:"count"`
	AvgOverall float64 `json:"avg_overall"`
}

type TrainingSplit string

const (
	SplitTrain      TrainingSplit = "train"
	SplitValidation TrainingSplit = "validation"
	SplitTest       TrainingSplit = "test"
)

// TrainingExample is immutable once Split is assigned.
type TrainingExample struct {
	ID            string
	FeedbackID    string
	OrgID         string
	QueryText     string
	ResponseText  string
	RetrievedDocs []SourceRef
	Context       map[string]any
	OverallRating float64
	SafetyRating  int
	QualityScore  float64
	TrainingReady bool
	Split         TrainingSplit
	CreatedAt     time.Time
}

type ImprovementStatus string

const (
	ImprovementOpen       ImprovementStatus = "open"
	ImprovementInProgress ImprovementStatus = "in_progress"
	ImprovementDone       ImprovementStatus = "done"
)

type ImprovementItem struct {
	ID            string
	OrgID         string
	Type          string
	Priority      string
	Status        ImprovementStatus
	Description   string
	WindowStart   string // YYYY-MM-DD, cluster window anchor
	FeedbackCount int
	BeforeMetrics map[string]float64
	AfterMetrics  map[string]float64
	ImpactScore   float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
