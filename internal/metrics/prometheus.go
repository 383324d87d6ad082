package metrics

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TurnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mindease_turn_duration_seconds",
			Help:    "Chat turn processing duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 20},
		},
		[]string{"mode"},
	)

	TurnTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindease_turn_total",
			Help: "Total number of chat turns processed",
		},
		[]string{"mode", "status"},
	)

	CrisisDetections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindease_crisis_detections_total",
			Help: "Total crisis detections by level",
		},
		[]string{"level"},
	)

	RetrievalResultsCount = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mindease_retrieval_results_count",
			Help:    "Number of retrieved chunks per query",
			Buckets: []float64{0, 1, 2, 5, 10, 20},
		},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindease_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	EmbeddingCacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindease_embedding_cache_hits_total",
			Help: "Total embedding cache hits",
		},
		[]string{"cache_type"},
	)

	EmbeddingCacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindease_embedding_cache_misses_total",
			Help: "Total embedding cache misses",
		},
		[]string{"cache_type"},
	)

	DocumentsIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mindease_documents_indexed_total",
			Help: "Total documents indexed",
		},
	)

	ChunksIndexed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mindease_chunks_indexed_total",
			Help: "Total chunks indexed",
		},
	)

	FeedbackSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindease_feedback_submitted_total",
			Help: "Total feedback submissions",
		},
		[]string{"safety_concern"},
	)

	FeedbackOverallRating = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mindease_feedback_overall_rating",
			Help:    "Distribution of overall feedback ratings",
			Buckets: []float64{1, 1.5, 2, 2.5, 3, 3.5, 4, 4.5, 5},
		},
	)

	TrainingExamplesPromoted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mindease_training_examples_promoted_total",
			Help: "Total feedback rows promoted to training examples",
		},
	)

	ImprovementItemsOpened = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mindease_improvement_items_opened_total",
			Help: "Total improvement items opened by type",
		},
		[]string{"type"},
	)
)

func Init() {
	prometheus.MustRegister(TurnDuration)
	prometheus.MustRegister(TurnTotal)
	prometheus.MustRegister(CrisisDetections)
	prometheus.MustRegister(RetrievalResultsCount)
	prometheus.MustRegister(LLMTokensUsed)
	prometheus.MustRegister(EmbeddingCacheHits)
	prometheus.MustRegister(EmbeddingCacheMisses)
	prometheus.MustRegister(DocumentsIndexed)
	prometheus.MustRegister(ChunksIndexed)
	prometheus.MustRegister(FeedbackSubmitted)
	prometheus.MustRegister(FeedbackOverallRating)
	prometheus.MustRegister(TrainingExamplesPromoted)
	prometheus.MustRegister(ImprovementItemsOpened)
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
