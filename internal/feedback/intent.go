package feedback

import (
	"strings"

	prose "github.com/jdkato/prose/v2"
	"go.uber.org/zap"

	"github.com/mindease/backend/pkg/logger"
)

// IntentClassifier buckets user queries by topic so analytics can break
// performance down per intent.
type IntentClassifier struct {
	keywords map[string][]string
}

const IntentGeneral = "general_support"

func NewIntentClassifier() *IntentClassifier {
	return &IntentClassifier{
		keywords: map[string][]string{
			"anxiety_management":   {"anxiety", "anxious", "panic", "worry", "worried", "nervous", "fear"},
			"depression_support":   {"depression", "depressed", "sad", "sadness", "empty", "numb", "unmotivated"},
			"sleep_help":           {"sleep", "insomnia", "tired", "exhausted", "nightmare", "awake"},
			"stress_management":    {"stress", "stressed", "overwhelmed", "burnout", "pressure", "workload"},
			"relationship_support": {"relationship", "partner", "friend", "family", "lonely", "loneliness", "breakup"},
			"coping_techniques":    {"cope", "coping", "breathing", "meditation", "mindfulness", "grounding", "exercise"},
		},
	}
}

// Classify tokenizes the query and returns the intent with the most
// keyword hits. Ties resolve by intent name for stable results; no
// hits at all classify as general support.
func (ic *IntentClassifier) Classify(query string) string {
	if strings.TrimSpace(query) == "" {
		return IntentGeneral
	}

	doc, err := prose.NewDocument(query, prose.WithExtraction(false), prose.WithTagging(false))
	if err != nil {
		logger.Warn("Intent tokenization failed", zap.Error(err))
		return IntentGeneral
	}

	counts := make(map[string]int)
	for _, tok := range doc.Tokens() {
		word := strings.ToLower(tok.Text)
		for intent, words := range ic.keywords {
			for _, kw := range words {
				if word == kw {
					counts[intent]++
				}
			}
		}
	}

	best := IntentGeneral
	bestCount := 0
	for intent, count := range counts {
		if count > bestCount || (count == bestCount && count > 0 && intent < best) {
			best = intent
			bestCount = count
		}
	}

	return best
}
