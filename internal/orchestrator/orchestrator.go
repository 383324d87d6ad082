// Package orchestrator runs a chat turn end to end: crisis screening,
// history assembly, retrieval, generation, and persistence. Every turn
// persists exactly one user message and exactly one assistant message,
// whatever path the turn takes.
package orchestrator

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mindease/backend/internal/chat"
	"github.com/mindease/backend/internal/crisis"
	"github.com/mindease/backend/internal/llm"
	"github.com/mindease/backend/internal/retrieval"
	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/internal/tenant"
	"github.com/mindease/backend/pkg/logger"
)

type Mode string

const (
	ModeGenerated Mode = "generated"
	ModeRuleBased Mode = "rule_based_fallback"
	ModeCrisis    Mode = "crisis"
)

// Generator is the model call used for the happy path. The LLM client
// satisfies this; tests substitute failures to exercise the fallback.
type Generator interface {
	GenerateChatResponse(ctx context.Context, userMessage, docContext string, history []llm.ChatMessage, language string) (string, error)
}

// Retriever narrows the retrieval engine to what a turn needs.
type Retriever interface {
	Retrieve(ctx context.Context, query string, scope tenant.Scope, topK int) ([]retrieval.Result, error)
}

type Request struct {
	ConversationID string
	UserID         string
	OrgID          string
	Message        string
	Language       string
}

type Response struct {
	ConversationID string
	MessageID      string
	Content        string
	Mode           Mode
	CrisisLevel    crisis.Level
	Sources        []models.SourceRef
	DocsRetrieved  int
	ResponseTimeMS int
}

type Orchestrator struct {
	chats     *chat.Manager
	detector  *crisis.Detector
	retriever Retriever
	generator Generator
	topK      int
}

func New(chats *chat.Manager, detector *crisis.Detector, retriever Retriever, generator Generator, topK int) *Orchestrator {
	return &Orchestrator{
		chats:     chats,
		detector:  detector,
		retriever: retriever,
		generator: generator,
		topK:      topK,
	}
}

// Handle processes one user turn. Crisis screening runs twice: on the
// user input, before any retrieval or generation, and on the generated
// draft before it can be returned. A high-risk message short-circuits
// to the static safety response and never reaches the model; a
// high-risk draft is replaced by the same safety response.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()

	if req.Language == "" {
		req.Language = "en"
	}
	language := req.Language

	cls := o.detector.ClassifySafe(req.Message)
	level := cls.Level

	userMsg := &models.Message{
		ConversationID: req.ConversationID,
		UserID:         req.UserID,
		Role:           models.RoleUser,
		Content:        req.Message,
		CrisisDetected: level == crisis.LevelHigh,
		Language:       language,
	}
	userMsg, err := o.chats.Append(ctx, userMsg)
	if err != nil {
		return nil, err
	}

	if level == crisis.LevelHigh {
		logger.Warn("Crisis response issued",
			zap.String("conversation_id", userMsg.ConversationID),
			zap.String("user_id", req.UserID),
			zap.Strings("matched_signals", cls.Matched),
		)
		return o.persistAssistant(ctx, req, userMsg.ConversationID, crisisResponse(language), ModeCrisis, level, nil, start)
	}

	history, err := o.chats.History(ctx, userMsg.ConversationID, 0)
	if err != nil {
		return nil, err
	}

	scope := tenant.GlobalScope()
	if req.OrgID != "" {
		scope = tenant.OrgScope(req.OrgID)
	}

	var sources []models.SourceRef
	var docContext string
	results, err := o.retriever.Retrieve(ctx, req.Message, scope, o.topK)
	if err != nil {
		// Retrieval failure degrades to an ungrounded turn rather than
		// failing the whole request.
		logger.Warn("Retrieval failed, continuing without context", zap.Error(err))
	} else {
		docContext = buildContext(results)
		for _, r := range results {
			sources = append(sources, r.SourceRef())
		}
	}

	content, genErr := o.generator.GenerateChatResponse(ctx, req.Message, docContext, toChatHistory(history, userMsg.ID), language)
	mode := ModeGenerated
	if genErr != nil || strings.TrimSpace(content) == "" {
		logger.Warn("Generation failed, serving fallback",
			zap.String("conversation_id", userMsg.ConversationID),
			zap.Error(genErr),
		)
		content = fallbackResponse(language)
		mode = ModeRuleBased
		sources = nil
	} else if out := o.detector.ClassifySafe(content); out.Level == crisis.LevelHigh {
		// The model's draft gets the same screening as user input. A
		// high-risk draft is discarded, never returned.
		logger.Warn("Draft replaced by output safety check",
			zap.String("conversation_id", userMsg.ConversationID),
			zap.Strings("matched_signals", out.Matched),
		)
		content = crisisResponse(language)
		mode = ModeCrisis
		level = crisis.LevelHigh
		sources = nil
	}

	if mode == ModeGenerated && level == crisis.LevelLow {
		content += lowRiskFooter(language)
	}

	return o.persistAssistant(ctx, req, userMsg.ConversationID, content, mode, level, sources, start)
}

func (o *Orchestrator) persistAssistant(ctx context.Context, req Request, conversationID, content string, mode Mode, level crisis.Level, sources []models.SourceRef, start time.Time) (*Response, error) {
	elapsed := int(time.Since(start).Milliseconds())

	assistantMsg := &models.Message{
		ConversationID: conversationID,
		UserID:         req.UserID,
		Role:           models.RoleAssistant,
		Content:        content,
		Sources:        sources,
		CrisisDetected: level == crisis.LevelHigh,
		Language:       req.Language,
		UserState: map[string]any{
			"mode":             string(mode),
			"crisis_level":     string(level),
			"response_time_ms": elapsed,
		},
	}
	assistantMsg, err := o.chats.Append(ctx, assistantMsg)
	if err != nil {
		return nil, err
	}

	logger.Info("Turn completed",
		zap.String("conversation_id", conversationID),
		zap.String("mode", string(mode)),
		zap.String("crisis_level", string(level)),
		zap.Int("sources", len(sources)),
		zap.Int("response_time_ms", elapsed),
	)

	return &Response{
		ConversationID: conversationID,
		MessageID:      assistantMsg.ID,
		Content:        content,
		Mode:           mode,
		CrisisLevel:    level,
		Sources:        sources,
		DocsRetrieved:  len(sources),
		ResponseTimeMS: elapsed,
	}, nil
}

// toChatHistory converts the stored window into model turns, dropping
// the just-appended user message so it is not sent twice.
func toChatHistory(history []models.Message, currentUserMsgID string) []llm.ChatMessage {
	out := make([]llm.ChatMessage, 0, len(history))
	for _, m := range history {
		if m.ID == currentUserMsgID || m.Role == models.RoleSystem {
			continue
		}
		out = append(out, llm.ChatMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}
	return out
}

func buildContext(results []retrieval.Result) string {
	if len(results) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, r := range results {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString("[")
		sb.WriteString(r.Title)
		sb.WriteString("]\n")
		sb.WriteString(r.Text)
	}
	return sb.String()
}
