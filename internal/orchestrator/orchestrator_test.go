package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindease/backend/internal/chat"
	"github.com/mindease/backend/internal/crisis"
	"github.com/mindease/backend/internal/llm"
	"github.com/mindease/backend/internal/retrieval"
	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/internal/storage/sqlite"
	"github.com/mindease/backend/internal/tenant"
)

type fakeRetriever struct {
	calls   int
	results []retrieval.Result
	scope   tenant.Scope
	err     error
}

func (f *fakeRetriever) Retrieve(_ context.Context, _ string, scope tenant.Scope, _ int) ([]retrieval.Result, error) {
	f.calls++
	f.scope = scope
	return f.results, f.err
}

type fakeGenerator struct {
	calls    int
	response string
	err      error
}

func (f *fakeGenerator) GenerateChatResponse(_ context.Context, _, _ string, _ []llm.ChatMessage, _ string) (string, error) {
	f.calls++
	return f.response, f.err
}

func newTestOrchestrator(t *testing.T, retriever *fakeRetriever, generator *fakeGenerator) (*Orchestrator, *chat.Manager) {
	t.Helper()
	db, err := sqlite.NewClient(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	chats := chat.NewManager(db, 10)
	detector := crisis.NewDetector(
		[]string{"kill myself", "suicide"},
		[]string{"hopeless"},
	)
	return New(chats, detector, retriever, generator, 5), chats
}

func TestHandleGenerated(t *testing.T) {
	retriever := &fakeRetriever{results: []retrieval.Result{
		{DocumentID: "doc-1", Title: "Managing stress", Text: "breathe slowly", Similarity: 0.9},
	}}
	generator := &fakeGenerator{response: "Try a short breathing exercise."}
	orch, chats := newTestOrchestrator(t, retriever, generator)

	resp, err := orch.Handle(context.Background(), Request{
		UserID:  "u1",
		Message: "Work stress is getting to me",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeGenerated, resp.Mode)
	assert.Equal(t, crisis.LevelNone, resp.CrisisLevel)
	assert.Equal(t, "Try a short breathing exercise.", resp.Content)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, "doc-1", resp.Sources[0].DocumentID)
	assert.Equal(t, 1, generator.calls)

	history, err := chats.History(context.Background(), resp.ConversationID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, models.RoleAssistant, history[1].Role)

	// The turn latency rides along in the assistant snapshot so
	// feedback can pick it up later.
	_, ok := history[1].UserState["response_time_ms"]
	assert.True(t, ok)
}

func TestHandleCrisisSkipsModel(t *testing.T) {
	retriever := &fakeRetriever{}
	generator := &fakeGenerator{response: "should never be used"}
	orch, chats := newTestOrchestrator(t, retriever, generator)

	resp, err := orch.Handle(context.Background(), Request{
		UserID:  "u1",
		Message: "I want to kill myself",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeCrisis, resp.Mode)
	assert.Equal(t, crisis.LevelHigh, resp.CrisisLevel)
	assert.Contains(t, resp.Content, "988")
	assert.Empty(t, resp.Sources)

	// Neither retrieval nor generation ran.
	assert.Equal(t, 0, retriever.calls)
	assert.Equal(t, 0, generator.calls)

	// Still exactly one user and one assistant message persisted.
	history, err := chats.History(context.Background(), resp.ConversationID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].CrisisDetected)
}

func TestHandleCrisisFrench(t *testing.T) {
	orch, _ := newTestOrchestrator(t, &fakeRetriever{}, &fakeGenerator{})

	resp, err := orch.Handle(context.Background(), Request{
		UserID:   "u1",
		Message:  "suicide",
		Language: "fr",
	})
	require.NoError(t, err)
	assert.Equal(t, ModeCrisis, resp.Mode)
	assert.Contains(t, resp.Content, "3114")
}

func TestHandleFallbackOnGenerationFailure(t *testing.T) {
	retriever := &fakeRetriever{results: []retrieval.Result{
		{DocumentID: "doc-1", Title: "t", Text: "x", Similarity: 0.5},
	}}
	generator := &fakeGenerator{err: errors.New("model timeout")}
	orch, chats := newTestOrchestrator(t, retriever, generator)

	resp, err := orch.Handle(context.Background(), Request{
		UserID:  "u1",
		Message: "How do I sleep better?",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeRuleBased, resp.Mode)
	assert.Empty(t, resp.Sources)
	assert.Contains(t, resp.Content, "still here with you")

	history, err := chats.History(context.Background(), resp.ConversationID, 10)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestHandleLowRiskFooter(t *testing.T) {
	generator := &fakeGenerator{response: "That sounds heavy."}
	orch, _ := newTestOrchestrator(t, &fakeRetriever{}, generator)

	resp, err := orch.Handle(context.Background(), Request{
		UserID:  "u1",
		Message: "everything feels hopeless lately",
	})
	require.NoError(t, err)

	assert.Equal(t, ModeGenerated, resp.Mode)
	assert.Equal(t, crisis.LevelLow, resp.CrisisLevel)
	assert.True(t, strings.HasPrefix(resp.Content, "That sounds heavy."))
	assert.Contains(t, resp.Content, "988")
}

func TestHandleOutputSafetyCheckReplacesDraft(t *testing.T) {
	generator := &fakeGenerator{response: "Some people in that situation think about suicide a lot."}
	orch, chats := newTestOrchestrator(t, &fakeRetriever{}, generator)

	resp, err := orch.Handle(context.Background(), Request{
		UserID:  "u1",
		Message: "I had a rough week",
	})
	require.NoError(t, err)

	// The draft tripped the screen, so the safety response ships instead.
	assert.Equal(t, ModeCrisis, resp.Mode)
	assert.Equal(t, crisis.LevelHigh, resp.CrisisLevel)
	assert.NotContains(t, resp.Content, "Some people")
	assert.Contains(t, resp.Content, "988")
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 1, generator.calls)

	history, err := chats.History(context.Background(), resp.ConversationID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.False(t, history[0].CrisisDetected)
	assert.True(t, history[1].CrisisDetected)
}

func TestHandleScopeSelection(t *testing.T) {
	retriever := &fakeRetriever{}
	orch, _ := newTestOrchestrator(t, retriever, &fakeGenerator{response: "ok"})

	_, err := orch.Handle(context.Background(), Request{UserID: "u1", Message: "hello"})
	require.NoError(t, err)
	assert.True(t, retriever.scope.IsGlobal())

	_, err = orch.Handle(context.Background(), Request{UserID: "u1", OrgID: "org-9", Message: "hello"})
	require.NoError(t, err)
	orgID, ok := retriever.scope.OrgID()
	assert.True(t, ok)
	assert.Equal(t, "org-9", orgID)
}

func TestHandleRetrievalFailureDegrades(t *testing.T) {
	retriever := &fakeRetriever{err: errors.New("store down")}
	generator := &fakeGenerator{response: "ungrounded but helpful"}
	orch, _ := newTestOrchestrator(t, retriever, generator)

	resp, err := orch.Handle(context.Background(), Request{UserID: "u1", Message: "hello"})
	require.NoError(t, err)

	assert.Equal(t, ModeGenerated, resp.Mode)
	assert.Empty(t, resp.Sources)
	assert.Equal(t, 1, generator.calls)
}
