// Package chat owns conversation state: message appends, history
// windows, and implicit conversation creation.
package chat

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/internal/storage/sqlite"
	"github.com/mindease/backend/pkg/logger"
)

var ErrConversationNotFound = errors.New("conversation not found")

const titleMaxLen = 60

// lock striping: appends within one conversation serialize, appends
// across conversations proceed in parallel.
const lockStripes = 64

type Manager struct {
	db            *sqlite.Client
	historyWindow int
	locks         [lockStripes]sync.Mutex
}

func NewManager(db *sqlite.Client, historyWindow int) *Manager {
	return &Manager{
		db:            db,
		historyWindow: historyWindow,
	}
}

func (m *Manager) lockFor(conversationID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(conversationID))
	return &m.locks[h.Sum32()%lockStripes]
}

// Append stores a message at the tail of the conversation, creating the
// conversation on first use. Timestamps are strictly increasing within
// a conversation even when the wall clock stalls.
func (m *Manager) Append(_ context.Context, msg *models.Message) (*models.Message, error) {
	if msg.ConversationID == "" {
		msg.ConversationID = uuid.NewString()
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	lock := m.lockFor(msg.ConversationID)
	lock.Lock()
	defer lock.Unlock()

	conv, err := m.db.GetConversation(msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}

	now := time.Now()
	if conv == nil {
		conv = &models.Conversation{
			ID:        msg.ConversationID,
			UserID:    msg.UserID,
			Title:     titleFrom(msg.Content),
			Language:  msg.Language,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := m.db.InsertConversation(conv); err != nil {
			return nil, fmt.Errorf("failed to create conversation: %w", err)
		}
		logger.Info("Conversation created",
			zap.String("conversation_id", conv.ID),
			zap.String("user_id", conv.UserID),
		)
	}

	msg.CreatedAt = now
	last, err := m.db.LastMessageTime(msg.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to read last message time: %w", err)
	}
	if !msg.CreatedAt.After(last) {
		msg.CreatedAt = last.Add(time.Nanosecond)
	}

	if err := m.db.InsertMessage(msg); err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}
	if err := m.db.TouchConversation(msg.ConversationID, msg.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to touch conversation: %w", err)
	}

	return msg, nil
}

// History returns the most recent window of messages in chronological
// order. limit <= 0 uses the configured window.
func (m *Manager) History(_ context.Context, conversationID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = m.historyWindow
	}

	conv, err := m.db.GetConversation(conversationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation: %w", err)
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}

	return m.db.RecentMessages(conversationID, limit)
}

func (m *Manager) Get(_ context.Context, conversationID string) (*models.Conversation, error) {
	conv, err := m.db.GetConversation(conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (m *Manager) ListByUser(_ context.Context, userID string, limit int) ([]models.Conversation, error) {
	return m.db.ListConversationsByUser(userID, limit)
}

// titleFrom derives a conversation title from the first user message.
func titleFrom(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if title == "" {
		return "New conversation"
	}
	// Truncate on runes so a multi-byte first message never leaves an
	// invalid UTF-8 title.
	if runes := []rune(title); len(runes) > titleMaxLen {
		head := string(runes[:titleMaxLen])
		if cut := strings.LastIndex(head, " "); cut > 0 {
			head = head[:cut]
		}
		title = head + "..."
	}
	return title
}
