package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mindease/backend/internal/storage/models"
)

func (c *Client) InsertConversation(conv *models.Conversation) error {
	query := `INSERT INTO conversations (id, user_id, title, language, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := c.db.Exec(
		query,
		conv.ID,
		conv.UserID,
		conv.Title,
		conv.Language,
		conv.CreatedAt.Unix(),
		conv.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}

	return nil
}

func (c *Client) GetConversation(id string) (*models.Conversation, error) {
	query := `SELECT id, user_id, title, language, created_at, updated_at FROM conversations WHERE id = ?`

	var conv models.Conversation
	var title sql.NullString
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(&conv.ID, &conv.UserID, &title, &conv.Language, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}

	conv.Title = title.String
	conv.CreatedAt = time.Unix(createdAt, 0)
	conv.UpdatedAt = time.Unix(updatedAt, 0)

	return &conv, nil
}

func (c *Client) TouchConversation(id string, updatedAt time.Time) error {
	_, err := c.db.Exec(`UPDATE conversations SET updated_at = ? WHERE id = ?`, updatedAt.Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

func (c *Client) ListConversationsByUser(userID string, limit int) ([]models.Conversation, error) {
	query := `SELECT id, user_id, title, language, created_at, updated_at
		FROM conversations WHERE user_id = ? ORDER BY updated_at DESC LIMIT ?`

	rows, err := c.db.Query(query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []models.Conversation
	for rows.Next() {
		var conv models.Conversation
		var title sql.NullString
		var createdAt, updatedAt int64

		err := rows.Scan(&conv.ID, &conv.UserID, &title, &conv.Language, &createdAt, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation row: %w", err)
		}

		conv.Title = title.String
		conv.CreatedAt = time.Unix(createdAt, 0)
		conv.UpdatedAt = time.Unix(updatedAt, 0)
		convs = append(convs, conv)
	}

	return convs, rows.Err()
}

func (c *Client) InsertMessage(msg *models.Message) error {
	sourcesJSON, err := json.Marshal(msg.Sources)
	if err != nil {
		return fmt.Errorf("failed to marshal message sources: %w", err)
	}
	stateJSON, err := json.Marshal(msg.UserState)
	if err != nil {
		return fmt.Errorf("failed to marshal user state: %w", err)
	}

	crisisDetected := 0
	if msg.CrisisDetected {
		crisisDetected = 1
	}

	query := `INSERT INTO messages (id, conversation_id, user_id, role, content, sources, user_state, crisis_detected, language, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = c.db.Exec(
		query,
		msg.ID,
		msg.ConversationID,
		msg.UserID,
		string(msg.Role),
		msg.Content,
		string(sourcesJSON),
		string(stateJSON),
		crisisDetected,
		msg.Language,
		msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

func (c *Client) GetMessage(id string) (*models.Message, error) {
	query := `SELECT id, conversation_id, user_id, role, content, sources, user_state, crisis_detected, language, created_at
		FROM messages WHERE id = ?`

	row := c.db.QueryRow(query, id)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return msg, nil
}

// RecentMessages returns at most limit most-recent messages in
// chronological order.
func (c *Client) RecentMessages(conversationID string, limit int) ([]models.Message, error) {
	query := `SELECT id, conversation_id, user_id, role, content, sources, user_state, crisis_detected, language, created_at
		FROM messages WHERE conversation_id = ?
		ORDER BY created_at DESC LIMIT ?`

	rows, err := c.db.Query(query, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get recent messages: %w", err)
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msgs = append(msgs, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Reverse newest-first into chronological order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}

	return msgs, nil
}

// LastMessageTime reports the newest message timestamp in the
// conversation, or zero time when the conversation is empty.
func (c *Client) LastMessageTime(conversationID string) (time.Time, error) {
	var ns sql.NullInt64
	err := c.db.QueryRow(
		`SELECT MAX(created_at) FROM messages WHERE conversation_id = ?`,
		conversationID,
	).Scan(&ns)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last message time: %w", err)
	}
	if !ns.Valid {
		return time.Time{}, nil
	}
	return time.Unix(0, ns.Int64), nil
}

// PrecedingUserMessage returns the newest user message strictly older
// than the given timestamp, or nil when none exists.
func (c *Client) PrecedingUserMessage(conversationID string, before time.Time) (*models.Message, error) {
	query := `SELECT id, conversation_id, user_id, role, content, sources, user_state, crisis_detected, language, created_at
		FROM messages WHERE conversation_id = ? AND role = 'user' AND created_at < ?
		ORDER BY created_at DESC LIMIT 1`

	row := c.db.QueryRow(query, conversationID, before.UnixNano())
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preceding user message: %w", err)
	}

	return msg, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var msg models.Message
	var role string
	var sourcesJSON, stateJSON sql.NullString
	var crisisDetected int
	var createdAt int64

	err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.UserID,
		&role,
		&msg.Content,
		&sourcesJSON,
		&stateJSON,
		&crisisDetected,
		&msg.Language,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	msg.Role = models.MessageRole(role)
	if sourcesJSON.Valid && sourcesJSON.String != "" {
		json.Unmarshal([]byte(sourcesJSON.String), &msg.Sources)
	}
	if stateJSON.Valid && stateJSON.String != "" {
		json.Unmarshal([]byte(stateJSON.String), &msg.UserState)
	}
	msg.CrisisDetected = crisisDetected == 1
	msg.CreatedAt = time.Unix(0, createdAt)

	return &msg, nil
}
