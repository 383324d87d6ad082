package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mindease/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database exists per connection, so the pool must not
	// open a second one.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		category TEXT,
		source TEXT,
		language TEXT,
		org_id TEXT NOT NULL DEFAULT '',
		metadata TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_org ON documents(org_id);
	CREATE INDEX IF NOT EXISTS idx_documents_category ON documents(category);
	CREATE INDEX IF NOT EXISTS idx_documents_updated ON documents(updated_at);

	CREATE TABLE IF NOT EXISTS chunks (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		vector TEXT NOT NULL,
		model_id TEXT NOT NULL,
		org_id TEXT NOT NULL DEFAULT '',
		doc_updated_at INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (document_id) REFERENCES documents(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id);
	CREATE INDEX IF NOT EXISTS idx_chunks_org ON chunks(org_id);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT,
		language TEXT NOT NULL DEFAULT 'en',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		sources TEXT,
		user_state TEXT,
		crisis_detected INTEGER NOT NULL DEFAULT 0,
		language TEXT NOT NULL DEFAULT 'en',
		created_at INTEGER NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS feedback (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL UNIQUE,
		conversation_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		org_id TEXT NOT NULL DEFAULT '',
		query_text TEXT NOT NULL,
		response_text TEXT NOT NULL,
		relevance INTEGER NOT NULL,
		helpfulness INTEGER NOT NULL,
		accuracy INTEGER NOT NULL,
		clarity INTEGER NOT NULL,
		safety INTEGER NOT NULL,
		overall_rating REAL NOT NULL,
		feedback_text TEXT,
		query_intent TEXT,
		emotional_state TEXT,
		crisis_level TEXT,
		safety_concern INTEGER NOT NULL DEFAULT 0,
		response_time_ms INTEGER,
		docs_retrieved INTEGER,
		retrieval_method TEXT,
		model_version TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		FOREIGN KEY (message_id) REFERENCES messages(id)
	);
	CREATE INDEX IF NOT EXISTS idx_feedback_org_created ON feedback(org_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_feedback_conversation ON feedback(conversation_id);

	CREATE TABLE IF NOT EXISTS feedback_analytics (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL,
		date TEXT NOT NULL,
		total_feedback INTEGER NOT NULL,
		avg_overall REAL NOT NULL,
		avg_relevance REAL NOT NULL,
		avg_helpfulness REAL NOT NULL,
		avg_accuracy REAL NOT NULL,
		avg_clarity REAL NOT NULL,
		avg_safety REAL NOT NULL,
		safety_concern_count INTEGER NOT NULL,
		rating_distribution TEXT,
		intent_performance TEXT,
		trend_delta REAL NOT NULL DEFAULT 0,
		computed_at INTEGER NOT NULL,
		UNIQUE(org_id, date)
	);

	CREATE TABLE IF NOT EXISTS training_examples (
		id TEXT PRIMARY KEY,
		feedback_id TEXT NOT NULL UNIQUE,
		org_id TEXT NOT NULL DEFAULT '',
		query_text TEXT NOT NULL,
		response_text TEXT NOT NULL,
		retrieved_docs TEXT,
		context TEXT,
		overall_rating REAL NOT NULL,
		safety_rating INTEGER NOT NULL,
		quality_score REAL NOT NULL,
		training_ready INTEGER NOT NULL DEFAULT 0,
		split TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		FOREIGN KEY (feedback_id) REFERENCES feedback(id)
	);
	CREATE INDEX IF NOT EXISTS idx_training_org_split ON training_examples(org_id, split);

	CREATE TABLE IF NOT EXISTS improvement_items (
		id TEXT PRIMARY KEY,
		org_id TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		priority TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		description TEXT NOT NULL,
		window_start TEXT NOT NULL,
		feedback_count INTEGER NOT NULL,
		before_metrics TEXT,
		after_metrics TEXT,
		impact_score REAL NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE(org_id, type, window_start)
	);
	CREATE INDEX IF NOT EXISTS idx_improvements_status ON improvement_items(status);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}
