package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mindease/backend/internal/storage/models"
)

func (c *Client) UpsertDocument(doc *models.Document) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal document metadata: %w", err)
	}

	query := `
		INSERT INTO documents (id, title, content, category, source, language, org_id, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			category = excluded.category,
			source = excluded.source,
			language = excluded.language,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at
	`

	_, err = c.db.Exec(
		query,
		doc.ID,
		doc.Title,
		doc.Content,
		doc.Category,
		doc.Source,
		doc.Language,
		doc.OrgID,
		string(metadataJSON),
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	return nil
}

func (c *Client) GetDocument(id string) (*models.Document, error) {
	query := `SELECT id, title, content, category, source, language, org_id, metadata, created_at, updated_at
		FROM documents WHERE id = ?`

	var doc models.Document
	var metadataJSON sql.NullString
	var createdAt, updatedAt int64

	err := c.db.QueryRow(query, id).Scan(
		&doc.ID,
		&doc.Title,
		&doc.Content,
		&doc.Category,
		&doc.Source,
		&doc.Language,
		&doc.OrgID,
		&metadataJSON,
		&createdAt,
		&updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	if metadataJSON.Valid && metadataJSON.String != "" {
		json.Unmarshal([]byte(metadataJSON.String), &doc.Metadata)
	}
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	return &doc, nil
}

func (c *Client) DeleteDocument(id string) error {
	_, err := c.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

// ReplaceChunks deletes every chunk of the document and inserts the fresh
// split in one transaction, so a failed re-index never leaves a document
// half old, half new.
func (c *Client) ReplaceChunks(documentID string, chunks []models.Chunk) error {
	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`DELETE FROM chunks WHERE document_id = ?`, documentID)
	if err != nil {
		return fmt.Errorf("failed to delete prior chunks: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO chunks (id, document_id, chunk_index, text, vector, model_id, org_id, doc_updated_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, chunk := range chunks {
		vectorJSON, err := json.Marshal(chunk.Vector)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk vector: %w", err)
		}

		_, err = stmt.Exec(
			chunk.ID,
			chunk.DocumentID,
			chunk.ChunkIndex,
			chunk.Text,
			string(vectorJSON),
			chunk.ModelID,
			chunk.OrgID,
			chunk.DocUpdatedAt.Unix(),
			chunk.CreatedAt.Unix(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunk replacement: %w", err)
	}

	return nil
}

func (c *Client) GetChunksByDocument(documentID string) ([]models.Chunk, error) {
	query := `SELECT id, document_id, chunk_index, text, vector, model_id, org_id, doc_updated_at, created_at
		FROM chunks WHERE document_id = ? ORDER BY chunk_index`

	rows, err := c.db.Query(query, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

// AllChunks loads the full index, used to warm the in-process vector store
// on startup.
func (c *Client) AllChunks() ([]models.Chunk, error) {
	query := `SELECT id, document_id, chunk_index, text, vector, model_id, org_id, doc_updated_at, created_at
		FROM chunks ORDER BY document_id, chunk_index`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}
	defer rows.Close()

	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var vectorJSON string
		var docUpdatedAt, createdAt int64

		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.ChunkIndex,
			&chunk.Text,
			&vectorJSON,
			&chunk.ModelID,
			&chunk.OrgID,
			&docUpdatedAt,
			&createdAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan chunk row: %w", err)
		}

		if err := json.Unmarshal([]byte(vectorJSON), &chunk.Vector); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chunk vector: %w", err)
		}
		chunk.DocUpdatedAt = time.Unix(docUpdatedAt, 0)
		chunk.CreatedAt = time.Unix(createdAt, 0)
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}
