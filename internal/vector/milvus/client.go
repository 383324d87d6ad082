// Package milvus backs the vector store with a Milvus collection for
// deployments whose corpus outgrows the in-process store.
package milvus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/mindease/backend/internal/storage/models"
	"github.com/mindease/backend/internal/tenant"
	"github.com/mindease/backend/internal/vector"
	"github.com/mindease/backend/pkg/logger"
)

type Client struct {
	client         client.Client
	collectionName string
	vectorDim      int
}

func NewClient(endpoint, collectionName string, vectorDim int) (*Client, error) {
	c, err := client.NewGrpcClient(context.Background(), endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.String("collection", collectionName),
	)

	return &Client{
		client:         c,
		collectionName: collectionName,
		vectorDim:      vectorDim,
	}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

func (m *Client) EnsureCollection(ctx context.Context) error {
	has, err := m.client.HasCollection(ctx, m.collectionName)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if has {
		logger.Info("Collection already exists", zap.String("collection", m.collectionName))
		return nil
	}

	schema := &entity.Schema{
		CollectionName: m.collectionName,
		Description:    "Support document chunk embeddings",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": fmt.Sprintf("%d", m.vectorDim),
				},
			},
			{
				Name:     "document_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "chunk_index",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:     "text",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "4096",
				},
			},
			{
				Name:     "org_id",
				DataType: entity.FieldTypeVarChar,
				TypeParams: map[string]string{
					"max_length": "64",
				},
			},
			{
				Name:     "doc_updated_at",
				DataType: entity.FieldTypeInt64,
			},
		},
	}

	err = m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber)
	if err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.COSINE, 1024)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	err = m.client.CreateIndex(ctx, m.collectionName, "embedding", idx, false)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	err = m.client.LoadCollection(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", m.collectionName))

	return nil
}

func (m *Client) Upsert(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	chunkIDs := make([]string, len(chunks))
	embeddings := make([][]float32, len(chunks))
	docIDs := make([]string, len(chunks))
	chunkIndexes := make([]int64, len(chunks))
	texts := make([]string, len(chunks))
	orgIDs := make([]string, len(chunks))
	docUpdatedAts := make([]int64, len(chunks))

	for i, ch := range chunks {
		if len(ch.Vector) != m.vectorDim {
			return vector.ErrDimensionMismatch
		}
		chunkIDs[i] = ch.ID
		embeddings[i] = ch.Vector
		docIDs[i] = ch.DocumentID
		chunkIndexes[i] = int64(ch.ChunkIndex)
		texts[i] = ch.Text
		orgIDs[i] = ch.OrgID
		docUpdatedAts[i] = ch.DocUpdatedAt.Unix()
	}

	_, err := m.client.Upsert(
		ctx,
		m.collectionName,
		"",
		entity.NewColumnVarChar("chunk_id", chunkIDs),
		entity.NewColumnFloatVector("embedding", m.vectorDim, embeddings),
		entity.NewColumnVarChar("document_id", docIDs),
		entity.NewColumnInt64("chunk_index", chunkIndexes),
		entity.NewColumnVarChar("text", texts),
		entity.NewColumnVarChar("org_id", orgIDs),
		entity.NewColumnInt64("doc_updated_at", docUpdatedAts),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert chunks: %w", err)
	}

	err = m.client.Flush(ctx, m.collectionName, false)
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}

	logger.Info("Chunks upserted into vector DB", zap.Int("count", len(chunks)))

	return nil
}

func (m *Client) DeleteDocument(ctx context.Context, documentID string) error {
	expr := fmt.Sprintf(`document_id == "%s"`, escapeExpr(documentID))
	err := m.client.Delete(ctx, m.collectionName, "", expr)
	if err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}

func (m *Client) Search(ctx context.Context, queryVector []float32, scope tenant.Scope, topK int) ([]vector.Match, error) {
	if len(queryVector) != m.vectorDim {
		return nil, vector.ErrDimensionMismatch
	}

	// Global scope sees only global chunks; org scope sees global plus
	// its own. The expr runs server-side, before ranking.
	expr := `org_id == ""`
	if orgID, ok := scope.OrgID(); ok {
		expr = fmt.Sprintf(`org_id == "" || org_id == "%s"`, escapeExpr(orgID))
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(16)

	searchResult, err := m.client.Search(
		ctx,
		m.collectionName,
		[]string{},
		expr,
		[]string{"chunk_id", "document_id", "chunk_index", "text", "org_id", "doc_updated_at"},
		[]entity.Vector{entity.FloatVector(queryVector)},
		"embedding",
		entity.COSINE,
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	results := make([]vector.Match, 0)
	for _, sr := range searchResult {
		chunkIDCol := sr.Fields.GetColumn("chunk_id")
		docIDCol := sr.Fields.GetColumn("document_id")
		chunkIndexCol := sr.Fields.GetColumn("chunk_index")
		textCol := sr.Fields.GetColumn("text")
		orgIDCol := sr.Fields.GetColumn("org_id")
		updatedCol := sr.Fields.GetColumn("doc_updated_at")

		for i := 0; i < sr.ResultCount; i++ {
			chunkID, _ := chunkIDCol.Get(i)
			docID, _ := docIDCol.Get(i)
			chunkIndex, _ := chunkIndexCol.Get(i)
			text, _ := textCol.Get(i)
			orgID, _ := orgIDCol.Get(i)
			updated, _ := updatedCol.Get(i)

			results = append(results, vector.Match{
				ChunkID:      chunkID.(string),
				DocumentID:   docID.(string),
				ChunkIndex:   int(chunkIndex.(int64)),
				Text:         text.(string),
				OrgID:        orgID.(string),
				DocUpdatedAt: time.Unix(updated.(int64), 0),
				Similarity:   float64(sr.Scores[i]),
			})
		}
	}

	logger.Debug("Vector search completed",
		zap.Int("topK", topK),
		zap.Int("results", len(results)),
		zap.String("scope", scope.String()),
	)

	return results, nil
}

func escapeExpr(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}
