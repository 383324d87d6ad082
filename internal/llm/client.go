package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/mindease/backend/internal/metrics"
	"github.com/mindease/backend/pkg/circuitbreaker"
	"github.com/mindease/backend/pkg/config"
	"github.com/mindease/backend/pkg/logger"
	"github.com/mindease/backend/pkg/retry"
)

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	Messages     []ChatMessage
	Temperature  float32
	MaxTokens    int
}

// ChatMessage is a role-tagged turn forwarded to the model. Role is
// one of "user" or "assistant".
type ChatMessage struct {
	Role    string
	Content string
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// NewClient builds a chat and embedding client for any OpenAI-compatible
// endpoint. The provider is selected purely by BaseURL, so Mistral and
// local inference servers work without separate code paths.
func NewClient(cfg config.LLMConfig) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientCfg)

	cb := circuitbreaker.New("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	logger.Info("LLM client initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &Client{
		client:         client,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		maxTokens:      cfg.MaxTokens,
		timeout:        timeout,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: req.SystemPrompt,
	})
	for _, m := range req.Messages {
		role := openai.ChatMessageRoleUser
		if m.Role == "assistant" {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)

			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}

			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

func (c *Client) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.GenerateBatchEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (c *Client) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	embeddings := make([][]float32, 0, len(texts))

	batchSize := 100
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]

		err := c.cb.Execute(ctx, func() error {
			return retry.Do(ctx, c.retryConfig, func() error {
				resp, err := c.client.CreateEmbeddings(
					ctx,
					openai.EmbeddingRequest{
						Input: batch,
						Model: openai.EmbeddingModel(c.embeddingModel),
					},
				)

				if err != nil {
					return fmt.Errorf("failed to generate embeddings: %w", err)
				}

				if len(resp.Data) != len(batch) {
					return fmt.Errorf("expected %d embeddings, got %d", len(batch), len(resp.Data))
				}

				for _, data := range resp.Data {
					embedding := make([]float32, len(data.Embedding))
					copy(embedding, data.Embedding)
					embeddings = append(embeddings, embedding)
				}

				return nil
			})
		})

		if err != nil {
			return nil, err
		}
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}

// GenerateChatResponse produces a grounded supportive reply. history is
// the recent conversation window in chronological order; docContext is
// the concatenated retrieved passages.
func (c *Client) GenerateChatResponse(ctx context.Context, userMessage, docContext string, history []ChatMessage, language string) (string, error) {
	systemPrompt := systemPromptEN
	if language == "fr" {
		systemPrompt = systemPromptFR
	}

	var sb strings.Builder
	if docContext != "" {
		sb.WriteString("Reference material:\n")
		sb.WriteString(docContext)
		sb.WriteString("\n\n")
	}
	sb.WriteString(userMessage)

	messages := make([]ChatMessage, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, ChatMessage{Role: "user", Content: sb.String()})

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages:     messages,
		Temperature:  0.7,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate chat response: %w", err)
	}

	logger.Info("Chat response generated",
		zap.Int("response_length", len(resp.Content)),
		zap.String("language", language),
	)

	return resp.Content, nil
}

const systemPromptEN = `You are a supportive mental wellness companion grounded in CBT (cognitive behavioral therapy) techniques.

Your responses must:
1. Be warm, empathetic, and non-judgmental
2. Draw ONLY on the reference material provided; never invent clinical advice
3. Suggest practical, evidence-based coping techniques when appropriate
4. Encourage professional help for persistent or severe concerns
5. Never diagnose conditions or recommend medication

Keep responses concise and conversational. You are a companion, not a replacement for a therapist.`

const systemPromptFR = `Tu es un compagnon de bien-être mental bienveillant, fondé sur les techniques de TCC (thérapie cognitivo-comportementale).

Tes réponses doivent :
1. Être chaleureuses, empathiques et sans jugement
2. S'appuyer UNIQUEMENT sur les documents de référence fournis ; ne jamais inventer de conseils cliniques
3. Proposer des techniques d'adaptation pratiques et éprouvées lorsque c'est pertinent
4. Encourager l'aide professionnelle pour les difficultés persistantes ou graves
5. Ne jamais poser de diagnostic ni recommander de médicaments

Reste concis et conversationnel. Tu es un compagnon, pas un remplaçant de thérapeute.`
