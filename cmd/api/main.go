package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/mindease/backend/internal/api/handlers"
	"github.com/mindease/backend/internal/cache/redis"
	"github.com/mindease/backend/internal/chat"
	"github.com/mindease/backend/internal/crisis"
	"github.com/mindease/backend/internal/embedding"
	"github.com/mindease/backend/internal/feedback"
	"github.com/mindease/backend/internal/ingestion"
	"github.com/mindease/backend/internal/llm"
	"github.com/mindease/backend/internal/metrics"
	"github.com/mindease/backend/internal/middleware/ratelimit"
	"github.com/mindease/backend/internal/middleware/security"
	"github.com/mindease/backend/internal/middleware/validation"
	"github.com/mindease/backend/internal/orchestrator"
	"github.com/mindease/backend/internal/retrieval"
	"github.com/mindease/backend/internal/storage/sqlite"
	"github.com/mindease/backend/internal/vector"
	"github.com/mindease/backend/internal/vector/milvus"
	"github.com/mindease/backend/pkg/config"
	appLogger "github.com/mindease/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting MindEase API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	err = sqliteClient.InitSchema()
	if err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	llmClient := llm.NewClient(cfg.LLM)

	var embeddingCache embedding.Cache
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
		embeddingCache = redisClient
	} else {
		embeddingCache = embedding.NewMemoryCache(4096)
	}

	embedder := embedding.NewService(
		llmClient,
		embeddingCache,
		cfg.LLM.EmbeddingModel,
		cfg.LLM.EmbeddingDim,
		time.Duration(cfg.Redis.TTLHours)*time.Hour,
	)

	var vectorStore vector.Store
	if cfg.Milvus.Enabled {
		milvusClient, err := milvus.NewClient(cfg.Milvus.Endpoint, cfg.Milvus.CollectionName, cfg.LLM.EmbeddingDim)
		if err != nil {
			appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
		}
		defer milvusClient.Close()

		err = milvusClient.EnsureCollection(context.Background())
		if err != nil {
			appLogger.Fatal("Failed to ensure collection", zap.Error(err))
		}
		vectorStore = milvusClient
	} else {
		memStore := vector.NewMemoryStore(cfg.LLM.EmbeddingDim)
		chunks, err := sqliteClient.AllChunks()
		if err != nil {
			appLogger.Fatal("Failed to load chunks", zap.Error(err))
		}
		if err := memStore.Warm(chunks); err != nil {
			appLogger.Fatal("Failed to warm vector store", zap.Error(err))
		}
		vectorStore = memStore
	}

	chunker := ingestion.NewChunker(cfg.Chunking.Window, cfg.Chunking.Overlap)
	indexer := ingestion.NewIndexer(sqliteClient, vectorStore, embedder, chunker)

	engine := retrieval.NewEngine(embedder, vectorStore, sqliteClient)
	detector := crisis.NewDetector(cfg.Crisis.HighSignals, cfg.Crisis.LowSignals)
	chats := chat.NewManager(sqliteClient, cfg.Chat.HistoryWindow)
	orch := orchestrator.New(chats, detector, engine, llmClient, cfg.Retrieval.TopK)

	classifier := feedback.NewIntentClassifier()
	feedbackService := feedback.NewService(sqliteClient, classifier, cfg.Feedback, cfg.LLM.Model)

	jobCtx, stopJobs := context.WithCancel(context.Background())
	defer stopJobs()
	feedbackService.StartCurationJob(jobCtx)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 30,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	chatHandler := handlers.NewChatHandler(orch, chats)
	wsHandler := handlers.NewWebSocketHandler(orch)
	documentHandler := handlers.NewDocumentHandler(indexer)
	feedbackHandler := handlers.NewFeedbackHandler(feedbackService)

	api := app.Group("/api/v1")
	api.Use(validation.Middleware(validation.Config{
		Logger: appLogger.GetLogger(),
	}))

	api.Post("/chat", limiter.Middleware(), chatHandler.HandleChat)
	api.Get("/chat/:id/history", chatHandler.GetHistory)
	api.Get("/conversations", chatHandler.ListConversations)

	api.Post("/documents", limiter.Middleware(), documentHandler.IndexDocument)
	api.Delete("/documents/:id", documentHandler.DeleteDocument)

	api.Post("/feedback", limiter.Middleware(), feedbackHandler.SubmitFeedback)
	api.Get("/feedback/analytics", feedbackHandler.GetAnalytics)
	api.Post("/feedback/analytics/recompute", feedbackHandler.RecomputeAnalytics)
	api.Get("/feedback/improvements", feedbackHandler.ListImprovements)

	app.Use("/api/v1/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/api/v1/ws/chat", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	stopJobs()
	app.Shutdown()
	appLogger.Info("Server stopped")
}
