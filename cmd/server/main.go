package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lintsai/ai-customer-service/internal/api"
	"github.com/lintsai/ai-customer-service/internal/auth"
	"github.com/lintsai/ai-customer-service/internal/chat"
	"github.com/lintsai/ai-customer-service/internal/db"
	"github.com/lintsai/ai-customer-service/internal/knowledge"
	"github.com/lintsai/ai-customer-service/internal/llm"
	"github.com/lintsai/ai-customer-service/internal/prompts"
	"github.com/lintsai/ai-customer-service/internal/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("config: no .env file loaded: %v", err)
	}

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("config: failed to load: %v", err)
	}

	logger := utils.MustNewLogger(cfg.Logging)
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx := context.Background()

	postgres, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		sugar.Fatalw("postgres: failed to connect", "error", err)
	}
	defer postgres.Close()

	if err := postgres.Ping(ctx); err != nil {
		sugar.Fatalw("postgres: ping failed", "error", err)
	}
	if err := postgres.EnsureSchema(ctx); err != nil {
		sugar.Fatalw("postgres: ensure schema", "error", err)
	}

	mongoStore, err := db.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		sugar.Fatalw("mongo: failed to connect", "error", err)
	}
	defer func() {
		if err := mongoStore.Close(context.Background()); err != nil {
			sugar.Warnw("mongo: close error", "error", err)
		}
	}()

	if err := mongoStore.EnsureCollections(ctx); err != nil {
		sugar.Fatalw("mongo: ensure collections", "error", err)
	}

	cache, err := db.NewCache(ctx, cfg.Redis)
	if err != nil {
		sugar.Fatalw("redis: failed to connect", "error", err)
	}
	defer cache.Close()

	templates := prompts.NewCatalog(prompts.WithSpecialFacts(cfg.Knowledge.SpecialFacts))
	retriever := knowledge.NewChromaRetriever(cfg.Knowledge, sugar)
	modelClient := llm.NewClient(cfg.OpenAI, sugar)

	chatService, err := chat.NewService(
		chat.NewMongoStore(mongoStore.Conversations),
		modelClient,
		retriever,
		templates,
		sugar,
		chat.ServiceOptions{
			ContextWindow:  cfg.Chat.ContextWindow,
			HistoryLimit:   cfg.Chat.HistoryLimit,
			GenerateBudget: cfg.Chat.GenerateBudget,
			Cache:          cache,
		},
	)
	if err != nil {
		sugar.Fatalw("failed to initialise chat service", "error", err)
	}

	authService, err := auth.NewService(cfg.JWTSecret, 24*time.Hour, auth.NewPostgresUserStore(postgres.Pool))
	if err != nil {
		sugar.Fatalw("failed to initialise auth service", "error", err)
	}

	router := setupRouter(chatService, modelClient, retriever, templates, authService, sugar)

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		sugar.Infow("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("server crashed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("graceful shutdown failed", "error", err)
	}

	sugar.Info("server stopped cleanly")
}

func setupRouter(chatService *chat.Service, modelClient *llm.Client, retriever knowledge.Retriever, templates *prompts.Catalog, authService *auth.Service, sugar *zap.SugaredLogger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	api.NewHandler(chatService, modelClient, retriever, templates, authService, sugar).RegisterRoutes(router)

	return router
}
