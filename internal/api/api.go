package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lintsai/ai-customer-service/internal/auth"
	"github.com/lintsai/ai-customer-service/internal/chat"
	"github.com/lintsai/ai-customer-service/internal/knowledge"
	"github.com/lintsai/ai-customer-service/internal/llm"
	"github.com/lintsai/ai-customer-service/internal/models"
	"github.com/lintsai/ai-customer-service/internal/prompts"
)

// ConversationService is the conversation-pipeline contract the HTTP layer
// depends on.
type ConversationService interface {
	CreateConversation(ctx context.Context, userID string) (*models.Conversation, error)
	GenerateResponse(ctx context.Context, conversationID, userMessage string, useKnowledgeBase bool) (string, error)
	GetConversationHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	GetActiveConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error)
	EndConversation(ctx context.Context, conversationID string) error
}

// ModelClient exposes the direct model operations served under /llm.
type ModelClient interface {
	Generate(ctx context.Context, messages []llm.Message, systemPrompt string) (string, error)
	AnalyzeSentiment(ctx context.Context, text string) (*llm.SentimentResult, error)
	DetectIntent(ctx context.Context, text string) (*llm.IntentResult, error)
}

// Handler wires the HTTP surface to the services behind it.
type Handler struct {
	chatService ConversationService
	model       ModelClient
	retriever   knowledge.Retriever
	templates   *prompts.Catalog
	authService *auth.Service
	logger      *zap.SugaredLogger
}

func NewHandler(chatService ConversationService, model ModelClient, retriever knowledge.Retriever, templates *prompts.Catalog, authService *auth.Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		chatService: chatService,
		model:       model,
		retriever:   retriever,
		templates:   templates,
		authService: authService,
		logger:      logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	apiGroup := router.Group("/api/v1")

	chatGroup := apiGroup.Group("/chat")
	chatGroup.POST("/conversations", h.handleCreateConversation)
	chatGroup.POST("/conversations/:id/messages", h.handleSendMessage)
	chatGroup.GET("/conversations/:id", h.handleGetConversation)
	chatGroup.GET("/conversations", h.handleListConversations)
	chatGroup.DELETE("/conversations/:id", h.handleEndConversation)
	chatGroup.GET("/ws", h.handleChatWebsocket)

	llmGroup := apiGroup.Group("/llm")
	llmGroup.POST("/generate", h.handleGenerate)
	llmGroup.POST("/analyze/sentiment", h.handleSentiment)
	llmGroup.POST("/analyze/intent", h.handleIntent)

	knowledgeGroup := apiGroup.Group("/knowledge")
	knowledgeGroup.POST("/special-knowledge", h.handleSpecialKnowledge)
	knowledgeGroup.POST("/documents", h.handleAddDocuments)

	if h.authService != nil {
		authGroup := apiGroup.Group("/auth")
		authGroup.POST("/register", h.handleRegister)
		authGroup.POST("/login", h.handleLogin)
	}
}

type createConversationRequest struct {
	UserID         string `json:"user_id" binding:"required"`
	InitialMessage string `json:"initial_message"`
}

func (h *Handler) handleCreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	conversation, err := h.chatService.CreateConversation(c.Request.Context(), req.UserID)
	if err != nil {
		writeError(c, statusFromError(err), "failed to create conversation", err)
		return
	}

	response := gin.H{"conversation_id": conversation.ID}

	if strings.TrimSpace(req.InitialMessage) != "" {
		reply, err := h.chatService.GenerateResponse(c.Request.Context(), conversation.ID, req.InitialMessage, true)
		if err != nil {
			writeError(c, statusFromError(err), "failed to generate initial response", err)
			return
		}
		response["initial_response"] = reply
	}

	c.JSON(http.StatusOK, response)
}

type sendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	reply, err := h.chatService.GenerateResponse(c.Request.Context(), c.Param("id"), req.Content, true)
	if err != nil {
		writeError(c, statusFromError(err), "failed to send message", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": reply})
}

func (h *Handler) handleGetConversation(c *gin.Context) {
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(c, http.StatusBadRequest, "limit must be a positive integer", errInvalidLimit)
			return
		}
		limit = parsed
	}

	conversationID := c.Param("id")
	messages, err := h.chatService.GetConversationHistory(c.Request.Context(), conversationID, limit)
	if err != nil {
		writeError(c, statusFromError(err), "failed to fetch conversation history", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"messages":        messages,
	})
}

func (h *Handler) handleListConversations(c *gin.Context) {
	userID := strings.TrimSpace(c.Query("user_id"))
	if userID == "" {
		writeError(c, http.StatusBadRequest, "user_id is required", errMissingUserID)
		return
	}

	conversations, err := h.chatService.GetActiveConversations(c.Request.Context(), userID)
	if err != nil {
		writeError(c, statusFromError(err), "failed to list conversations", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": conversations})
}

func (h *Handler) handleEndConversation(c *gin.Context) {
	if err := h.chatService.EndConversation(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, statusFromError(err), "failed to end conversation", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Conversation archived successfully"})
}

type generateRequest struct {
	Messages     []llm.Message `json:"messages" binding:"required"`
	SystemPrompt string        `json:"system_prompt"`
}

func (h *Handler) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if len(req.Messages) == 0 {
		writeError(c, http.StatusBadRequest, "at least one message is required", errNoMessages)
		return
	}

	reply, err := h.model.Generate(c.Request.Context(), req.Messages, req.SystemPrompt)
	if err != nil {
		writeError(c, statusFromError(err), "generation failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": reply})
}

type textAnalysisRequest struct {
	Text string `json:"text" binding:"required"`
}

func (h *Handler) handleSentiment(c *gin.Context) {
	var req textAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	result, err := h.model.AnalyzeSentiment(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, statusFromError(err), "sentiment analysis failed", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) handleIntent(c *gin.Context) {
	var req textAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	result, err := h.model.DetectIntent(c.Request.Context(), req.Text)
	if err != nil {
		writeError(c, statusFromError(err), "intent detection failed", err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type specialKnowledgeRequest struct {
	Messages []llm.Message `json:"messages" binding:"required"`
}

func (h *Handler) handleSpecialKnowledge(c *gin.Context) {
	var req specialKnowledgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if len(req.Messages) == 0 {
		writeError(c, http.StatusBadRequest, "at least one message is required", errNoMessages)
		return
	}

	reply, err := h.model.Generate(c.Request.Context(), req.Messages, h.templates.SpecialKnowledge())
	if err != nil {
		writeError(c, statusFromError(err), "special knowledge query failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": reply})
}

type addDocumentsRequest struct {
	Documents []string `json:"documents" binding:"required"`
	IDs       []string `json:"ids"`
}

func (h *Handler) handleAddDocuments(c *gin.Context) {
	var req addDocumentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if h.retriever == nil {
		writeError(c, http.StatusServiceUnavailable, "knowledge base is not configured", errNoRetriever)
		return
	}

	if err := h.retriever.AddDocuments(c.Request.Context(), req.Documents, req.IDs); err != nil {
		writeError(c, http.StatusBadGateway, "failed to add documents", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "documents added"})
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	result, err := h.authService.Register(c.Request.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameRequired), errors.Is(err, auth.ErrPasswordTooWeak):
			writeError(c, http.StatusBadRequest, err.Error(), err)
		case errors.Is(err, auth.ErrUserExists), errors.Is(err, auth.ErrEmailExists):
			writeError(c, http.StatusConflict, err.Error(), err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to register user", err)
		}
		return
	}

	c.JSON(http.StatusCreated, newAuthResponse(result))
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (h *Handler) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), auth.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(c, http.StatusUnauthorized, err.Error(), err)
			return
		}
		writeError(c, http.StatusInternalServerError, "failed to login", err)
		return
	}

	c.JSON(http.StatusOK, newAuthResponse(result))
}

var (
	errInvalidLimit  = errors.New("invalid limit parameter")
	errMissingUserID = errors.New("user_id query parameter is required")
	errNoMessages    = errors.New("messages must not be empty")
	errNoRetriever   = errors.New("no retriever configured")
)

func newAuthResponse(result *auth.AuthResult) gin.H {
	return gin.H{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt.Format(time.RFC3339),
		"user": gin.H{
			"id":        result.User.ID,
			"username":  result.User.Username,
			"email":     result.User.Email,
			"createdAt": result.User.CreatedAt.Format(time.RFC3339),
			"updatedAt": result.User.UpdatedAt.Format(time.RFC3339),
		},
	}
}

// statusFromError maps service errors to HTTP status codes: absent
// conversations are 404, upstream model failures are 502, everything else
// is a generic 500.
func statusFromError(err error) int {
	var modelErr *llm.ModelError
	var parseErr *llm.ParseError

	switch {
	case errors.Is(err, chat.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.As(err, &modelErr), errors.As(err, &parseErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, status int, message string, err error) {
	c.JSON(status, gin.H{
		"error":  message,
		"detail": err.Error(),
	})
}
