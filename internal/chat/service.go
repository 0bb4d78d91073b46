package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lintsai/ai-customer-service/internal/knowledge"
	"github.com/lintsai/ai-customer-service/internal/llm"
	"github.com/lintsai/ai-customer-service/internal/models"
	"github.com/lintsai/ai-customer-service/internal/prompts"
)

const (
	defaultContextWindow  = 10
	defaultHistoryLimit   = 50
	defaultGenerateBudget = 45 * time.Second

	activeConversationsKeyPrefix = "active_conversations:"
)

// Generator is the model-client contract the service depends on.
type Generator interface {
	Generate(ctx context.Context, messages []llm.Message, systemPrompt string) (string, error)
}

// Cache is the subset of cache operations the service uses for listing
// results. A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Service drives the conversation lifecycle and response generation. It
// holds no durable state of its own; every call re-reads what it needs
// from the store.
type Service struct {
	store          ConversationStore
	generator      Generator
	retriever      knowledge.Retriever
	templates      *prompts.Catalog
	cache          Cache
	contextWindow  int
	historyLimit   int
	generateBudget time.Duration
	logger         *zap.SugaredLogger
}

// ServiceOptions tune the service defaults.
type ServiceOptions struct {
	ContextWindow  int
	HistoryLimit   int
	GenerateBudget time.Duration
	Cache          Cache
}

// NewService wires the conversation service with its collaborators. The
// retriever may be nil when no knowledge base is configured.
func NewService(store ConversationStore, generator Generator, retriever knowledge.Retriever, templates *prompts.Catalog, logger *zap.SugaredLogger, opts ServiceOptions) (*Service, error) {
	if store == nil {
		return nil, errors.New("chat: conversation store must not be nil")
	}
	if generator == nil {
		return nil, errors.New("chat: model client must not be nil")
	}
	if templates == nil {
		return nil, errors.New("chat: prompt catalog must not be nil")
	}

	contextWindow := opts.ContextWindow
	if contextWindow <= 0 {
		contextWindow = defaultContextWindow
	}
	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	budget := opts.GenerateBudget
	if budget <= 0 {
		budget = defaultGenerateBudget
	}

	return &Service{
		store:          store,
		generator:      generator,
		retriever:      retriever,
		templates:      templates,
		cache:          opts.Cache,
		contextWindow:  contextWindow,
		historyLimit:   historyLimit,
		generateBudget: budget,
		logger:         logger,
	}, nil
}

// CreateConversation starts a new active conversation for userID.
func (s *Service) CreateConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, errors.New("chat: user id is required")
	}

	now := time.Now().UTC()
	conversation := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
		Status:    models.StatusActive,
		Metadata:  models.ConversationMetadata{},
	}

	if err := s.store.Insert(ctx, conversation); err != nil {
		return nil, err
	}

	s.invalidateActiveList(ctx, userID)

	return conversation, nil
}

// AddMessage appends one message to the conversation. The append and the
// metadata update happen atomically in the store.
func (s *Service) AddMessage(ctx context.Context, conversationID string, role models.Role, content string) (*models.Message, error) {
	if _, err := models.ParseRole(string(role)); err != nil {
		return nil, err
	}

	message := models.Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}

	updated, err := s.store.AppendMessage(ctx, conversationID, message)
	if err != nil {
		return nil, err
	}

	s.invalidateActiveList(ctx, updated.UserID)

	return &message, nil
}

// GetConversationHistory returns the most recent limit messages in
// chronological order. A non-positive limit uses the configured default.
func (s *Service) GetConversationHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	conversation, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = s.historyLimit
	}

	messages := conversation.Messages
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}

	return messages, nil
}

// GenerateResponse runs the response pipeline: persist the user turn,
// assemble recent history and a system prompt (knowledge-augmented when
// retrieval succeeds), call the model, persist and return the assistant
// turn. A model failure never surfaces to the caller; it is converted into
// a persisted handoff message returned as a normal turn.
func (s *Service) GenerateResponse(ctx context.Context, conversationID, userMessage string, useKnowledgeBase bool) (string, error) {
	if _, err := s.AddMessage(ctx, conversationID, models.RoleUser, userMessage); err != nil {
		return "", err
	}

	reply, err := s.generateReply(ctx, conversationID, userMessage, useKnowledgeBase)
	if err != nil {
		s.logger.Warnw("response generation failed, handing off",
			"conversation_id", conversationID,
			"error", err,
		)
		reply = s.templates.ErrorResponse(err.Error())
	}

	if _, err := s.AddMessage(ctx, conversationID, models.RoleAssistant, reply); err != nil {
		return "", err
	}

	return reply, nil
}

func (s *Service) generateReply(ctx context.Context, conversationID, userMessage string, useKnowledgeBase bool) (string, error) {
	history, err := s.GetConversationHistory(ctx, conversationID, s.contextWindow)
	if err != nil {
		return "", err
	}

	systemPrompt := s.templates.CustomerService()
	if useKnowledgeBase && s.retriever != nil {
		if passages, searchErr := s.retriever.Search(ctx, userMessage, 0); searchErr != nil {
			s.logger.Warnw("knowledge base search failed, using default persona",
				"conversation_id", conversationID,
				"error", searchErr,
			)
		} else if len(passages) > 0 {
			systemPrompt = s.templates.KnowledgeBase(strings.Join(passages, "\n"))
		}
	}

	messages, err := toModelMessages(history)
	if err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.generateBudget)
	defer cancel()

	return s.generator.Generate(callCtx, messages, systemPrompt)
}

// toModelMessages converts stored history to the model-client shape. An
// unknown role is an error rather than a silent drop.
func toModelMessages(history []models.Message) ([]llm.Message, error) {
	messages := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		switch msg.Role {
		case models.RoleSystem, models.RoleUser, models.RoleAssistant:
			messages = append(messages, llm.Message{Role: string(msg.Role), Content: msg.Content})
		default:
			return nil, fmt.Errorf("chat: history contains unknown role %q", msg.Role)
		}
	}
	return messages, nil
}

// EndConversation archives the conversation. Re-archiving an already
// archived conversation re-stamps its timestamps.
func (s *Service) EndConversation(ctx context.Context, conversationID string) error {
	conversation, err := s.store.Get(ctx, conversationID)
	if err != nil {
		return err
	}

	if err := s.store.Archive(ctx, conversationID, time.Now().UTC()); err != nil {
		return err
	}

	s.invalidateActiveList(ctx, conversation.UserID)

	return nil
}

// GetActiveConversations lists a user's active conversations, serving from
// the cache when a fresh entry exists.
func (s *Service) GetActiveConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	key := activeConversationsKeyPrefix + userID

	if s.cache != nil {
		var cached []models.ConversationSummary
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	summaries, err := s.store.ListActive(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, summaries, 0); err != nil {
			s.logger.Warnw("caching active conversations failed", "user_id", userID, "error", err)
		}
	}

	return summaries, nil
}

func (s *Service) invalidateActiveList(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, activeConversationsKeyPrefix+userID); err != nil {
		s.logger.Warnw("cache invalidation failed", "user_id", userID, "error", err)
	}
}
