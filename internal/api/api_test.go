package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lintsai/ai-customer-service/internal/api"
	"github.com/lintsai/ai-customer-service/internal/chat"
	"github.com/lintsai/ai-customer-service/internal/llm"
	"github.com/lintsai/ai-customer-service/internal/models"
	"github.com/lintsai/ai-customer-service/internal/prompts"
)

type fakeConversationService struct {
	conversations map[string][]models.Message
	reply         string
	generateErr   error
}

func newFakeConversationService() *fakeConversationService {
	return &fakeConversationService{
		conversations: make(map[string][]models.Message),
		reply:         "canned reply",
	}
}

func (s *fakeConversationService) CreateConversation(ctx context.Context, userID string) (*models.Conversation, error) {
	id := "conv-" + userID
	s.conversations[id] = []models.Message{}
	now := time.Now().UTC()
	return &models.Conversation{
		ID:        id,
		UserID:    userID,
		Messages:  []models.Message{},
		CreatedAt: now,
		UpdatedAt: now,
		Status:    models.StatusActive,
	}, nil
}

func (s *fakeConversationService) GenerateResponse(ctx context.Context, conversationID, userMessage string, useKnowledgeBase bool) (string, error) {
	messages, ok := s.conversations[conversationID]
	if !ok {
		return "", chat.ErrConversationNotFound
	}
	if s.generateErr != nil {
		return "", s.generateErr
	}
	now := time.Now().UTC()
	messages = append(messages,
		models.Message{ID: "m-user", Role: models.RoleUser, Content: userMessage, Timestamp: now},
		models.Message{ID: "m-assistant", Role: models.RoleAssistant, Content: s.reply, Timestamp: now},
	)
	s.conversations[conversationID] = messages
	return s.reply, nil
}

func (s *fakeConversationService) GetConversationHistory(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	messages, ok := s.conversations[conversationID]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (s *fakeConversationService) GetActiveConversations(ctx context.Context, userID string) ([]models.ConversationSummary, error) {
	summaries := make([]models.ConversationSummary, 0)
	for id, messages := range s.conversations {
		if id == "conv-"+userID {
			summaries = append(summaries, models.ConversationSummary{ID: id, TotalMessages: len(messages)})
		}
	}
	return summaries, nil
}

func (s *fakeConversationService) EndConversation(ctx context.Context, conversationID string) error {
	if _, ok := s.conversations[conversationID]; !ok {
		return chat.ErrConversationNotFound
	}
	delete(s.conversations, conversationID)
	return nil
}

type fakeModelClient struct {
	reply     string
	sentiment *llm.SentimentResult
	intent    *llm.IntentResult
	err       error

	lastSystemPrompt string
}

func (m *fakeModelClient) Generate(ctx context.Context, messages []llm.Message, systemPrompt string) (string, error) {
	m.lastSystemPrompt = systemPrompt
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func (m *fakeModelClient) AnalyzeSentiment(ctx context.Context, text string) (*llm.SentimentResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.sentiment, nil
}

func (m *fakeModelClient) DetectIntent(ctx context.Context, text string) (*llm.IntentResult, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.intent, nil
}

func newTestRouter(t *testing.T, service *fakeConversationService, model *fakeModelClient) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	handler := api.NewHandler(service, model, nil, prompts.NewCatalog(), nil, zap.NewNop().Sugar())

	router := gin.New()
	handler.RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload failed: %v", err)
		}
	}

	request := httptest.NewRequest(method, path, &body)
	request.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var decoded map[string]interface{}
	if err := json.Unmarshal(recorder.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode response failed: %v (body: %s)", err, recorder.Body.String())
	}
	return decoded
}

func TestConversationLifecycle(t *testing.T) {
	service := newFakeConversationService()
	router := newTestRouter(t, service, &fakeModelClient{})

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/chat/conversations", gin.H{
		"user_id":         "u1",
		"initial_message": "hello there",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("create returned %d: %s", recorder.Code, recorder.Body.String())
	}
	created := decodeBody(t, recorder)
	conversationID, _ := created["conversation_id"].(string)
	if conversationID == "" {
		t.Fatalf("expected conversation_id in response, got %v", created)
	}
	if created["initial_response"] != "canned reply" {
		t.Fatalf("expected initial_response, got %v", created)
	}

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/chat/conversations/"+conversationID+"/messages", gin.H{
		"content": "follow-up question",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("send message returned %d: %s", recorder.Code, recorder.Body.String())
	}
	if decodeBody(t, recorder)["response"] != "canned reply" {
		t.Fatalf("unexpected send-message body: %s", recorder.Body.String())
	}

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/chat/conversations/"+conversationID+"?limit=2", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("history returned %d: %s", recorder.Code, recorder.Body.String())
	}
	history := decodeBody(t, recorder)
	messages, _ := history["messages"].([]interface{})
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages with limit=2, got %d", len(messages))
	}

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/chat/conversations?user_id=u1", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("list returned %d: %s", recorder.Code, recorder.Body.String())
	}
	listing := decodeBody(t, recorder)
	conversations, _ := listing["conversations"].([]interface{})
	if len(conversations) != 1 {
		t.Fatalf("expected one active conversation, got %v", listing)
	}

	recorder = doJSON(t, router, http.MethodDelete, "/api/v1/chat/conversations/"+conversationID, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("end returned %d: %s", recorder.Code, recorder.Body.String())
	}
	if decodeBody(t, recorder)["message"] != "Conversation archived successfully" {
		t.Fatalf("unexpected end-conversation body: %s", recorder.Body.String())
	}
}

func TestConversationNotFound(t *testing.T) {
	router := newTestRouter(t, newFakeConversationService(), &fakeModelClient{})

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/chat/conversations/missing/messages", gin.H{"content": "hi"})
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown conversation, got %d", recorder.Code)
	}
	body := decodeBody(t, recorder)
	if body["error"] == nil || body["detail"] == nil {
		t.Fatalf("expected error and detail fields, got %v", body)
	}

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/chat/conversations/missing", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown history, got %d", recorder.Code)
	}

	recorder = doJSON(t, router, http.MethodDelete, "/api/v1/chat/conversations/missing", nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown delete, got %d", recorder.Code)
	}
}

func TestRequestValidation(t *testing.T) {
	router := newTestRouter(t, newFakeConversationService(), &fakeModelClient{})

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/chat/conversations", gin.H{})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing user_id, got %d", recorder.Code)
	}

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/chat/conversations", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing user_id query, got %d", recorder.Code)
	}

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/chat/conversations/x?limit=abc", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric limit, got %d", recorder.Code)
	}

	recorder = doJSON(t, router, http.MethodGet, "/api/v1/chat/conversations/x?limit=-1", nil)
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative limit, got %d", recorder.Code)
	}
}

func TestGenerateEndpoint(t *testing.T) {
	model := &fakeModelClient{reply: "generated text"}
	router := newTestRouter(t, newFakeConversationService(), model)

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/llm/generate", gin.H{
		"messages":      []gin.H{{"role": "user", "content": "hi"}},
		"system_prompt": "be brief",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("generate returned %d: %s", recorder.Code, recorder.Body.String())
	}
	if decodeBody(t, recorder)["response"] != "generated text" {
		t.Fatalf("unexpected body: %s", recorder.Body.String())
	}
	if model.lastSystemPrompt != "be brief" {
		t.Fatalf("system prompt not forwarded, got %q", model.lastSystemPrompt)
	}
}

func TestModelErrorsMapToBadGateway(t *testing.T) {
	model := &fakeModelClient{err: &llm.ModelError{Kind: llm.KindRateLimit, Op: "generate", Err: errors.New("rate limited")}}
	router := newTestRouter(t, newFakeConversationService(), model)

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/llm/generate", gin.H{
		"messages": []gin.H{{"role": "user", "content": "hi"}},
	})
	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for model error, got %d", recorder.Code)
	}

	model.err = &llm.ParseError{Op: "sentiment", Raw: "gibberish"}
	recorder = doJSON(t, router, http.MethodPost, "/api/v1/llm/analyze/sentiment", gin.H{"text": "hello"})
	if recorder.Code != http.StatusBadGateway {
		t.Fatalf("expected 502 for parse error, got %d", recorder.Code)
	}
}

func TestSentimentAndIntentEndpoints(t *testing.T) {
	model := &fakeModelClient{
		sentiment: &llm.SentimentResult{Text: "love it", Score: 0.9, Label: "positive", Explanation: "enthusiastic"},
		intent:    &llm.IntentResult{Intent: "feedback", Confidence: 0.8, Explanation: "shares an opinion"},
	}
	router := newTestRouter(t, newFakeConversationService(), model)

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/llm/analyze/sentiment", gin.H{"text": "love it"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("sentiment returned %d: %s", recorder.Code, recorder.Body.String())
	}
	sentiment := decodeBody(t, recorder)
	if sentiment["sentiment_label"] != "positive" {
		t.Fatalf("unexpected sentiment body: %s", recorder.Body.String())
	}

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/llm/analyze/intent", gin.H{"text": "love it"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("intent returned %d: %s", recorder.Code, recorder.Body.String())
	}
	intent := decodeBody(t, recorder)
	if intent["intent"] != "feedback" {
		t.Fatalf("unexpected intent body: %s", recorder.Body.String())
	}

	recorder = doJSON(t, router, http.MethodPost, "/api/v1/llm/analyze/sentiment", gin.H{})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing text, got %d", recorder.Code)
	}
}

func TestSpecialKnowledgeUsesCatalogPrompt(t *testing.T) {
	model := &fakeModelClient{reply: "the museum opens at 9am"}
	router := newTestRouter(t, newFakeConversationService(), model)

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/knowledge/special-knowledge", gin.H{
		"messages": []gin.H{{"role": "user", "content": "when does the museum open?"}},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("special knowledge returned %d: %s", recorder.Code, recorder.Body.String())
	}
	if model.lastSystemPrompt != prompts.NewCatalog().SpecialKnowledge() {
		t.Fatalf("expected special-knowledge system prompt, got %q", model.lastSystemPrompt)
	}
}

func TestAddDocumentsWithoutRetriever(t *testing.T) {
	router := newTestRouter(t, newFakeConversationService(), &fakeModelClient{})

	recorder := doJSON(t, router, http.MethodPost, "/api/v1/knowledge/documents", gin.H{
		"documents": []string{"doc one"},
	})
	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a configured retriever, got %d", recorder.Code)
	}
}
