package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lintsai/ai-customer-service/internal/utils"
)

const defaultHTTPTimeout = 30 * time.Second

// Message mirrors OpenAI-compatible chat message payloads.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client is a stateless adapter to an OpenAI-compatible chat completions
// API. It carries no conversation state; callers pass the full ordered
// message list on every call.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      httpDoer
	logger      *zap.SugaredLogger
}

// NewClient constructs a Client initialized from cfg.
func NewClient(cfg utils.OpenAIConfig, logger *zap.SugaredLogger) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-3.5-turbo"
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &Client{
		baseURL:     base,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Generate forwards the ordered message list to the chat completions API
// and returns the generated text. When systemPrompt is non-empty it is
// prepended as a system message for this call only.
func (c *Client) Generate(ctx context.Context, messages []Message, systemPrompt string) (string, error) {
	cleaned := make([]Message, 0, len(messages)+1)
	if strings.TrimSpace(systemPrompt) != "" {
		cleaned = append(cleaned, Message{Role: "system", Content: systemPrompt})
	}
	for _, msg := range messages {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		cleaned = append(cleaned, msg)
	}

	if len(cleaned) == 0 {
		return "", newModelError(KindMalformedOutput, "generate", errors.New("no messages to send"))
	}

	reply, err := c.complete(ctx, "generate", cleaned)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(reply), nil
}

func (c *Client) complete(ctx context.Context, op string, messages []Message) (string, error) {
	payload := chatAPIRequest{
		Model:    c.model,
		Messages: messages,
	}
	if c.temperature > 0 {
		payload.Temperature = c.temperature
	}
	if c.maxTokens > 0 {
		payload.MaxTokens = c.maxTokens
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", newModelError(KindMalformedOutput, op, fmt.Errorf("marshal chat payload: %w", err))
	}

	endpoint := c.baseURL + "/chat/completions"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", newModelError(KindTransport, op, fmt.Errorf("create chat request: %w", err))
	}

	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return "", newModelError(KindTransport, op, fmt.Errorf("call chat api: %w", err))
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return "", newModelError(KindTransport, op, fmt.Errorf("read chat response: %w", err))
	}

	if response.StatusCode == http.StatusTooManyRequests {
		return "", newModelError(KindRateLimit, op, buildAPIError(response.StatusCode, respBody))
	}
	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", newModelError(KindTransport, op, buildAPIError(response.StatusCode, respBody))
	}

	var apiResp chatAPIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", newModelError(KindMalformedOutput, op, fmt.Errorf("decode chat response: %w", err))
	}

	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return "", newModelError(KindMalformedOutput, op, fmt.Errorf("chat api error: %s", apiResp.Error.Message))
	}

	if len(apiResp.Choices) == 0 {
		return "", newModelError(KindMalformedOutput, op, errors.New("chat response contained no choices"))
	}

	return apiResp.Choices[0].Message.Content, nil
}

type chatAPIRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
}

type chatAPIChoice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type apiError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type chatAPIResponse struct {
	ID      string          `json:"id"`
	Object  string          `json:"object"`
	Created int64           `json:"created"`
	Choices []chatAPIChoice `json:"choices"`
	Error   *apiError       `json:"error,omitempty"`
}

type apiErrorEnvelope struct {
	Error *apiError `json:"error,omitempty"`
}

func buildAPIError(statusCode int, body []byte) error {
	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		message := strings.TrimSpace(envelope.Error.Message)
		if envelope.Error.Code != "" && message != "" {
			return fmt.Errorf("chat api error (%d, %s): %s", statusCode, envelope.Error.Code, message)
		}
		if message != "" {
			return fmt.Errorf("chat api error (%d): %s", statusCode, message)
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return fmt.Errorf("chat api error (%d): %s", statusCode, snippet)
}
