package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lintsai/ai-customer-service/internal/utils"
)

const defaultTopK = 3

// Retriever returns ranked text passages relevant to a free-text query.
// Implementations are external capabilities; callers decide what to do
// when retrieval fails.
type Retriever interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
	AddDocuments(ctx context.Context, documents []string, ids []string) error
}

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// ChromaRetriever talks to a Chroma vector store over its REST API.
type ChromaRetriever struct {
	baseURL    string
	collection string
	topK       int
	client     httpDoer
	logger     *zap.SugaredLogger
}

// NewChromaRetriever constructs a retriever from cfg.
func NewChromaRetriever(cfg utils.KnowledgeConfig, logger *zap.SugaredLogger) *ChromaRetriever {
	base := strings.TrimRight(strings.TrimSpace(cfg.ChromaURL), "/")
	if base == "" {
		base = "http://localhost:8001"
	}

	collection := strings.TrimSpace(cfg.Collection)
	if collection == "" {
		collection = "customer_service_kb"
	}

	topK := cfg.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	return &ChromaRetriever{
		baseURL:    base,
		collection: collection,
		topK:       topK,
		client:     &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

type queryRequest struct {
	QueryTexts []string `json:"query_texts"`
	NResults   int      `json:"n_results"`
}

type queryResponse struct {
	Documents [][]string `json:"documents"`
}

type addRequest struct {
	Documents []string `json:"documents"`
	IDs       []string `json:"ids,omitempty"`
}

// Search queries the collection and returns up to k passages ranked by
// similarity. k <= 0 falls back to the configured default.
func (r *ChromaRetriever) Search(ctx context.Context, query string, k int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	if k <= 0 {
		k = r.topK
	}

	body, err := r.post(ctx, fmt.Sprintf("/api/v1/collections/%s/query", r.collection), queryRequest{
		QueryTexts: []string{query},
		NResults:   k,
	})
	if err != nil {
		return nil, err
	}

	var result queryResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("knowledge: decode query response: %w", err)
	}

	if len(result.Documents) == 0 {
		return nil, nil
	}

	passages := make([]string, 0, len(result.Documents[0]))
	for _, doc := range result.Documents[0] {
		doc = strings.TrimSpace(doc)
		if doc == "" {
			continue
		}
		passages = append(passages, doc)
	}

	return passages, nil
}

// AddDocuments stores documents in the collection. When ids is empty the
// store assigns its own.
func (r *ChromaRetriever) AddDocuments(ctx context.Context, documents []string, ids []string) error {
	cleaned := make([]string, 0, len(documents))
	for _, doc := range documents {
		doc = strings.TrimSpace(doc)
		if doc == "" {
			continue
		}
		cleaned = append(cleaned, doc)
	}
	if len(cleaned) == 0 {
		return fmt.Errorf("knowledge: no documents to add")
	}
	if len(ids) > 0 && len(ids) != len(cleaned) {
		return fmt.Errorf("knowledge: ids and documents length mismatch")
	}

	_, err := r.post(ctx, fmt.Sprintf("/api/v1/collections/%s/add", r.collection), addRequest{
		Documents: cleaned,
		IDs:       ids,
	})
	return err
}

func (r *ChromaRetriever) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("knowledge: marshal request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("knowledge: create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := r.client.Do(request)
	if err != nil {
		return nil, fmt.Errorf("knowledge: call vector store: %w", err)
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("knowledge: read response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(respBody))
		if len(snippet) > 256 {
			snippet = snippet[:256]
		}
		return nil, fmt.Errorf("knowledge: vector store error (%d): %s", response.StatusCode, snippet)
	}

	return respBody, nil
}
