package llm_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"testing"

	"github.com/lintsai/ai-customer-service/internal/llm"
)

func analysisClient(t *testing.T, content string) *llm.Client {
	t.Helper()
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(completionBody(content))
	})
	return client
}

func TestAnalyzeSentiment(t *testing.T) {
	client := analysisClient(t, `{"score": 0.8, "label": "positive", "explanation": "upbeat wording"}`)

	result, err := client.AnalyzeSentiment(context.Background(), "this is great, thank you!")
	if err != nil {
		t.Fatalf("analyze sentiment failed: %v", err)
	}
	if result.Score != 0.8 {
		t.Fatalf("unexpected score %v", result.Score)
	}
	if result.Label != "positive" {
		t.Fatalf("unexpected label %q", result.Label)
	}
	if result.Explanation != "upbeat wording" {
		t.Fatalf("unexpected explanation %q", result.Explanation)
	}
	if result.Text != "this is great, thank you!" {
		t.Fatalf("unexpected text %q", result.Text)
	}
}

func TestAnalyzeSentimentCodeFenced(t *testing.T) {
	client := analysisClient(t, "```json\n{\"score\": -0.5, \"label\": \"negative\", \"explanation\": \"complaint\"}\n```")

	result, err := client.AnalyzeSentiment(context.Background(), "this broke again")
	if err != nil {
		t.Fatalf("analyze sentiment failed: %v", err)
	}
	if result.Score != -0.5 || result.Label != "negative" {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAnalyzeSentimentClampsScore(t *testing.T) {
	client := analysisClient(t, `{"score": 3.5, "label": "positive", "explanation": "very happy"}`)

	result, err := client.AnalyzeSentiment(context.Background(), "amazing")
	if err != nil {
		t.Fatalf("analyze sentiment failed: %v", err)
	}
	if result.Score != 1 {
		t.Fatalf("expected score clamped to 1, got %v", result.Score)
	}
}

func TestAnalyzeSentimentNumericFallback(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		score float64
		label string
	}{
		{"positive token", "0.7 the text sounds pleased", 0.7, "positive"},
		{"negative token", "-0.3, mildly annoyed", -0.3, "negative"},
		{"zero token", "0 nothing stands out", 0, "neutral"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := analysisClient(t, tc.raw)

			result, err := client.AnalyzeSentiment(context.Background(), "some text")
			if err != nil {
				t.Fatalf("expected fallback to recover, got %v", err)
			}
			if math.Abs(result.Score-tc.score) > 1e-9 {
				t.Fatalf("expected score %v, got %v", tc.score, result.Score)
			}
			if result.Label != tc.label {
				t.Fatalf("expected label %q, got %q", tc.label, result.Label)
			}
			if result.Explanation != llm.ExplanationUnavailable {
				t.Fatalf("expected explanation %q, got %q", llm.ExplanationUnavailable, result.Explanation)
			}
		})
	}
}

func TestAnalyzeSentimentParseError(t *testing.T) {
	client := analysisClient(t, "the sentiment here is hard to pin down")

	_, err := client.AnalyzeSentiment(context.Background(), "some text")
	var parseErr *llm.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.Raw != "the sentiment here is hard to pin down" {
		t.Fatalf("expected raw output preserved, got %q", parseErr.Raw)
	}
}

func TestDetectIntent(t *testing.T) {
	client := analysisClient(t, `{"intent": "Complaint", "confidence": 0.92, "explanation": "reports a defect"}`)

	result, err := client.DetectIntent(context.Background(), "my order arrived broken")
	if err != nil {
		t.Fatalf("detect intent failed: %v", err)
	}
	if result.Intent != "complaint" {
		t.Fatalf("expected normalized intent complaint, got %q", result.Intent)
	}
	if result.Confidence != 0.92 {
		t.Fatalf("unexpected confidence %v", result.Confidence)
	}
}

func TestDetectIntentUnknownCategory(t *testing.T) {
	client := analysisClient(t, `{"intent": "chit-chat", "confidence": 0.4, "explanation": "small talk"}`)

	result, err := client.DetectIntent(context.Background(), "nice weather today")
	if err != nil {
		t.Fatalf("detect intent failed: %v", err)
	}
	if result.Intent != "other" {
		t.Fatalf("expected unknown category to map to other, got %q", result.Intent)
	}
}

func TestDetectIntentClampsConfidence(t *testing.T) {
	client := analysisClient(t, `{"intent": "question", "confidence": 1.4, "explanation": "asks about pricing"}`)

	result, err := client.DetectIntent(context.Background(), "how much is the pro plan?")
	if err != nil {
		t.Fatalf("detect intent failed: %v", err)
	}
	if result.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", result.Confidence)
	}
}

func TestDetectIntentParseError(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"free text", "this looks like a question about pricing"},
		{"missing intent", `{"confidence": 0.9, "explanation": "no intent field"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := analysisClient(t, tc.content)

			_, err := client.DetectIntent(context.Background(), "some text")
			var parseErr *llm.ParseError
			if !errors.As(err, &parseErr) {
				t.Fatalf("expected ParseError, got %v", err)
			}
		})
	}
}

func TestAnalysisPropagatesModelError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	if _, err := client.AnalyzeSentiment(context.Background(), "hi"); err != nil {
		var modelErr *llm.ModelError
		if !errors.As(err, &modelErr) || modelErr.Kind != llm.KindRateLimit {
			t.Fatalf("expected rate_limit ModelError, got %v", err)
		}
	} else {
		t.Fatalf("expected error from rate-limited sentiment call")
	}

	if _, err := client.DetectIntent(context.Background(), "hi"); err == nil {
		t.Fatalf("expected error from rate-limited intent call")
	}
}
