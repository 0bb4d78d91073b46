package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExplanationUnavailable marks a sentiment result recovered through the
// numeric-token fallback, where the model gave no usable explanation.
const ExplanationUnavailable = "unavailable"

// SentimentResult is the structured output of AnalyzeSentiment.
type SentimentResult struct {
	Text        string  `json:"text"`
	Score       float64 `json:"sentiment_score"`
	Label       string  `json:"sentiment_label"`
	Explanation string  `json:"explanation"`
}

// IntentResult is the structured output of DetectIntent.
type IntentResult struct {
	Intent      string  `json:"intent"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

var intentCategories = map[string]struct{}{
	"question":  {},
	"complaint": {},
	"feedback":  {},
	"request":   {},
	"greeting":  {},
	"other":     {},
}

const sentimentPrompt = `Analyze the sentiment of the following text and return JSON only:
{
    "score": (number between -1 and 1),
    "label": "sentiment label",
    "explanation": "short explanation"
}`

const intentPrompt = `Classify the intent of the following customer service message and return JSON only:
{
    "intent": "one of: question, complaint, feedback, request, greeting, other",
    "confidence": (number between 0 and 1),
    "explanation": "short explanation"
}`

// AnalyzeSentiment scores the sentiment of text in [-1, 1]. When the model
// output fails structured parsing, a leading numeric token is accepted as
// the score with the label derived from its sign; only when that also
// fails does the call return a ParseError.
func (c *Client) AnalyzeSentiment(ctx context.Context, text string) (*SentimentResult, error) {
	raw, err := c.complete(ctx, "sentiment", []Message{
		{Role: "system", Content: sentimentPrompt},
		{Role: "user", Content: text},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Score       float64 `json:"score"`
		Label       string  `json:"label"`
		Explanation string  `json:"explanation"`
	}
	if jsonErr := json.Unmarshal([]byte(stripCodeFences(raw)), &parsed); jsonErr == nil {
		return &SentimentResult{
			Text:        text,
			Score:       clamp(parsed.Score, -1, 1),
			Label:       strings.TrimSpace(parsed.Label),
			Explanation: strings.TrimSpace(parsed.Explanation),
		}, nil
	}

	score, ok := leadingNumber(raw)
	if !ok {
		return nil, &ParseError{Op: "sentiment", Raw: raw}
	}

	score = clamp(score, -1, 1)
	label := "neutral"
	switch {
	case score > 0:
		label = "positive"
	case score < 0:
		label = "negative"
	}

	c.logger.Warnw("sentiment output recovered via numeric fallback", "raw", raw)

	return &SentimentResult{
		Text:        text,
		Score:       score,
		Label:       label,
		Explanation: ExplanationUnavailable,
	}, nil
}

// DetectIntent classifies text into one of the fixed intent categories.
// There is no fallback parse; output that is not the documented JSON shape
// returns a ParseError.
func (c *Client) DetectIntent(ctx context.Context, text string) (*IntentResult, error) {
	raw, err := c.complete(ctx, "intent", []Message{
		{Role: "system", Content: intentPrompt},
		{Role: "user", Content: text},
	})
	if err != nil {
		return nil, err
	}

	var parsed IntentResult
	if jsonErr := json.Unmarshal([]byte(stripCodeFences(raw)), &parsed); jsonErr != nil {
		return nil, &ParseError{Op: "intent", Raw: raw, Err: jsonErr}
	}

	intent := strings.ToLower(strings.TrimSpace(parsed.Intent))
	if intent == "" {
		return nil, &ParseError{Op: "intent", Raw: raw, Err: fmt.Errorf("missing intent field")}
	}
	if _, known := intentCategories[intent]; !known {
		intent = "other"
	}

	return &IntentResult{
		Intent:      intent,
		Confidence:  clamp(parsed.Confidence, 0, 1),
		Explanation: strings.TrimSpace(parsed.Explanation),
	}, nil
}

// stripCodeFences unwraps ```json ... ``` blocks some models emit around
// structured output.
func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

// leadingNumber extracts a numeric token from the start of raw.
func leadingNumber(raw string) (float64, bool) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return 0, false
	}

	token := strings.Trim(fields[0], ",:;)")
	value, err := strconv.ParseFloat(token, 64)
	if err != nil {
		return 0, false
	}
	return value, true
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
