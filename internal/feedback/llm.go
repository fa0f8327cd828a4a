package feedback

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

const defaultEndpoint = "https://api.cerebras.ai/v1/chat/completions"

const systemPrompt = `You are an interview coach. You will receive a JSON array of answered interview questions.
Reply with ONLY a JSON object matching this schema, no prose, no markdown fences:
{"overall_score": <0-100 integer>, "strengths": [<strings>], "improvements": [<strings>], "per_question": [{"question_id": <string>, "score": <0-100 integer>, "note": <string>}], "recommendations": <string>}`

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
}

// LLMGenerator asks a hosted model for the review and validates the reply
// against the Feedback schema. Anything that does not validate falls back
// to the rule-based generator.
type LLMGenerator struct {
	HTTPClient *http.Client
	Endpoint   string
	APIKey     string
	Model      string
	Fallback   Generator
}

func NewLLMGenerator(apiKey, model string) *LLMGenerator {
	return &LLMGenerator{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		Endpoint:   defaultEndpoint,
		APIKey:     apiKey,
		Model:      model,
		Fallback:   NewRuleBased(),
	}
}

// Generate returns the model's review or, on any failure or schema
// violation, the deterministic fallback review. It only errors when both
// paths fail.
func (g *LLMGenerator) Generate(ctx context.Context, responses []Response) (Feedback, error) {
	fb, err := g.generateRemote(ctx, responses)
	if err == nil {
		return fb, nil
	}
	log.Printf("feedback: remote generation failed, using rule-based review: %v", err)
	if g.Fallback == nil {
		return Feedback{}, err
	}
	return g.Fallback.Generate(ctx, responses)
}

func (g *LLMGenerator) generateRemote(ctx context.Context, responses []Response) (Feedback, error) {
	if g.APIKey == "" {
		return Feedback{}, fmt.Errorf("feedback: api key missing")
	}

	payload, err := json.Marshal(responses)
	if err != nil {
		return Feedback{}, err
	}
	reqBody, _ := json.Marshal(chatCompletionsRequest{
		Model: g.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(payload)},
		},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.Endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return Feedback{}, err
	}
	req.Header.Set("Authorization", "Bearer "+g.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return Feedback{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Feedback{}, fmt.Errorf("feedback: status=%d body=%s", resp.StatusCode, string(b))
	}

	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Feedback{}, err
	}
	if len(cr.Choices) == 0 {
		return Feedback{}, fmt.Errorf("feedback: empty choices")
	}
	return parseStrict(cr.Choices[0].Message.Content)
}

// parseStrict validates the model reply against the Feedback schema. No
// regex rescue: a reply that is not the exact JSON object is rejected.
func parseStrict(content string) (Feedback, error) {
	content = strings.TrimSpace(content)
	dec := json.NewDecoder(strings.NewReader(content))
	dec.DisallowUnknownFields()
	var fb Feedback
	if err := dec.Decode(&fb); err != nil {
		return Feedback{}, fmt.Errorf("feedback: response does not match schema: %w", err)
	}
	if dec.More() {
		return Feedback{}, fmt.Errorf("feedback: trailing content after JSON object")
	}
	if fb.OverallScore < 0 || fb.OverallScore > 100 {
		return Feedback{}, fmt.Errorf("feedback: overall_score %d out of range", fb.OverallScore)
	}
	for _, q := range fb.PerQuestion {
		if q.Score < 0 || q.Score > 100 {
			return Feedback{}, fmt.Errorf("feedback: per-question score %d out of range", q.Score)
		}
	}
	return fb, nil
}
