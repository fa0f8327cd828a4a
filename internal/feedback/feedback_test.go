package feedback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func sampleResponses() []Response {
	return []Response{
		{
			QuestionID:      "q1",
			QuestionText:    "Tell me about a challenge you faced.",
			ResponseText:    "The situation was a failing deployment pipeline. I took action by isolating the flaky stage, and the result was a forty percent faster release with measurable impact on the team.",
			DurationSeconds: 62,
			Timestamp:       time.Now(),
		},
		{
			QuestionID:      "q2",
			QuestionText:    "Why this role?",
			ResponseText:    "I like it.",
			DurationSeconds: 4,
			Timestamp:       time.Now(),
		},
	}
}

func TestRuleBased_Deterministic(t *testing.T) {
	g := NewRuleBased()
	a, err := g.Generate(context.Background(), sampleResponses())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	b, _ := g.Generate(context.Background(), sampleResponses())
	if a.OverallScore != b.OverallScore {
		t.Fatalf("rule-based generator must be deterministic: %d vs %d", a.OverallScore, b.OverallScore)
	}
	if len(a.PerQuestion) != 2 {
		t.Fatalf("expected per-question notes for both answers")
	}
	if a.PerQuestion[0].Score <= a.PerQuestion[1].Score {
		t.Fatalf("structured long answer should outscore a one-liner: %+v", a.PerQuestion)
	}
}

func TestRuleBased_EmptySession(t *testing.T) {
	fb, err := NewRuleBased().Generate(context.Background(), nil)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if fb.OverallScore != 0 || len(fb.Improvements) == 0 {
		t.Fatalf("expected minimal review for empty session, got %+v", fb)
	}
}

func TestParseStrict_RejectsProse(t *testing.T) {
	for _, content := range []string{
		"Sure! Here's your feedback: {\"overall_score\": 80}",
		"```json\n{\"overall_score\": 80}\n```",
		`{"overall_score": 120, "strengths": [], "improvements": [], "per_question": [], "recommendations": ""}`,
		`{"overall_score": 80, "unexpected_field": 1}`,
	} {
		if _, err := parseStrict(content); err == nil {
			t.Fatalf("expected schema rejection for %q", content)
		}
	}
}

func TestParseStrict_AcceptsConforming(t *testing.T) {
	content := `{"overall_score": 78, "strengths": ["clear"], "improvements": ["slow down"], "per_question": [{"question_id": "q1", "score": 80, "note": "good"}], "recommendations": "practice"}`
	fb, err := parseStrict(content)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if fb.OverallScore != 78 || len(fb.PerQuestion) != 1 {
		t.Fatalf("unexpected feedback %+v", fb)
	}
}

func TestLLMGenerator_FallsBackOnBadResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := chatCompletionsResponse{Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: "I think the candidate did great, maybe 8/10?"}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	g := NewLLMGenerator("key", "model")
	g.Endpoint = srv.URL
	fb, err := g.Generate(context.Background(), sampleResponses())
	if err != nil {
		t.Fatalf("expected fallback review, got error: %v", err)
	}
	if len(fb.PerQuestion) != 2 {
		t.Fatalf("expected rule-based per-question notes, got %+v", fb)
	}
}

func TestLLMGenerator_UsesConformingResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Authorization"), "Bearer key") {
			t.Errorf("missing bearer auth")
		}
		content := `{"overall_score": 91, "strengths": [], "improvements": [], "per_question": [], "recommendations": "keep going"}`
		resp := chatCompletionsResponse{Choices: []chatChoice{{Message: chatMessage{Role: "assistant", Content: content}}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	g := NewLLMGenerator("key", "model")
	g.Endpoint = srv.URL
	fb, err := g.Generate(context.Background(), sampleResponses())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if fb.OverallScore != 91 {
		t.Fatalf("expected model score to be used, got %d", fb.OverallScore)
	}
}
