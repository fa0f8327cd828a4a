// Package feedback turns the set of candidate answers into a structured
// review. A hosted model is asked first with a strict response schema; any
// non-conforming reply falls back to the deterministic rule-based
// generator, never to scraping free-form text.
package feedback

import (
	"context"
	"time"
)

// Response is one answered question, built from the userResponse turns of a
// finished session.
type Response struct {
	QuestionID      string    `json:"question_id"`
	QuestionText    string    `json:"question_text"`
	ResponseText    string    `json:"response_text"`
	DurationSeconds float64   `json:"duration_seconds"`
	Timestamp       time.Time `json:"timestamp"`
}

// QuestionNote carries per-question observations.
type QuestionNote struct {
	QuestionID string `json:"question_id"`
	Score      int    `json:"score"`
	Note       string `json:"note"`
}

// Feedback is the immutable session review, produced once at session end.
type Feedback struct {
	OverallScore    int            `json:"overall_score"`
	Strengths       []string       `json:"strengths"`
	Improvements    []string       `json:"improvements"`
	PerQuestion     []QuestionNote `json:"per_question"`
	Recommendations string         `json:"recommendations"`
}

// Generator produces feedback from the answered questions.
type Generator interface {
	Generate(ctx context.Context, responses []Response) (Feedback, error)
}
