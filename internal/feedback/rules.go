package feedback

import (
	"context"
	"fmt"
	"strings"
)

// structureMarkers are the situation/task/action/result vocabulary strong
// behavioral answers tend to use.
var structureMarkers = []string{
	"situation", "challenge", "task", "goal", "action", "decided",
	"result", "outcome", "learned", "improved", "impact", "metric",
}

// RuleBased scores answers deterministically from length and structure.
// It is the guaranteed path: no network, no keys, same input same output.
type RuleBased struct{}

func NewRuleBased() *RuleBased { return &RuleBased{} }

// Generate never fails; an empty response set yields a minimal review.
func (g *RuleBased) Generate(_ context.Context, responses []Response) (Feedback, error) {
	if len(responses) == 0 {
		return Feedback{
			OverallScore:    0,
			Improvements:    []string{"No answers were recorded in this session."},
			Recommendations: "Complete at least one full question to receive a detailed review.",
		}, nil
	}

	var total int
	notes := make([]QuestionNote, 0, len(responses))
	var shortCount, structuredCount int
	for _, r := range responses {
		score, note := scoreResponse(r)
		total += score
		notes = append(notes, QuestionNote{QuestionID: r.QuestionID, Score: score, Note: note})
		words := len(strings.Fields(r.ResponseText))
		if words < 30 {
			shortCount++
		}
		if countMarkers(r.ResponseText) >= 2 {
			structuredCount++
		}
	}
	overall := total / len(responses)

	var strengths, improvements []string
	if structuredCount >= len(responses)/2+1 {
		strengths = append(strengths, "Answers follow a clear situation-action-result structure.")
	}
	if shortCount == 0 {
		strengths = append(strengths, "Consistently detailed answers with enough substance to evaluate.")
	}
	if shortCount > 0 {
		improvements = append(improvements, fmt.Sprintf("%d answer(s) were very brief; aim for 45-90 seconds with one concrete example.", shortCount))
	}
	if structuredCount < len(responses)/2+1 {
		improvements = append(improvements, "Structure answers around a specific situation, the action you took, and the measurable result.")
	}
	if len(strengths) == 0 {
		strengths = append(strengths, "Completed the interview and engaged with every question asked.")
	}

	return Feedback{
		OverallScore:    overall,
		Strengths:       strengths,
		Improvements:    improvements,
		PerQuestion:     notes,
		Recommendations: "Practice out loud against a timer and review one recorded answer per day.",
	}, nil
}

// scoreResponse maps an answer to 0-100 from word count and structure.
func scoreResponse(r Response) (int, string) {
	words := len(strings.Fields(r.ResponseText))
	markers := countMarkers(r.ResponseText)

	switch {
	case words == 0:
		return 0, "No answer was captured for this question."
	case words < 15:
		return 35, "Answer was too short to demonstrate depth."
	case words < 40:
		if markers >= 2 {
			return 65, "Concise and structured; adding a concrete outcome would strengthen it."
		}
		return 55, "Reasonable length; add specifics about what you did and the result."
	default:
		score := 70 + markers*5
		if score > 95 {
			score = 95
		}
		if markers >= 2 {
			return score, "Well-developed answer with clear structure."
		}
		return score, "Detailed answer; tie it together with an explicit outcome."
	}
}

func countMarkers(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, m := range structureMarkers {
		if strings.Contains(lower, m) {
			n++
		}
	}
	return n
}
