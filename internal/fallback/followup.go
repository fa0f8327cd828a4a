package fallback

import "strings"

// followUpRule maps response keywords to a probe. Rules are checked in
// order; the first hit wins. Category "" matches any category.
type followUpRule struct {
	category string
	keywords []string
	probe    string
}

var followUpRules = []followUpRule{
	{category: "technical", keywords: []string{"scale", "scaling", "performance", "latency"}, probe: "What specific numbers were you working with, and how did you measure the improvement?"},
	{category: "technical", keywords: []string{"bug", "debug", "incident", "outage"}, probe: "What did you change afterwards so the same class of problem could not happen again?"},
	{category: "technical", keywords: []string{"design", "architecture", "trade-off", "tradeoff"}, probe: "Which alternative did you reject, and what would have made you choose it instead?"},
	{category: "leadership", keywords: []string{"team", "report", "reports", "delegate"}, probe: "How did the people involved react, and how did you follow up with them?"},
	{category: "leadership", keywords: []string{"stakeholder", "deadline", "priorit"}, probe: "What did you explicitly decide not to do, and how did you communicate that?"},
	{category: "", keywords: []string{"conflict", "disagree", "pushback"}, probe: "What would the other person say about how you handled it?"},
	{category: "", keywords: []string{"mistake", "fail", "wrong", "regret"}, probe: "What early signal did you miss, and how do you watch for it now?"},
	{category: "", keywords: []string{"learn", "lesson", "hindsight"}, probe: "Can you give a concrete example of applying that lesson since then?"},
	{category: "", keywords: []string{"result", "impact", "outcome", "success"}, probe: "How did you measure that impact, and who noticed it?"},
}

// shortAnswerProbe is used when the response is too thin to match any rule.
const shortAnswerProbe = "Can you expand on that with a specific example and your own role in it?"

// minSubstantiveWords is the threshold below which an answer is considered
// too short to probe by keyword.
const minSubstantiveWords = 12

// pickFollowUp returns a probe for the response, or "" when the answer is
// substantial and matches no rule, meaning the script should move on.
func pickFollowUp(category, response string) string {
	lower := strings.ToLower(response)
	words := len(strings.Fields(lower))
	if words == 0 {
		// nothing to probe against, move to the next question
		return ""
	}
	if words < minSubstantiveWords {
		return shortAnswerProbe
	}
	for _, r := range followUpRules {
		if r.category != "" && r.category != category {
			continue
		}
		for _, kw := range r.keywords {
			if strings.Contains(lower, kw) {
				return r.probe
			}
		}
	}
	return ""
}
