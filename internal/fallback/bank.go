// Package fallback is the local interview engine used when the remote
// agent is unreachable or not configured: a category-tagged question bank,
// a keyword rule table for follow-ups, and a scripted draw that the session
// consumes exactly like a live agent.
package fallback

import "math/rand"

// QuestionsPerSession is the draw size; at roughly two minutes per answer
// it fills the default ten-minute budget.
const QuestionsPerSession = 5

// Question is one bank entry.
type Question struct {
	ID       string
	Category string
	Text     string
}

var bank = []Question{
	// behavioral
	{ID: "b1", Category: "behavioral", Text: "Tell me about a time you had to deliver difficult feedback to a colleague. How did you approach it?"},
	{ID: "b2", Category: "behavioral", Text: "Describe a situation where you disagreed with your manager. What did you do?"},
	{ID: "b3", Category: "behavioral", Text: "Tell me about a project that failed. What happened and what did you learn?"},
	{ID: "b4", Category: "behavioral", Text: "Give me an example of a time you had to work under significant pressure. How did you manage it?"},
	{ID: "b5", Category: "behavioral", Text: "Tell me about a time you went beyond what was expected of you."},
	{ID: "b6", Category: "behavioral", Text: "Describe a conflict within your team and how you helped resolve it."},
	{ID: "b7", Category: "behavioral", Text: "Tell me about a time you had to adapt quickly to an unexpected change."},
	{ID: "b8", Category: "behavioral", Text: "Describe a decision you made with incomplete information. How did it turn out?"},

	// technical
	{ID: "t1", Category: "technical", Text: "Walk me through a system you designed end to end. What were the key trade-offs?"},
	{ID: "t2", Category: "technical", Text: "Tell me about the hardest bug you have ever tracked down. How did you find it?"},
	{ID: "t3", Category: "technical", Text: "How do you approach testing in a codebase with little existing coverage?"},
	{ID: "t4", Category: "technical", Text: "Describe a time you had to improve the performance of a slow system. Where did you start?"},
	{ID: "t5", Category: "technical", Text: "How would you design a service that must stay available while a dependency is down?"},
	{ID: "t6", Category: "technical", Text: "Tell me about a technical decision you later regretted. What would you do differently?"},
	{ID: "t7", Category: "technical", Text: "How do you evaluate whether to build something in-house or adopt an existing tool?"},
	{ID: "t8", Category: "technical", Text: "Explain a complex technical concept you know well as if I were a new team member."},

	// leadership
	{ID: "l1", Category: "leadership", Text: "Tell me about a time you had to motivate a team through a difficult period."},
	{ID: "l2", Category: "leadership", Text: "How do you delegate work when your team is overloaded?"},
	{ID: "l3", Category: "leadership", Text: "Describe a time you had to make an unpopular decision. How did you communicate it?"},
	{ID: "l4", Category: "leadership", Text: "How do you develop the people on your team? Give a concrete example."},
	{ID: "l5", Category: "leadership", Text: "Tell me about a time you inherited a struggling project or team. What did you change first?"},
	{ID: "l6", Category: "leadership", Text: "How do you balance stakeholder demands against your team's capacity?"},
	{ID: "l7", Category: "leadership", Text: "Describe how you have handled an underperforming team member."},
	{ID: "l8", Category: "leadership", Text: "Tell me about a strategic bet you made. How did you get buy-in?"},
}

// Draw picks n distinct questions of the given category in shuffled order.
// Unknown categories draw from the behavioral set.
func Draw(category string, n int, rng *rand.Rand) []Question {
	var pool []Question
	for _, q := range bank {
		if q.Category == category {
			pool = append(pool, q)
		}
	}
	if len(pool) == 0 {
		return Draw("behavioral", n, rng)
	}
	shuffled := make([]Question, len(pool))
	copy(shuffled, pool)
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	if n > len(shuffled) {
		n = len(shuffled)
	}
	return shuffled[:n]
}
