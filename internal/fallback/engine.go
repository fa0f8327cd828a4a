package fallback

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Engine walks a drawn question set, asking at most one follow-up per
// question. It is the local stand-in for the remote agent and satisfies the
// session's QuestionScript contract.
type Engine struct {
	mu        sync.Mutex
	category  string
	questions []Question
	index     int
	probed    bool
	rng       *rand.Rand
}

// NewEngine returns an engine with its own seeded source so draws differ
// across sessions.
func NewEngine() *Engine {
	return &Engine{rng: rand.New(rand.NewSource(time.Now().UnixNano()))}
}

// NewEngineSeeded is for tests that need a deterministic draw.
func NewEngineSeeded(seed int64) *Engine {
	return &Engine{rng: rand.New(rand.NewSource(seed))}
}

// Begin draws a fresh question set for the category and returns the first
// question. Calling Begin again restarts the script.
func (e *Engine) Begin(category string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.category = category
	e.questions = Draw(category, QuestionsPerSession, e.rng)
	if len(e.questions) == 0 {
		return "", fmt.Errorf("fallback: empty question bank for category %q", category)
	}
	e.index = 0
	e.probed = false
	return e.questions[0].Text, nil
}

// Next consumes the response to the current prompt and returns the next
// one. followUp reports whether the text probes the same question rather
// than opening a new one; ok is false once the script is exhausted.
func (e *Engine) Next(lastResponse string) (text string, followUp bool, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index >= len(e.questions) {
		return "", false, false
	}
	if !e.probed {
		if probe := pickFollowUp(e.category, lastResponse); probe != "" {
			e.probed = true
			return probe, true, true
		}
	}
	e.index++
	e.probed = false
	if e.index >= len(e.questions) {
		return "", false, false
	}
	return e.questions[e.index].Text, false, true
}

// Remaining reports how many bank questions have not been opened yet.
func (e *Engine) Remaining() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.index >= len(e.questions) {
		return 0
	}
	return len(e.questions) - e.index - 1
}
