package fallback

import (
	"strings"
	"testing"
)

const longPlainAnswer = "I worked through the situation carefully with everyone involved and we and eventually reached an arrangement that everybody could live with over the following quarter"

func TestBeginDrawsFromCategory(t *testing.T) {
	e := NewEngineSeeded(1)
	first, err := e.Begin("technical")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if first == "" {
		t.Fatal("expected a first question")
	}
	ids := map[string]bool{}
	for _, q := range e.questions {
		if q.Category != "technical" {
			t.Fatalf("drew %s from category %q", q.ID, q.Category)
		}
		if ids[q.ID] {
			t.Fatalf("question %s drawn twice", q.ID)
		}
		ids[q.ID] = true
	}
	if len(e.questions) != QuestionsPerSession {
		t.Fatalf("drew %d questions, want %d", len(e.questions), QuestionsPerSession)
	}
}

func TestUnknownCategoryFallsBackToBehavioral(t *testing.T) {
	e := NewEngineSeeded(2)
	if _, err := e.Begin("astrology"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	for _, q := range e.questions {
		if q.Category != "behavioral" {
			t.Fatalf("unknown category drew %q", q.Category)
		}
	}
}

func TestShortAnswerGetsProbe(t *testing.T) {
	e := NewEngineSeeded(3)
	if _, err := e.Begin("behavioral"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	text, followUp, ok := e.Next("it went fine")
	if !ok || !followUp {
		t.Fatalf("expected follow-up, got ok=%v followUp=%v", ok, followUp)
	}
	if text != shortAnswerProbe {
		t.Fatalf("unexpected probe %q", text)
	}
}

func TestAtMostOneFollowUpPerQuestion(t *testing.T) {
	e := NewEngineSeeded(4)
	if _, err := e.Begin("behavioral"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, followUp, _ := e.Next("short"); !followUp {
		t.Fatal("first probe expected")
	}
	// responding to the probe, even thinly, must advance the script
	_, followUp, ok := e.Next("still short")
	if !ok {
		t.Fatal("script ended early")
	}
	if followUp {
		t.Fatal("got a second follow-up on the same question")
	}
}

func TestKeywordRuleMatchesCategory(t *testing.T) {
	e := NewEngineSeeded(5)
	if _, err := e.Begin("technical"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	answer := longPlainAnswer + " and the main issue was latency under load"
	text, followUp, ok := e.Next(answer)
	if !ok || !followUp {
		t.Fatalf("expected keyword follow-up, got ok=%v followUp=%v", ok, followUp)
	}
	if !strings.Contains(text, "measure") {
		t.Fatalf("expected the latency probe, got %q", text)
	}
}

func TestSubstantialAnswerWithoutKeywordsAdvances(t *testing.T) {
	e := NewEngineSeeded(6)
	first, err := e.Begin("behavioral")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	text, followUp, ok := e.Next(longPlainAnswer)
	if !ok {
		t.Fatal("script ended early")
	}
	if followUp {
		t.Fatalf("expected next question, got follow-up %q", text)
	}
	if text == first {
		t.Fatal("next question repeated the first")
	}
}

func TestScriptExhausts(t *testing.T) {
	e := NewEngineSeeded(7)
	if _, err := e.Begin("leadership"); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	asked := 1
	for {
		_, followUp, ok := e.Next(longPlainAnswer)
		if !ok {
			break
		}
		if !followUp {
			asked++
		}
		if asked > QuestionsPerSession+1 {
			t.Fatalf("script asked %d questions", asked)
		}
	}
	if asked != QuestionsPerSession {
		t.Fatalf("asked %d questions, want %d", asked, QuestionsPerSession)
	}
	if e.Remaining() != 0 {
		t.Fatalf("Remaining() = %d after exhaustion", e.Remaining())
	}
	// exhausted script stays exhausted
	if _, _, ok := e.Next("more"); ok {
		t.Fatal("Next returned ok after exhaustion")
	}
}

func TestEmptyAnswerAdvances(t *testing.T) {
	e := NewEngineSeeded(8)
	first, err := e.Begin("behavioral")
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	text, followUp, ok := e.Next("")
	if !ok {
		t.Fatal("script ended on empty answer")
	}
	if followUp {
		t.Fatal("empty answer should not be probed")
	}
	if text == first {
		t.Fatal("next question repeated the first")
	}
}
