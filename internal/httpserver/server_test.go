package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tqmkrishnadev/nextrole/internal/audio"
	"github.com/tqmkrishnadev/nextrole/internal/fallback"
	"github.com/tqmkrishnadev/nextrole/internal/feedback"
	"github.com/tqmkrishnadev/nextrole/internal/session"
)

func newTestServer(t *testing.T) (*httptest.Server, *session.Orchestrator) {
	t.Helper()
	orch := session.New(session.Deps{
		Device:        audio.NewMemoryDevice(),
		Script:        fallback.NewEngineSeeded(42),
		Feedback:      feedback.NewRuleBased(),
		ThinkingDelay: time.Millisecond,
	})
	srv := New(orch, nil, nil)
	ts := httptest.NewServer(srv.Echo())
	t.Cleanup(func() {
		ts.Close()
		_ = orch.Close()
	})
	return ts, orch
}

func postJSON(t *testing.T, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	resp, err := http.Post(url, "application/json", &buf)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	_, _ = out.ReadFrom(resp.Body)
	return resp, out.Bytes()
}

func getSnapshot(t *testing.T, base string) session.Snapshot {
	t.Helper()
	resp, err := http.Get(base + "/interviews/current")
	if err != nil {
		t.Fatalf("GET current: %v", err)
	}
	defer resp.Body.Close()
	var view struct {
		session.Snapshot
		Turns []session.Turn `json:"turns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decoding snapshot: %v", err)
	}
	return view.Snapshot
}

func waitForState(t *testing.T, base string, want session.State) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if getSnapshot(t, base).State == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s, at %s", want, getSnapshot(t, base).State)
}

func TestHealthz(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status %d", resp.StatusCode)
	}
}

func TestInterviewLifecycle(t *testing.T) {
	ts, _ := newTestServer(t)
	base := ts.URL

	// no agent is configured, so this must auto-route to fallback
	resp, body := postJSON(t, base+"/interviews", map[string]any{
		"name":     "Ada",
		"category": "technical",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("start status %d: %s", resp.StatusCode, body)
	}
	var snap session.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		t.Fatalf("decoding start response: %v", err)
	}
	if snap.Mode != session.ModeFallback {
		t.Fatalf("mode %s, want fallback", snap.Mode)
	}
	waitForState(t, base, session.StateWaitingForUser)

	resp, body = postJSON(t, base+"/interviews", map[string]any{"category": "technical"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("second start status %d: %s", resp.StatusCode, body)
	}

	if resp, body = postJSON(t, base+"/interviews/current/answer/begin", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("begin status %d: %s", resp.StatusCode, body)
	}
	if resp, body = postJSON(t, base+"/interviews/current/answer/text", map[string]string{
		"text": "I designed the ingestion service end to end and owned its rollout across three regions over two quarters",
	}); resp.StatusCode != http.StatusOK {
		t.Fatalf("text status %d: %s", resp.StatusCode, body)
	}
	if resp, body = postJSON(t, base+"/interviews/current/answer/end", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("end status %d: %s", resp.StatusCode, body)
	}
	waitForState(t, base, session.StateWaitingForUser)

	if resp, body = postJSON(t, base+"/interviews/current/finish", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("finish status %d: %s", resp.StatusCode, body)
	}
	if s := getSnapshot(t, base); s.State != session.StateEnded {
		t.Fatalf("state %s after finish", s.State)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		fresp, err := http.Get(base + "/interviews/current/feedback")
		if err != nil {
			t.Fatalf("GET feedback: %v", err)
		}
		fresp.Body.Close()
		if fresp.StatusCode == http.StatusOK {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("feedback never became available")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if resp, body = postJSON(t, base+"/interviews/current/reset", nil); resp.StatusCode != http.StatusOK {
		t.Fatalf("reset status %d: %s", resp.StatusCode, body)
	}
	if s := getSnapshot(t, base); s.State != session.StateIdle {
		t.Fatalf("state %s after reset", s.State)
	}
}

func TestAnswerControlsRequireSession(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, body := postJSON(t, ts.URL+"/interviews/current/answer/begin", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("begin without session: %d %s", resp.StatusCode, body)
	}
}

func TestRTCOfferNotConfigured(t *testing.T) {
	ts, _ := newTestServer(t)
	resp, _ := postJSON(t, ts.URL+"/rtc/offer", map[string]string{"type": "offer", "sdp": "v=0"})
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("rtc offer status %d", resp.StatusCode)
	}
}

func TestEventsStream(t *testing.T) {
	ts, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/interviews/current/events"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial events: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var first struct {
		Type     string            `json:"type"`
		Snapshot *session.Snapshot `json:"snapshot"`
	}
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("reading initial event: %v", err)
	}
	if first.Type != "state" || first.Snapshot == nil || first.Snapshot.State != session.StateIdle {
		t.Fatalf("unexpected initial event: %+v", first)
	}

	postJSON(t, ts.URL+"/interviews", map[string]any{"category": "behavioral", "mode": "fallback"})

	sawReady := false
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && !sawReady {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev struct {
			Type     string            `json:"type"`
			Snapshot *session.Snapshot `json:"snapshot"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("reading event: %v", err)
		}
		if ev.Type == "state" && ev.Snapshot != nil && ev.Snapshot.State == session.StateReady {
			sawReady = true
		}
	}
	if !sawReady {
		t.Fatal("never saw a ready state event")
	}
}
