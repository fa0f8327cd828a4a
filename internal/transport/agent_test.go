package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tqmkrishnadev/nextrole/internal/protocol"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeAgentServer upgrades the request and runs script against the socket.
func fakeAgentServer(t *testing.T, script func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		script(conn)
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestAgent_ConnectRequiresConfig(t *testing.T) {
	if err := NewAgent("", "key").Connect(context.Background()); err == nil {
		t.Fatalf("expected error for empty endpoint")
	}
	if err := NewAgent("ws://example.invalid/ws", "").Connect(context.Background()); err == nil {
		t.Fatalf("expected error for empty api key")
	}
}

func TestAgent_ReceivesDecodedMessages(t *testing.T) {
	srv := fakeAgentServer(t, func(conn *websocket.Conn) {
		data, _ := protocol.Encode(protocol.AgentText{Text: "Tell me about yourself."})
		_ = conn.WriteMessage(websocket.TextMessage, data)
		// hold the socket open until the client leaves
		_, _, _ = conn.ReadMessage()
	})
	defer srv.Close()

	a := NewAgent(wsURL(srv), "test-key")
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer a.Close()

	select {
	case ev := <-a.Events():
		if ev.Kind != EventMessage {
			t.Fatalf("expected message event, got %v (%v)", ev.Kind, ev.Err)
		}
		txt, ok := ev.Msg.(protocol.AgentText)
		if !ok {
			t.Fatalf("expected AgentText, got %T", ev.Msg)
		}
		if txt.Text != "Tell me about yourself." {
			t.Fatalf("unexpected text %q", txt.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for agent message")
	}
}

func TestAgent_AnswersPingWithPong(t *testing.T) {
	gotPong := make(chan struct{})
	srv := fakeAgentServer(t, func(conn *websocket.Conn) {
		data, _ := protocol.Encode(protocol.Ping{})
		_ = conn.WriteMessage(websocket.TextMessage, data)
		for {
			_, reply, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if protocol.Decode(reply).Kind() == protocol.KindPong {
				close(gotPong)
				return
			}
		}
	})
	defer srv.Close()

	a := NewAgent(wsURL(srv), "test-key")
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer a.Close()

	select {
	case <-gotPong:
	case <-time.After(2 * time.Second):
		t.Fatalf("server never received pong")
	}
}

func TestAgent_UnknownFramesSkipped(t *testing.T) {
	srv := fakeAgentServer(t, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"shiny_new_thing"}`))
		data, _ := protocol.Encode(protocol.AgentAudioEnd{})
		_ = conn.WriteMessage(websocket.TextMessage, data)
		_, _, _ = conn.ReadMessage()
	})
	defer srv.Close()

	a := NewAgent(wsURL(srv), "test-key")
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer a.Close()

	select {
	case ev := <-a.Events():
		if ev.Kind != EventMessage || ev.Msg.Kind() != protocol.KindAgentAudioEnd {
			t.Fatalf("unknown frame should be skipped, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for event after unknown frame")
	}
}

func TestAgent_DisconnectSurfacedAsEvent(t *testing.T) {
	srv := fakeAgentServer(t, func(conn *websocket.Conn) {
		// close immediately from the server side
	})
	defer srv.Close()

	a := NewAgent(wsURL(srv), "test-key")
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer a.Close()

	select {
	case ev := <-a.Events():
		if ev.Kind != EventDisconnected {
			t.Fatalf("expected disconnect event, got %v", ev.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for disconnect event")
	}
}

func TestAgent_SendBeforeConnect(t *testing.T) {
	a := NewAgent("ws://example.invalid/ws", "key")
	if err := a.Send(protocol.Ping{}); err != ErrNotConnected {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestAgent_EmitDuringCloseDoesNotPanic(t *testing.T) {
	srv := fakeAgentServer(t, func(conn *websocket.Conn) {
		// hold the socket open until the client leaves
		_, _, _ = conn.ReadMessage()
	})
	defer srv.Close()

	a := NewAgent(wsURL(srv), "test-key")
	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}

	// mirror the keepalive loop reporting a dead connection while the
	// session tears the transport down
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("emit during Close panicked: %v", r)
			}
		}()
		for i := 0; i < 500; i++ {
			a.emit(Event{Kind: EventDead})
		}
	}()

	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("emitter wedged after Close")
	}

	if err := a.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
