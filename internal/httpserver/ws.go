package httpserver

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/tqmkrishnadev/nextrole/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wsEvent is the frame sent to event subscribers.
type wsEvent struct {
	Type     string            `json:"type"`
	Snapshot *session.Snapshot `json:"snapshot,omitempty"`
	Turn     *session.Turn     `json:"turn,omitempty"`
}

// eventHub fans the orchestrator's state and turn streams out to any
// number of WebSocket subscribers. A slow subscriber loses events rather
// than stalling the others.
type eventHub struct {
	mu     sync.Mutex
	subs   map[chan []byte]struct{}
	closed bool
	stop   chan struct{}
}

func newEventHub(states <-chan session.Snapshot, turns <-chan session.Turn) *eventHub {
	h := &eventHub{
		subs: make(map[chan []byte]struct{}),
		stop: make(chan struct{}),
	}
	go h.pump(states, turns)
	return h
}

func (h *eventHub) pump(states <-chan session.Snapshot, turns <-chan session.Turn) {
	for {
		select {
		case <-h.stop:
			return
		case snap := <-states:
			h.broadcast(wsEvent{Type: "state", Snapshot: &snap})
		case turn := <-turns:
			h.broadcast(wsEvent{Type: "turn", Turn: &turn})
		}
	}
}

func (h *eventHub) broadcast(ev wsEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("httpserver: encoding event: %v", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- data:
		default:
			log.Println("httpserver: slow event subscriber, dropping event")
		}
	}
}

func (h *eventHub) subscribe() chan []byte {
	ch := make(chan []byte, 32)
	h.mu.Lock()
	if h.closed {
		close(ch)
	} else {
		h.subs[ch] = struct{}{}
	}
	h.mu.Unlock()
	return ch
}

func (h *eventHub) unsubscribe(ch chan []byte) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *eventHub) close() {
	h.mu.Lock()
	if !h.closed {
		h.closed = true
		close(h.stop)
		for ch := range h.subs {
			delete(h.subs, ch)
			close(ch)
		}
	}
	h.mu.Unlock()
}

// events upgrades the request and streams session events until the client
// goes away.
func (s *Server) events(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)

	// drain inbound frames so close handshakes and pings are processed
	go func() {
		for {
			if _, _, rerr := conn.ReadMessage(); rerr != nil {
				s.hub.unsubscribe(sub)
				return
			}
		}
	}()

	// the current snapshot first, so subscribers never start blind
	first, err := json.Marshal(wsEvent{Type: "state", Snapshot: snapshotPtr(s.orch.Snapshot())})
	if err == nil {
		if werr := conn.WriteMessage(websocket.TextMessage, first); werr != nil {
			return nil
		}
	}

	for data := range sub {
		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if werr := conn.WriteMessage(websocket.TextMessage, data); werr != nil {
			return nil
		}
	}
	return nil
}

func snapshotPtr(s session.Snapshot) *session.Snapshot { return &s }
