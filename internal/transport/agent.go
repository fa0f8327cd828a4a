// Package transport owns the persistent bidirectional connection to the
// remote interview agent. It dials once, pumps inbound frames through the
// protocol codec, answers keepalive pings inside the receive cycle, and
// surfaces everything else as events. It never reconnects on its own: a
// dropped socket is reported and the session decides what to do.
package transport

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tqmkrishnadev/nextrole/internal/protocol"
)

// ConnectTimeout bounds the dial; a slow agent routes the caller to the
// fallback engine rather than hanging the UI.
const ConnectTimeout = 10 * time.Second

// PingInterval is how often we probe the agent.
const PingInterval = 15 * time.Second

// KeepaliveWindow is the longest we tolerate without any inbound frame or
// pong before declaring the connection dead.
const KeepaliveWindow = 30 * time.Second

// ErrNotConnected is returned by Send before Connect or after Close.
var ErrNotConnected = errors.New("transport: not connected")

// EventKind classifies transport events.
type EventKind int

const (
	// EventMessage carries a decoded inbound protocol message.
	EventMessage EventKind = iota
	// EventDisconnected reports a read failure or remote close.
	EventDisconnected
	// EventDead reports a keepalive timeout: pings went unanswered for
	// KeepaliveWindow.
	EventDead
)

// Event is delivered on the Events channel.
type Event struct {
	Kind EventKind
	Msg  protocol.Message
	Err  error
}

// Agent is a client for the remote interview agent's WebSocket endpoint.
type Agent struct {
	url    string
	apiKey string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool

	events chan Event
	outbox chan []byte
	stopCh chan struct{}

	aliveMu   sync.Mutex
	lastAlive time.Time
}

// NewAgent creates an agent client for the given endpoint.
func NewAgent(wsURL, apiKey string) *Agent {
	return &Agent{
		url:    wsURL,
		apiKey: apiKey,
		events: make(chan Event, 100),
		outbox: make(chan []byte, 1000),
		stopCh: make(chan struct{}),
	}
}

// Events returns the inbound event stream. The channel goes quiet after
// Close rather than closing; consumers stop reading on their own.
func (a *Agent) Events() <-chan Event { return a.events }

// Connect establishes the WebSocket connection and starts the receive,
// send, and keepalive loops. The dial is bounded by ConnectTimeout and the
// supplied context, whichever ends first.
func (a *Agent) Connect(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.connected {
		return nil
	}
	if a.url == "" {
		return fmt.Errorf("transport: agent endpoint is empty")
	}
	if a.apiKey == "" {
		return fmt.Errorf("transport: agent API key is empty")
	}

	headers := map[string][]string{
		"Authorization": {"Bearer " + a.apiKey},
	}
	dialer := websocket.Dialer{HandshakeTimeout: ConnectTimeout}

	log.Printf("transport: connecting to agent at %s", a.url)
	conn, resp, err := dialer.DialContext(ctx, a.url, headers)
	if err != nil {
		if resp != nil {
			log.Printf("transport: agent dial failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("transport: dial agent: %w", err)
	}

	a.conn = conn
	a.connected = true
	a.touchAlive()

	go a.readLoop()
	go a.writeLoop()
	go a.keepalive()

	log.Println("transport: agent connection established")
	return nil
}

// Send encodes and queues a message for delivery. It drops audio chunks
// rather than block when the outbox is saturated; control messages block
// until queued or the transport stops.
func (a *Agent) Send(m protocol.Message) error {
	a.mu.RLock()
	connected := a.connected
	a.mu.RUnlock()
	if !connected {
		return ErrNotConnected
	}

	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if m.Kind() == protocol.KindAudioChunk {
		select {
		case a.outbox <- data:
		default:
			log.Println("transport: outbox full, dropping audio chunk")
		}
		return nil
	}
	select {
	case a.outbox <- data:
		return nil
	case <-a.stopCh:
		return ErrNotConnected
	}
}

// Close ends the conversation stream and releases the socket. Safe to call
// more than once. The events channel is left open: the pumping loops may
// still be winding down when Close returns, and emit drops their events via
// stopCh instead of racing a channel close.
func (a *Agent) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.connected {
		return nil
	}
	close(a.stopCh)
	if a.conn != nil {
		_ = a.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = a.conn.Close()
	}
	a.connected = false
	a.conn = nil
	log.Println("transport: agent connection closed")
	return nil
}

func (a *Agent) touchAlive() {
	a.aliveMu.Lock()
	a.lastAlive = time.Now()
	a.aliveMu.Unlock()
}

func (a *Agent) sinceAlive() time.Duration {
	a.aliveMu.Lock()
	defer a.aliveMu.Unlock()
	return time.Since(a.lastAlive)
}

// readLoop pumps inbound frames. Pings are answered here, within the same
// receive cycle, so keepalive never waits on conversation state.
func (a *Agent) readLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("transport: recovered from panic in readLoop: %v", r)
		}
	}()
	for {
		select {
		case <-a.stopCh:
			return
		default:
		}
		a.mu.RLock()
		conn := a.conn
		a.mu.RUnlock()
		if conn == nil {
			return
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			a.emit(Event{Kind: EventDisconnected, Err: err})
			return
		}
		a.touchAlive()

		msg := protocol.Decode(data)
		switch msg.(type) {
		case protocol.Ping:
			if perr := a.Send(protocol.Pong{}); perr != nil {
				log.Printf("transport: pong failed: %v", perr)
			}
			continue
		case protocol.Pong:
			continue
		case protocol.Unknown:
			u := msg.(protocol.Unknown)
			log.Printf("transport: unknown message type %q (%d bytes), skipping", u.Type, len(u.Raw))
			continue
		}
		a.emit(Event{Kind: EventMessage, Msg: msg})
	}
}

func (a *Agent) writeLoop() {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("transport: recovered from panic in writeLoop: %v", r)
		}
	}()
	for {
		select {
		case <-a.stopCh:
			return
		case data := <-a.outbox:
			a.mu.RLock()
			conn := a.conn
			a.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Printf("transport: write failed: %v", err)
				a.emit(Event{Kind: EventDisconnected, Err: err})
				return
			}
		}
	}
}

// keepalive pings on PingInterval and declares the connection dead when
// nothing arrived for KeepaliveWindow. Dead is fatal to the session, not a
// silent retry.
func (a *Agent) keepalive() {
	ticker := time.NewTicker(PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stopCh:
			return
		case <-ticker.C:
			if a.sinceAlive() > KeepaliveWindow {
				a.emit(Event{Kind: EventDead, Err: fmt.Errorf("transport: no pong within %s", KeepaliveWindow)})
				return
			}
			if err := a.Send(protocol.Ping{}); err != nil {
				return
			}
		}
	}
}

// emit delivers an event without blocking the pumping loops forever; a
// stalled consumer loses events rather than wedging the socket.
func (a *Agent) emit(ev Event) {
	select {
	case <-a.stopCh:
	case a.events <- ev:
	default:
		log.Println("transport: event buffer full, dropping event")
	}
}
