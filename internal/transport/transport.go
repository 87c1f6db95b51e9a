// Package transport upgrades inbound HTTP requests to websocket connections
// and runs the per-connection read/write pump. It is adapted from the
// teacher's root Broker/Client pair: one buffered send channel per
// connection so a slow client never blocks the sender, a reader goroutine
// that feeds every frame to a Handler, and a writer goroutine that
// interleaves outbound frames with a keepalive ping ticker.
//
// Unlike the teacher's Broker, which relays every frame to every other
// client, this Hub addresses connections individually by a stable
// connectionId (spec §6: "a duplex per-connection channel with a stable
// connectionId"), derived here from the player_id query parameter — no
// cryptographic authentication is in scope (spec Non-goals), mirroring the
// teacher's allowAllAuthenticator rather than its HMAC path.
package transport

import (
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"pongserver/internal/input"
	"pongserver/internal/logging"
)

const (
	sendBufferSize = 256
	maxMessageSize = 4096
)

// writeWait, pongWait and pingInterval are vars rather than consts so tests
// can shrink them to exercise the unresponsive-peer disconnect path without
// waiting out the production timeouts.
var (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 30 * time.Second
)

// Handler receives lifecycle and message events for a connection. All
// methods are invoked from the connection's own goroutines and must not
// block for long — the Hub holds no lock while calling them.
type Handler interface {
	OnConnect(connectionID string)
	OnMessage(connectionID string, raw []byte)
	OnDisconnect(connectionID string)
}

// outboundFrame pairs a websocket opcode with its payload so the writer can
// send both plain-text and gzip-compressed (binary) frames through the same
// queue.
type outboundFrame struct {
	opcode  int
	payload []byte
}

// connection wraps one upgraded websocket with a buffered outbound queue.
type connection struct {
	id   string
	conn *websocket.Conn
	send chan outboundFrame
	seq  uint64
}

// Hub tracks live connections by id and dispatches inbound frames to a
// Handler. It implements broadcaster.Sender.
type Hub struct {
	upgrader websocket.Upgrader
	log      *logging.Logger
	gate     *input.Gate

	handlerMu sync.RWMutex
	handler   Handler

	mu    sync.RWMutex
	conns map[string]*connection
}

// Option customises Hub construction.
type Option func(*Hub)

// WithAllowedOrigins restricts the websocket upgrade's Origin check to the
// given list; an empty list allows every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		if len(origins) == 0 {
			return
		}
		allowed := make(map[string]struct{}, len(origins))
		for _, o := range origins {
			allowed[strings.ToLower(strings.TrimSpace(o))] = struct{}{}
		}
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := strings.ToLower(r.Header.Get("Origin"))
			if origin == "" {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	}
}

// WithLogger overrides the hub's logger.
func WithLogger(log *logging.Logger) Option {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// WithGate runs every inbound frame through a flood/sequence gate before it
// reaches Handler.OnMessage, keyed by connection id.
func WithGate(gate *input.Gate) Option {
	return func(h *Hub) {
		if gate != nil {
			h.gate = gate
		}
	}
}

// NewHub constructs a Hub that dispatches to handler. handler may be nil at
// construction time and supplied later via SetHandler — useful when handler
// itself depends on a Sender the Hub provides, a circular dependency broken
// by wiring the Hub first and binding the handler once both sides exist.
func NewHub(handler Handler, opts ...Option) *Hub {
	h := &Hub{
		handler: handler,
		log:     logging.L(),
		conns:   make(map[string]*connection),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetHandler binds (or replaces) the Handler frames are dispatched to.
func (h *Hub) SetHandler(handler Handler) {
	h.handlerMu.Lock()
	h.handler = handler
	h.handlerMu.Unlock()
}

func (h *Hub) dispatchHandler() Handler {
	h.handlerMu.RLock()
	defer h.handlerMu.RUnlock()
	return h.handler
}

// ServeHTTP upgrades the request to a websocket connection identified by
// the player_id query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	connectionID := strings.TrimSpace(r.URL.Query().Get("player_id"))
	if connectionID == "" {
		http.Error(w, "player_id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", logging.String("connection_id", connectionID), logging.Error(err))
		return
	}

	c := &connection{id: connectionID, conn: conn, send: make(chan outboundFrame, sendBufferSize)}
	h.mu.Lock()
	if existing, ok := h.conns[connectionID]; ok {
		close(existing.send)
		existing.conn.Close()
	}
	h.conns[connectionID] = c
	h.mu.Unlock()

	if handler := h.dispatchHandler(); handler != nil {
		handler.OnConnect(connectionID)
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) readPump(c *connection) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if h.gate != nil {
			c.seq++
			decision := h.gate.Evaluate(input.Frame{ClientID: c.id, SequenceID: c.seq, SentAt: time.Now()})
			if !decision.Accepted {
				h.log.Debug("dropping gated frame", logging.String("connection_id", c.id), logging.String("reason", decision.Reason.String()))
				continue
			}
		}
		if handler := h.dispatchHandler(); handler != nil {
			handler.OnMessage(c.id, raw)
		}
	}
}

func (h *Hub) writePump(c *connection) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				_ = c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(frame.opcode, frame.payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	if current, ok := h.conns[c.id]; ok && current == c {
		delete(h.conns, c.id)
		close(c.send)
	}
	h.mu.Unlock()
	if h.gate != nil {
		h.gate.Forget(c.id)
	}
	if handler := h.dispatchHandler(); handler != nil {
		handler.OnDisconnect(c.id)
	}
}

var errNotConnected = errors.New("connection not found")

func (h *Hub) enqueue(connectionID string, frame outboundFrame) error {
	h.mu.RLock()
	c, ok := h.conns[connectionID]
	h.mu.RUnlock()
	if !ok {
		return errNotConnected
	}
	select {
	case c.send <- frame:
		return nil
	default:
		h.unregister(c)
		return errors.New("send buffer full, connection dropped")
	}
}

// Send enqueues raw bytes for delivery to connectionId as a text frame,
// without blocking. If the connection's outbound buffer is full, the slow
// client is disconnected rather than letting the queue grow unbounded
// (matches the teacher's broadcast: "select default: close & delete").
func (h *Hub) Send(connectionID string, raw []byte) error {
	return h.enqueue(connectionID, outboundFrame{opcode: websocket.TextMessage, payload: raw})
}

// SendBinary enqueues raw bytes for delivery to connectionId as a binary
// frame, used by the broadcaster for gzip-compressed payloads (spec §1
// domain stack: "compress outbound GameUpdate frames above a size
// threshold"). A client distinguishes the two by websocket opcode.
func (h *Hub) SendBinary(connectionID string, raw []byte) error {
	return h.enqueue(connectionID, outboundFrame{opcode: websocket.BinaryMessage, payload: raw})
}

// Connected reports whether connectionId currently has a live connection.
func (h *Hub) Connected(connectionID string) bool {
	h.mu.RLock()
	_, ok := h.conns[connectionID]
	h.mu.RUnlock()
	return ok
}
