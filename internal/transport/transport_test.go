package transport

import (
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/gorilla/websocket/websockettest"
)

type recordingHandler struct {
	mu          sync.Mutex
	connected   []string
	messages    []string
	disconnects []string
	done        chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{done: make(chan struct{}, 8)}
}

func (h *recordingHandler) OnConnect(connectionID string) {
	h.mu.Lock()
	h.connected = append(h.connected, connectionID)
	h.mu.Unlock()
}

func (h *recordingHandler) OnMessage(connectionID string, raw []byte) {
	h.mu.Lock()
	h.messages = append(h.messages, connectionID+":"+string(raw))
	h.mu.Unlock()
	h.done <- struct{}{}
}

func (h *recordingHandler) OnDisconnect(connectionID string) {
	h.mu.Lock()
	h.disconnects = append(h.disconnects, connectionID)
	h.mu.Unlock()
	h.done <- struct{}{}
}

func setShortDeadlines(t *testing.T, pong, ping time.Duration) {
	t.Helper()
	pongWait = pong
	pingInterval = ping
}

func TestHubUpgradesAndDispatchesMessages(t *testing.T) {
	handler := newRecordingHandler()
	hub := NewHub(handler)
	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?player_id=alice"
	conn, _, err := websockettest.DialIgnoringPongs(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("hello")); err != nil {
		t.Fatalf("write: %v", err)
	}

	select {
	case <-handler.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for message dispatch")
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.messages) != 1 || handler.messages[0] != "alice:hello" {
		t.Fatalf("unexpected messages: %+v", handler.messages)
	}
}

func TestHubRejectsUpgradeWithoutPlayerID(t *testing.T) {
	handler := newRecordingHandler()
	hub := NewHub(handler)
	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial without player_id to fail")
	}
	if resp != nil && resp.StatusCode != 400 {
		t.Fatalf("expected 400 status, got %d", resp.StatusCode)
	}
}

func TestHubSendDeliversToConnectedPlayer(t *testing.T) {
	handler := newRecordingHandler()
	hub := NewHub(handler)
	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?player_id=bob"
	conn, _, err := websockettest.DialIgnoringPongs(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	if err := hub.Send("bob", []byte("world")); err != nil {
		t.Fatalf("send: %v", err)
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(raw) != "world" {
		t.Fatalf("expected 'world', got %q", raw)
	}
}

func TestHubSendBinaryDeliversAsBinaryFrame(t *testing.T) {
	handler := newRecordingHandler()
	hub := NewHub(handler)
	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?player_id=dana"
	conn, _, err := websockettest.DialIgnoringPongs(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)

	if err := hub.SendBinary("dana", []byte("compressed")); err != nil {
		t.Fatalf("send: %v", err)
	}

	opcode, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if opcode != websocket.BinaryMessage {
		t.Fatalf("expected binary opcode, got %d", opcode)
	}
	if string(raw) != "compressed" {
		t.Fatalf("expected 'compressed', got %q", raw)
	}
}

func TestHubSendToUnknownConnectionReturnsError(t *testing.T) {
	hub := NewHub(newRecordingHandler())
	if err := hub.Send("ghost", []byte("x")); err == nil {
		t.Fatalf("expected error sending to unknown connection")
	}
}

// TestHubDisconnectsUnresponsivePeer exercises the exact scenario
// websockettest.DialIgnoringPongs exists for: a peer that never answers
// pings should eventually be torn down once its read deadline lapses,
// rather than sitting in the connection map forever.
func TestHubDisconnectsUnresponsivePeer(t *testing.T) {
	orig := pongWait
	origPing := pingInterval
	setShortDeadlines(t, 150*time.Millisecond, 50*time.Millisecond)
	defer setShortDeadlines(t, orig, origPing)

	handler := newRecordingHandler()
	hub := NewHub(handler)
	server := httptest.NewServer(hub)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "?player_id=carol"
	conn, _, err := websockettest.DialIgnoringPongs(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	select {
	case <-handler.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for unresponsive peer to be disconnected")
	}

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.disconnects) != 1 || handler.disconnects[0] != "carol" {
		t.Fatalf("expected carol to be disconnected, got %+v", handler.disconnects)
	}
}
