package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"voice-platform/internal/events"

	"github.com/gorilla/websocket"
)

func dialHub(t *testing.T, hub *Hub, userID string) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.Serve(userID, w, r)
	}))
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}
	return conn, func() {
		_ = conn.Close()
		srv.Close()
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met")
}

func TestHub_SendDeliversToConnectedUser(t *testing.T) {
	hub := NewHub(nil)
	conn, done := dialHub(t, hub, "u1")
	defer done()

	waitFor(t, func() bool { return hub.IsConnected("u1") })

	ok := hub.Send("u1", events.Event{Type: events.TypeIncomingCall, CallID: "c1", FromUserID: "u2", CallType: "voice"})
	if !ok {
		t.Fatalf("expected send to succeed")
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Event string       `json:"event"`
		Data  events.Event `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Event != "incoming_call" || msg.Data.CallID != "c1" || msg.Data.FromUserID != "u2" {
		t.Fatalf("unexpected frame %+v", msg)
	}
}

func TestHub_SendToOfflineUser(t *testing.T) {
	hub := NewHub(nil)
	if hub.IsConnected("nobody") {
		t.Fatalf("expected not connected")
	}
	if hub.Send("nobody", events.Event{Type: events.TypeCallStatusChange}) {
		t.Fatalf("expected send to report false")
	}
}

func TestHub_UnregistersOnClose(t *testing.T) {
	hub := NewHub(nil)
	conn, done := dialHub(t, hub, "u1")
	defer done()

	waitFor(t, func() bool { return hub.IsConnected("u1") })
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = conn.Close()

	waitFor(t, func() bool { return !hub.IsConnected("u1") })
	if hub.Connections() != 0 {
		t.Fatalf("expected no connections")
	}
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	hub := NewHub(nil)
	conn, done := dialHub(t, hub, "u1")
	defer done()
	waitFor(t, func() bool { return hub.IsConnected("u1") })

	hub.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
	if hub.IsConnected("u1") || hub.Connections() != 0 {
		t.Fatalf("expected no connections after close")
	}
	if hub.Send("u1", events.Event{Type: events.TypeCallStatusChange}) {
		t.Fatalf("send after close must report false")
	}

	late, doneLate := dialHub(t, hub, "u2")
	defer doneLate()
	_ = late.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := late.ReadMessage(); err == nil {
		t.Fatalf("expected connection after close to be refused")
	}
	if hub.IsConnected("u2") {
		t.Fatalf("late client must not register")
	}
}

func TestHub_PingControlFrame(t *testing.T) {
	hub := NewHub(nil)
	conn, done := dialHub(t, hub, "u1")
	defer done()

	if err := conn.WriteJSON(map[string]string{"action": "ping"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Event != "pong" {
		t.Fatalf("expected pong, got %+v", msg)
	}
}

func TestHostWithoutPort(t *testing.T) {
	cases := map[string]string{
		"http://example.com:8080": "example.com",
		"example.com:443":         "example.com",
		"localhost":               "localhost",
	}
	for in, want := range cases {
		if got := hostWithoutPort(in); got != want {
			t.Fatalf("%s: got %q want %q", in, got, want)
		}
	}
}
