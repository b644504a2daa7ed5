package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jogardn/cargo-lifecycle/internal/logging"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		server.Close()
		cancel()
	})
	return hub, "ws" + strings.TrimPrefix(server.URL, "http")
}

func dial(t *testing.T, hub *Hub, url string) *websocket.Conn {
	t.Helper()
	before := hub.ClientCount()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	waitFor(t, func() bool { return hub.ClientCount() > before })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func read(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("failed to read message: %v", err)
	}
	return msg
}

func TestBroadcastReachesFollowers(t *testing.T) {
	hub, url := startHub(t)
	order := dial(t, hub, url+"?topics=order:100001")
	all := dial(t, hub, url)

	hub.Broadcast("status_changed", map[string]string{"to": "IN_TRANSIT"}, "order:100002")
	hub.Broadcast("status_changed", map[string]string{"to": "DELIVERED"}, "order:100001")

	if msg := read(t, order); msg.Topic != "order:100001" || msg.Type != "status_changed" {
		t.Errorf("unexpected message for follower: %+v", msg)
	}
	if msg := read(t, all); msg.Topic != "order:100002" {
		t.Errorf("expected first broadcast on unfiltered client, got %+v", msg)
	}
	if msg := read(t, all); msg.Topic != "order:100001" {
		t.Errorf("expected second broadcast on unfiltered client, got %+v", msg)
	}
}

func TestSubscribeCommand(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url+"?topics=order:1")

	if err := conn.WriteJSON(command{Action: "subscribe", Topic: "shipment:7"}); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		hub.mutex.RLock()
		defer hub.mutex.RUnlock()
		for c := range hub.clients {
			if c.follows("shipment:7") {
				return true
			}
		}
		return false
	})

	hub.Broadcast("shipment_position", map[string]float64{"latitude": 43.2}, "shipment:7")
	if msg := read(t, conn); msg.Type != "shipment_position" {
		t.Errorf("unexpected message %+v", msg)
	}
}

func TestDisconnectUnregisters(t *testing.T) {
	hub, url := startHub(t)
	conn := dial(t, hub, url)
	conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}
