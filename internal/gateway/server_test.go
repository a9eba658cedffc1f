package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHealthEndpoint(t *testing.T) {
	s := NewServer(Config{}, NewEventHub())
	server := httptest.NewServer(s.BuildMux())
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestWebhookMountedWhenConfigured(t *testing.T) {
	s := NewServer(Config{}, NewEventHub())
	called := false
	s.SetWebhookHandler(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	})

	server := httptest.NewServer(s.BuildMux())
	defer server.Close()

	resp, err := http.Post(server.URL+"/webhooks/whatsapp", "application/json", strings.NewReader("{}"))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if !called {
		t.Error("webhook handler not invoked")
	}
}

func TestEventFeedDeliversPublishedEvents(t *testing.T) {
	hub := NewEventHub()
	s := NewServer(Config{}, hub)
	server := httptest.NewServer(s.BuildMux())
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	// Subscription registers synchronously in the upgrade handler; give the
	// handler a moment to run before publishing.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	hub.Publish("message.admitted", map[string]interface{}{"message_id": "m1"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatal(err)
	}
	if event.Event != "message.admitted" {
		t.Errorf("event = %q", event.Event)
	}
	if event.Fields["message_id"] != "m1" {
		t.Errorf("fields = %v", event.Fields)
	}
}
