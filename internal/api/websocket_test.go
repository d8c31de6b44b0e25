package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JayjayR89/ai-live-cam/internal/camera"
	"github.com/JayjayR89/ai-live-cam/internal/metrics"
	"github.com/JayjayR89/ai-live-cam/internal/notify"
)

func runHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func newTestClient(hub *Hub, subs map[string]bool) *Client {
	return &Client{
		hub:           hub,
		send:          make(chan []byte, 256),
		subscriptions: subs,
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case data := <-c.send:
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("Expected message on client.send channel")
	}
	return Message{}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub.clients == nil || hub.broadcast == nil || hub.register == nil || hub.unregister == nil {
		t.Fatal("Hub fields should be initialized")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("Expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestHub_Run_RegisterUnregister(t *testing.T) {
	hub := runHub(t)
	m := metrics.New()
	hub.SetMetrics(m)

	client := newTestClient(hub, map[string]bool{"*": true})

	hub.register <- client
	time.Sleep(10 * time.Millisecond)
	if hub.ClientCount() != 1 {
		t.Errorf("Expected 1 client, got %d", hub.ClientCount())
	}
	if m.WebSocketClients.Load() != 1 {
		t.Errorf("Expected client gauge 1, got %d", m.WebSocketClients.Load())
	}

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)
	if hub.ClientCount() != 0 {
		t.Errorf("Expected 0 clients, got %d", hub.ClientCount())
	}
	if m.WebSocketClients.Load() != 0 {
		t.Errorf("Expected client gauge 0, got %d", m.WebSocketClients.Load())
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := runHub(t)
	client := newTestClient(hub, map[string]bool{"*": true})
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(ConfigChangedMessage("/etc/livecam/config.yaml"))

	msg := receive(t, client)
	if msg.Type != MessageTypeConfigChanged {
		t.Errorf("Expected type %s, got %s", MessageTypeConfigChanged, msg.Type)
	}
	if msg.Timestamp.IsZero() {
		t.Error("Expected the hub to stamp the message")
	}
}

func TestHub_BroadcastToCamera(t *testing.T) {
	hub := runHub(t)

	front := newTestClient(hub, map[string]bool{"front": true})
	all := newTestClient(hub, map[string]bool{"*": true})
	back := newTestClient(hub, map[string]bool{"back": true})

	hub.register <- front
	hub.register <- all
	hub.register <- back
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToCamera("front", Message{Type: MessageTypeDetection, Data: "frame"})

	receive(t, front)
	receive(t, all)
	select {
	case <-back.send:
		t.Error("A client of another camera should not receive the message")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_BroadcastToCamera_SlowClient(t *testing.T) {
	hub := runHub(t)
	m := metrics.New()
	hub.SetMetrics(m)

	slow := &Client{hub: hub, send: make(chan []byte, 1), subscriptions: map[string]bool{"front": true}}
	hub.register <- slow
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToCamera("front", Message{Type: MessageTypeDetection, Data: 1})
	hub.BroadcastToCamera("front", Message{Type: MessageTypeDetection, Data: 2})

	msg := receive(t, slow)
	if msg.Data != float64(1) {
		t.Errorf("Expected the first message to be kept, got %v", msg.Data)
	}
	if got := m.MessagesDropped.Load(); got != 1 {
		t.Errorf("Expected 1 dropped message, got %d", got)
	}
}

func TestHubBroadcaster(t *testing.T) {
	hub := runHub(t)
	b := NewHubBroadcaster(hub)

	client := newTestClient(hub, map[string]bool{"front": true})
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	if b.ClientCount() != 1 {
		t.Errorf("Expected 1 client, got %d", b.ClientCount())
	}

	b.Broadcast(map[string]interface{}{"type": "toast", "data": map[string]string{"title": "hi"}})
	if msg := receive(t, client); msg.Type != MessageTypeToast {
		t.Errorf("Expected toast, got %s", msg.Type)
	}

	b.BroadcastToCamera("front", map[string]interface{}{"type": "detection"})
	if msg := receive(t, client); msg.Type != MessageTypeDetection {
		t.Errorf("Expected detection, got %s", msg.Type)
	}
}

func TestHub_HandleWebSocket(t *testing.T) {
	hub := runHub(t)

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to connect to WebSocket: %v", err)
	}
	defer ws.Close()

	time.Sleep(50 * time.Millisecond)
	if hub.ClientCount() != 1 {
		t.Errorf("Expected 1 client, got %d", hub.ClientCount())
	}

	if err := ws.WriteJSON(Message{Type: MessageTypePing}); err != nil {
		t.Fatalf("Failed to send ping: %v", err)
	}

	_ = ws.SetReadDeadline(time.Now().Add(time.Second))
	var response Message
	if err := ws.ReadJSON(&response); err != nil {
		t.Fatalf("Failed to read pong: %v", err)
	}
	if response.Type != MessageTypePong {
		t.Errorf("Expected pong message, got %s", response.Type)
	}
}

func TestClient_HandleMessage_Subscriptions(t *testing.T) {
	client := newTestClient(NewHub(), map[string]bool{})

	sub, _ := json.Marshal(Message{Type: MessageTypeSubscribe, Data: []interface{}{"front", "back"}})
	client.handleMessage(sub)
	if !client.subscribed("front") || !client.subscribed("back") {
		t.Error("Expected subscriptions to front and back")
	}

	unsub, _ := json.Marshal(Message{Type: MessageTypeUnsubscribe, Data: []interface{}{"front"}})
	client.handleMessage(unsub)
	if client.subscribed("front") {
		t.Error("Expected front to be unsubscribed")
	}
	if !client.subscribed("back") {
		t.Error("Expected back to still be subscribed")
	}

	// Should not panic on invalid JSON
	client.handleMessage([]byte("invalid json"))
}

func TestClient_HandleMessage_Permission(t *testing.T) {
	hub := NewHub()
	var mu sync.Mutex
	var got []notify.Permission
	hub.OnPermission(func(p notify.Permission) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})
	client := newTestClient(hub, map[string]bool{"*": true})

	for _, value := range []string{"granted", "denied", "bogus"} {
		data, _ := json.Marshal(Message{Type: MessageTypePermission, Data: value})
		client.handleMessage(data)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []notify.Permission{notify.PermissionGranted, notify.PermissionDenied, notify.PermissionDefault}
	if len(got) != len(want) {
		t.Fatalf("Expected %d reports, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Report %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}

func TestCameraStateMessage(t *testing.T) {
	msg := CameraStateMessage(camera.ShellState{Current: "front", CanFlip: true})
	if msg.Type != MessageTypeCameraState {
		t.Errorf("Expected camera_state, got %s", msg.Type)
	}
	state, ok := msg.Data.(camera.ShellState)
	if !ok || state.Current != "front" || !state.CanFlip {
		t.Errorf("Unexpected data: %+v", msg.Data)
	}
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		origin string
		host   string
		want   bool
	}{
		{"", "cam.local:8080", true},
		{"http://cam.local:8080", "cam.local:8080", true},
		{"http://localhost:3000", "cam.local:8080", true},
		{"http://127.0.0.1:5173", "cam.local:8080", true},
		{"https://evil.example", "cam.local:8080", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/ws", nil)
		req.Host = tt.host
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := checkOrigin(req); got != tt.want {
			t.Errorf("checkOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
