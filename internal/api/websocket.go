// Package api provides HTTP API handlers and WebSocket support
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/JayjayR89/ai-live-cam/internal/camera"
	"github.com/JayjayR89/ai-live-cam/internal/metrics"
	"github.com/JayjayR89/ai-live-cam/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// checkOrigin accepts same-host pages and localhost during development
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	host := u.Hostname()
	return host == "localhost" || host == "127.0.0.1"
}

// MessageType represents the type of WebSocket message
type MessageType string

const (
	MessageTypeCameraState       MessageType = "camera_state"
	MessageTypeDetection         MessageType = "detection"
	MessageTypeDetectionState    MessageType = "detection_state"
	MessageTypeToast             MessageType = "toast"
	MessageTypeNotification      MessageType = "notification"
	MessageTypeNotificationShow  MessageType = "notification_show"
	MessageTypeNotificationClose MessageType = "notification_close"
	MessageTypePermission        MessageType = "notification_permission"
	MessageTypeConfigChanged     MessageType = "config_changed"
	MessageTypePing              MessageType = "ping"
	MessageTypePong              MessageType = "pong"
	MessageTypeSubscribe         MessageType = "subscribe"
	MessageTypeUnsubscribe       MessageType = "unsubscribe"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// Client represents a WebSocket client
type Client struct {
	hub           *Hub
	conn          *websocket.Conn
	send          chan []byte
	mu            sync.RWMutex
	subscriptions map[string]bool // camera IDs to subscribe to, "*" for all
}

func (c *Client) subscribed(cameraID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subscriptions["*"] || c.subscriptions[cameraID]
}

// Hub maintains the set of active clients and broadcasts messages
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *slog.Logger

	onPermission func(notify.Permission)
	metrics      *metrics.Metrics
}

// NewHub creates a new WebSocket hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     slog.Default().With("component", "websocket-hub"),
	}
}

// OnPermission registers the callback for permissions reported by clients
func (h *Hub) OnPermission(fn func(notify.Permission)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onPermission = fn
}

// SetMetrics makes the hub report its client count
func (h *Hub) SetMetrics(m *metrics.Metrics) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.metrics = m
}

func (h *Hub) countLocked() {
	if h.metrics != nil {
		h.metrics.WebSocketClients.Store(int64(len(h.clients)))
	}
}

// Run starts the hub's main loop. It returns when ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.countLocked()
			h.mu.Unlock()
			h.logger.Debug("Client connected", "total_clients", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.countLocked()
			h.mu.Unlock()
			h.logger.Debug("Client disconnected", "total_clients", len(h.clients))

		case message := <-h.broadcast:
			h.fanOut(message, func(*Client) bool { return true })
		}
	}
}

// fanOut queues data on every matching client and never blocks on a slow one
func (h *Hub) fanOut(data []byte, match func(*Client) bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := 0
	for client := range h.clients {
		if !match(client) {
			continue
		}
		select {
		case client.send <- data:
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.drop(dropped)
	}
}

func (h *Hub) drop(n int) {
	if h.metrics != nil {
		h.metrics.MessagesDropped.Add(uint64(n))
	}
	h.logger.Debug("Client queue full, message skipped", "clients", n)
}

func (h *Hub) encode(v interface{}) ([]byte, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to marshal websocket message", "error", err)
		return nil, false
	}
	return data, true
}

// enqueue hands data to the run loop for delivery to all clients
func (h *Hub) enqueue(v interface{}) {
	data, ok := h.encode(v)
	if !ok {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.mu.RLock()
		h.drop(len(h.clients))
		h.mu.RUnlock()
	}
}

// sendToCamera delivers v to clients following cameraID or all cameras
func (h *Hub) sendToCamera(cameraID string, v interface{}) {
	data, ok := h.encode(v)
	if !ok {
		return
	}
	h.fanOut(data, func(c *Client) bool { return c.subscribed(cameraID) })
}

// Broadcast stamps msg and sends it to all connected clients
func (h *Hub) Broadcast(msg Message) {
	msg.Timestamp = time.Now()
	h.enqueue(msg)
}

// BroadcastToCamera stamps msg and sends it to the followers of a camera
func (h *Hub) BroadcastToCamera(cameraID string, msg Message) {
	msg.Timestamp = time.Now()
	h.sendToCamera(cameraID, msg)
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HubBroadcaster lets the notifier and the detection service push
// pre-built payloads through the hub without importing api types
type HubBroadcaster struct {
	hub *Hub
}

// NewHubBroadcaster wraps hub
func NewHubBroadcaster(hub *Hub) *HubBroadcaster {
	return &HubBroadcaster{hub: hub}
}

func (b *HubBroadcaster) Broadcast(msg interface{}) { b.hub.enqueue(msg) }

func (b *HubBroadcaster) BroadcastToCamera(cameraID string, msg interface{}) {
	b.hub.sendToCamera(cameraID, msg)
}

func (b *HubBroadcaster) ClientCount() int { return b.hub.ClientCount() }

// HandleWebSocket handles WebSocket connections
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, 256),
		subscriptions: map[string]bool{"*": true}, // Subscribe to all by default
	}

	h.register <- client

	// Start goroutines for reading and writing
	go client.writePump()
	go client.readPump()
}

// readPump pumps messages from the WebSocket connection to the hub
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Error("WebSocket read error", "error", err)
			}
			break
		}

		// Handle client messages (subscriptions, pings)
		c.handleMessage(message)
	}
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// Batch pending messages
			n := len(c.send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage handles incoming messages from the client
func (c *Client) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	switch msg.Type {
	case MessageTypePing:
		// Respond with pong
		response := Message{Type: MessageTypePong, Timestamp: time.Now()}
		if data, err := json.Marshal(response); err == nil {
			select {
			case c.send <- data:
			default:
			}
		}

	case MessageTypeSubscribe:
		// Subscribe to camera(s)
		if cameras, ok := msg.Data.([]interface{}); ok {
			c.mu.Lock()
			for _, cam := range cameras {
				if cameraID, ok := cam.(string); ok {
					c.subscriptions[cameraID] = true
				}
			}
			c.mu.Unlock()
		}

	case MessageTypeUnsubscribe:
		// Unsubscribe from camera(s)
		if cameras, ok := msg.Data.([]interface{}); ok {
			c.mu.Lock()
			for _, cam := range cameras {
				if cameraID, ok := cam.(string); ok {
					delete(c.subscriptions, cameraID)
				}
			}
			c.mu.Unlock()
		}

	case MessageTypePermission:
		// Client reports the result of Notification.requestPermission
		if value, ok := msg.Data.(string); ok {
			c.hub.mu.RLock()
			fn := c.hub.onPermission
			c.hub.mu.RUnlock()
			if fn != nil {
				fn(notify.ParsePermission(value))
			}
		}
	}
}

// CameraStateMessage creates a camera shell state message
func CameraStateMessage(state camera.ShellState) Message {
	return Message{
		Type: MessageTypeCameraState,
		Data: state,
	}
}

// ConfigChangedMessage tells clients that the configuration was reloaded
func ConfigChangedMessage(path string) Message {
	return Message{
		Type: MessageTypeConfigChanged,
		Data: map[string]interface{}{
			"path": path,
		},
	}
}
