package api

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/JayjayR89/ai-live-cam/internal/core"
	"github.com/JayjayR89/ai-live-cam/internal/notify"
)

// Forwarder relays bus events the web clients act on to the websocket hub
type Forwarder struct {
	bus    *core.EventBus
	hub    *Hub
	logger *slog.Logger
	subs   []string
}

// NewForwarder creates a forwarder between bus and hub
func NewForwarder(bus *core.EventBus, hub *Hub, logger *slog.Logger) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forwarder{
		bus:    bus,
		hub:    hub,
		logger: logger.With("component", "forwarder"),
	}
}

// Start subscribes to the forwarded subjects
func (f *Forwarder) Start() error {
	routes := map[string]func(json.RawMessage){
		notify.SubjectShow: func(data json.RawMessage) {
			f.hub.Broadcast(Message{Type: MessageTypeNotificationShow, Data: data})
		},
		notify.SubjectClose: func(data json.RawMessage) {
			f.hub.Broadcast(Message{Type: MessageTypeNotificationClose, Data: data})
		},
		core.SubjectConfigChanged: func(data json.RawMessage) {
			var evt core.ConfigChangedEvent
			if err := json.Unmarshal(data, &evt); err != nil {
				f.logger.Warn("Invalid config changed event", "error", err)
				return
			}
			f.hub.Broadcast(ConfigChangedMessage(evt.Path))
		},
	}

	for subject, fn := range routes {
		fn := fn
		if _, err := f.bus.SubscribeJSON(subject, func(_ string, data json.RawMessage) {
			fn(data)
		}); err != nil {
			f.Stop()
			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}
		f.subs = append(f.subs, subject)
	}

	f.logger.Debug("Forwarding bus events", "subjects", f.subs)
	return nil
}

// Stop removes the subscriptions
func (f *Forwarder) Stop() {
	for _, subject := range f.subs {
		f.bus.Unsubscribe(subject)
	}
	f.subs = nil
}
