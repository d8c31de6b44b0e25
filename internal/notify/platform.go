package notify

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Broadcaster sends a message to every connected web client
type Broadcaster interface {
	Broadcast(msg interface{})
	ClientCount() int
}

// Message types sent to clients
const (
	MessageTypeNotification      = "notification"
	MessageTypePermissionRequest = "notification_permission_request"
)

// ClientPlatform is the Platform of the connected web clients. Clients report
// their permission back (over the API or the websocket); requests are
// forwarded to them through the broadcaster.
type ClientPlatform struct {
	mu         sync.Mutex
	hub        Broadcaster
	permission Permission
	waiters    []chan Permission
	timeout    time.Duration
}

// NewClientPlatform creates a platform with the permission still undecided.
// timeout bounds how long RequestPermission waits for a client answer.
func NewClientPlatform(hub Broadcaster, timeout time.Duration) *ClientPlatform {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClientPlatform{
		hub:        hub,
		permission: PermissionDefault,
		timeout:    timeout,
	}
}

// Supported reports whether a client channel exists
func (p *ClientPlatform) Supported() bool {
	return p.hub != nil
}

// Permission returns the last permission reported by a client
func (p *ClientPlatform) Permission() Permission {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.permission
}

// SetPermission records the permission reported by a client and answers
// pending requests
func (p *ClientPlatform) SetPermission(perm Permission) {
	p.mu.Lock()
	p.permission = perm
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, w := range waiters {
		w <- perm
	}
}

// RequestPermission asks the clients for permission. A decided permission is
// returned immediately; otherwise it waits for an answer, the timeout or ctx.
func (p *ClientPlatform) RequestPermission(ctx context.Context) (Permission, error) {
	p.mu.Lock()
	if p.permission != PermissionDefault {
		perm := p.permission
		p.mu.Unlock()
		return perm, nil
	}
	if p.hub.ClientCount() == 0 {
		p.mu.Unlock()
		return PermissionDefault, fmt.Errorf("no client connected")
	}
	ch := make(chan Permission, 1)
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	p.hub.Broadcast(clientMessage(MessageTypePermissionRequest, nil))

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()

	select {
	case perm := <-ch:
		return perm, nil
	case <-timer.C:
	case <-ctx.Done():
	}

	p.removeWaiter(ch)
	return p.Permission(), nil
}

// Display shows a notification directly on the clients
func (p *ClientPlatform) Display(ctx context.Context, n Notification) error {
	if p.hub.ClientCount() == 0 {
		return fmt.Errorf("no client connected")
	}
	p.hub.Broadcast(clientMessage(MessageTypeNotification, n))
	return nil
}

func (p *ClientPlatform) removeWaiter(ch chan Permission) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, w := range p.waiters {
		if w == ch {
			p.waiters = append(p.waiters[:i], p.waiters[i+1:]...)
			return
		}
	}
}

func clientMessage(msgType string, data interface{}) map[string]interface{} {
	msg := map[string]interface{}{
		"type":      msgType,
		"timestamp": time.Now(),
	}
	if data != nil {
		msg["data"] = data
	}
	return msg
}
