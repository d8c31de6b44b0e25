package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type fakeHub struct {
	mu       sync.Mutex
	clients  int
	messages []map[string]interface{}
	onSend   func(msg map[string]interface{})
}

func (h *fakeHub) Broadcast(msg interface{}) {
	m := msg.(map[string]interface{})
	h.mu.Lock()
	h.messages = append(h.messages, m)
	onSend := h.onSend
	h.mu.Unlock()
	if onSend != nil {
		onSend(m)
	}
}

func (h *fakeHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clients
}

func (h *fakeHub) sent() []map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]map[string]interface{}(nil), h.messages...)
}

func TestClientPlatform_RequestAnswered(t *testing.T) {
	hub := &fakeHub{clients: 1}
	p := NewClientPlatform(hub, time.Second)
	hub.onSend = func(msg map[string]interface{}) {
		if msg["type"] == MessageTypePermissionRequest {
			go p.SetPermission(PermissionGranted)
		}
	}

	perm, err := p.RequestPermission(context.Background())
	if err != nil {
		t.Fatalf("RequestPermission failed: %v", err)
	}
	if perm != PermissionGranted {
		t.Errorf("Expected granted, got %s", perm)
	}
	if p.Permission() != PermissionGranted {
		t.Error("Permission should be remembered")
	}

	// Decided permission is returned without asking again
	before := len(hub.sent())
	if perm, _ := p.RequestPermission(context.Background()); perm != PermissionGranted {
		t.Errorf("Expected granted, got %s", perm)
	}
	if len(hub.sent()) != before {
		t.Error("No prompt expected once permission is decided")
	}
}

func TestClientPlatform_RequestTimesOut(t *testing.T) {
	hub := &fakeHub{clients: 1}
	p := NewClientPlatform(hub, 20*time.Millisecond)

	perm, err := p.RequestPermission(context.Background())
	if err != nil {
		t.Fatalf("RequestPermission failed: %v", err)
	}
	if perm != PermissionDefault {
		t.Errorf("Expected default after timeout, got %s", perm)
	}
}

func TestClientPlatform_RequestWithoutClients(t *testing.T) {
	p := NewClientPlatform(&fakeHub{}, time.Second)

	if _, err := p.RequestPermission(context.Background()); err == nil {
		t.Error("Expected error without connected clients")
	}
}

func TestClientPlatform_Display(t *testing.T) {
	hub := &fakeHub{clients: 2}
	p := NewClientPlatform(hub, time.Second)

	if err := p.Display(context.Background(), Notification{Title: "Hi", Tag: DefaultTag}); err != nil {
		t.Fatalf("Display failed: %v", err)
	}

	sent := hub.sent()
	if len(sent) != 1 || sent[0]["type"] != MessageTypeNotification {
		t.Fatalf("Unexpected messages: %v", sent)
	}
	if n, ok := sent[0]["data"].(Notification); !ok || n.Title != "Hi" {
		t.Errorf("Unexpected payload: %v", sent[0]["data"])
	}

	hub.clients = 0
	if err := p.Display(context.Background(), Notification{Title: "Hi"}); err == nil {
		t.Error("Expected error without connected clients")
	}
}

func TestNotifier_WithClientPlatform(t *testing.T) {
	hub := &fakeHub{clients: 1}
	p := NewClientPlatform(hub, time.Second)
	n := New(Config{Platform: p})

	n.NotifyInstallPrompt(context.Background())
	if len(hub.sent()) != 0 {
		t.Fatal("Nothing should be sent before permission is granted")
	}

	p.SetPermission(PermissionGranted)
	n.NotifyInstallPrompt(context.Background())
	if len(hub.sent()) != 1 {
		t.Errorf("Expected 1 message, got %d", len(hub.sent()))
	}
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads []interface{}
	err      error
}

func (p *fakePublisher) Publish(subject string, data interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

func TestBusRegistration(t *testing.T) {
	bus := &fakePublisher{}
	r := NewBusRegistration(bus)
	ctx := context.Background()

	_ = r.Show(ctx, Notification{Title: "a", Tag: "error"})
	_ = r.Show(ctx, Notification{Title: "b", Tag: "object-detected"})
	_ = r.Show(ctx, Notification{Title: "c", Tag: "error"})

	all, _ := r.List(ctx, "")
	if len(all) != 2 {
		t.Fatalf("Same tag should replace, expected 2 active, got %d", len(all))
	}
	errs, _ := r.List(ctx, "error")
	if len(errs) != 1 || errs[0].Title != "c" {
		t.Errorf("Expected the latest error notification, got %+v", errs)
	}
	if errs[0].ID == "" {
		t.Error("Notification should get an id")
	}

	if err := r.Close(ctx, "error"); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	all, _ = r.List(ctx, "")
	if len(all) != 1 || all[0].Tag != "object-detected" {
		t.Errorf("Unexpected active list after close: %+v", all)
	}

	if bus.subjects[len(bus.subjects)-1] != SubjectClose {
		t.Errorf("Expected close to be published, got %v", bus.subjects)
	}
	req := bus.payloads[len(bus.payloads)-1].(CloseRequest)
	if req.Tag != "error" || len(req.IDs) != 1 {
		t.Errorf("Unexpected close request: %+v", req)
	}

	// Nothing left with that tag, nothing published
	published := len(bus.subjects)
	_ = r.Close(ctx, "error")
	if len(bus.subjects) != published {
		t.Error("Closing an empty tag should not publish")
	}
}

func TestBusRegistration_CapsActive(t *testing.T) {
	bus := &fakePublisher{}
	r := NewBusRegistration(bus)
	ctx := context.Background()

	for i := 0; i < MaxActive+3; i++ {
		if err := r.Show(ctx, Notification{Title: "n", Tag: fmt.Sprintf("custom-%d", i)}); err != nil {
			t.Fatalf("Show failed: %v", err)
		}
	}

	all, _ := r.List(ctx, "")
	if len(all) != MaxActive {
		t.Fatalf("Expected %d active, got %d", MaxActive, len(all))
	}
	if all[0].Tag != "custom-3" || all[len(all)-1].Tag != fmt.Sprintf("custom-%d", MaxActive+2) {
		t.Errorf("Expected the oldest to be evicted, got %s .. %s", all[0].Tag, all[len(all)-1].Tag)
	}

	closed := 0
	for i, subject := range bus.subjects {
		if subject == SubjectClose {
			closed += len(bus.payloads[i].(CloseRequest).IDs)
		}
	}
	if closed != 3 {
		t.Errorf("Expected 3 evicted notifications to be closed, got %d", closed)
	}
}

func TestBusRegistration_PublishError(t *testing.T) {
	r := NewBusRegistration(&fakePublisher{err: errors.New("bus down")})

	if err := r.Show(context.Background(), Notification{Title: "a"}); err == nil {
		t.Error("Expected publish error")
	}
	if list, _ := r.List(context.Background(), ""); len(list) != 0 {
		t.Error("Failed notification should not be tracked")
	}
}
