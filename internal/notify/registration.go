package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Subjects used by BusRegistration
const (
	SubjectShow  = "notifications.show"
	SubjectClose = "notifications.close"
)

// MaxActive is how many notifications BusRegistration tracks. Showing one
// more closes the oldest.
const MaxActive = 20

// Publisher publishes JSON payloads on a subject
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// CloseRequest is published when notifications are cleared
type CloseRequest struct {
	Tag string   `json:"tag,omitempty"`
	IDs []string `json:"ids"`
}

// BusRegistration delivers notifications to the clients' service workers
// over the event bus and keeps the list of notifications still shown
type BusRegistration struct {
	mu     sync.Mutex
	bus    Publisher
	active []Notification
}

// NewBusRegistration creates a registration on top of bus
func NewBusRegistration(bus Publisher) *BusRegistration {
	return &BusRegistration{bus: bus}
}

// Show publishes n and tracks it as active. A notification replaces an
// active one with the same tag.
func (r *BusRegistration) Show(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if err := r.bus.Publish(SubjectShow, n); err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}

	r.mu.Lock()
	kept := r.active[:0]
	for _, a := range r.active {
		if a.Tag != n.Tag {
			kept = append(kept, a)
		}
	}
	kept = append(kept, n)
	var evicted []string
	if extra := len(kept) - MaxActive; extra > 0 {
		for _, a := range kept[:extra] {
			evicted = append(evicted, a.ID)
		}
		kept = append(kept[:0], kept[extra:]...)
	}
	r.active = kept
	r.mu.Unlock()

	if len(evicted) > 0 {
		if err := r.bus.Publish(SubjectClose, CloseRequest{IDs: evicted}); err != nil {
			return fmt.Errorf("failed to publish close: %w", err)
		}
	}
	return nil
}

// List returns the active notifications with tag, all when tag is empty
func (r *BusRegistration) List(ctx context.Context, tag string) ([]Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]Notification, 0, len(r.active))
	for _, a := range r.active {
		if tag == "" || a.Tag == tag {
			list = append(list, a)
		}
	}
	return list, nil
}

// Close closes the active notifications with tag, all when tag is empty
func (r *BusRegistration) Close(ctx context.Context, tag string) error {
	r.mu.Lock()
	var ids []string
	kept := r.active[:0]
	for _, a := range r.active {
		if tag == "" || a.Tag == tag {
			ids = append(ids, a.ID)
			continue
		}
		kept = append(kept, a)
	}
	r.active = kept
	r.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}
	if err := r.bus.Publish(SubjectClose, CloseRequest{Tag: tag, IDs: ids}); err != nil {
		return fmt.Errorf("failed to publish close: %w", err)
	}
	return nil
}
