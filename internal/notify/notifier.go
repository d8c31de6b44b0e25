// Package notify wraps the notification capability of the connected web
// clients: permission handling, display and a set of canned messages.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Permission is the notification permission reported by the platform
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// ParsePermission maps a reported value to a Permission. Unknown values are
// treated as default.
func ParsePermission(s string) Permission {
	switch Permission(s) {
	case PermissionGranted, PermissionDenied:
		return Permission(s)
	}
	return PermissionDefault
}

// PermissionStatus is the boolean view of a Permission
type PermissionStatus struct {
	Granted bool `json:"granted"`
	Denied  bool `json:"denied"`
	Default bool `json:"default"`
}

// Status returns the boolean view of p
func (p Permission) Status() PermissionStatus {
	return PermissionStatus{
		Granted: p == PermissionGranted,
		Denied:  p == PermissionDenied,
		Default: p != PermissionGranted && p != PermissionDenied,
	}
}

// Action is a button shown on a notification
type Action struct {
	Action string `json:"action"`
	Title  string `json:"title"`
	Icon   string `json:"icon,omitempty"`
}

// Options describes a notification to send
type Options struct {
	Title              string                 `json:"title"`
	Body               string                 `json:"body"`
	Icon               string                 `json:"icon,omitempty"`
	Badge              string                 `json:"badge,omitempty"`
	Image              string                 `json:"image,omitempty"`
	Tag                string                 `json:"tag,omitempty"`
	RequireInteraction bool                   `json:"require_interaction,omitempty"`
	Actions            []Action               `json:"actions,omitempty"`
	Data               map[string]interface{} `json:"data,omitempty"`
	Timestamp          time.Time              `json:"timestamp,omitempty"`
}

// Notification is what is handed to a Platform or Registration after
// defaults were applied
type Notification struct {
	ID                 string                 `json:"id,omitempty"`
	Title              string                 `json:"title"`
	Body               string                 `json:"body"`
	Icon               string                 `json:"icon,omitempty"`
	Badge              string                 `json:"badge,omitempty"`
	Image              string                 `json:"image,omitempty"`
	Tag                string                 `json:"tag"`
	RequireInteraction bool                   `json:"requireInteraction"`
	Actions            []Action               `json:"actions,omitempty"`
	Data               map[string]interface{} `json:"data,omitempty"`
	Vibrate            []int                  `json:"vibrate,omitempty"`
	Timestamp          int64                  `json:"timestamp,omitempty"` // unix millis
}

const (
	DefaultIcon = "/favicon.ico"
	DefaultTag  = "ai-live-cam"
)

// DefaultVibrate is the mobile vibration pattern
var DefaultVibrate = []int{200, 100, 200}

// Platform is the direct notification capability of the clients
type Platform interface {
	Supported() bool
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Display(ctx context.Context, n Notification) error
}

// Registration is a service-worker-backed channel. It is preferred over
// direct display when present.
type Registration interface {
	Show(ctx context.Context, n Notification) error
	List(ctx context.Context, tag string) ([]Notification, error)
	Close(ctx context.Context, tag string) error
}

// Config holds the handles a Notifier works with
type Config struct {
	Platform     Platform
	Registration Registration // optional
	Origin       string       // added to every notification as data.url
	Logger       *slog.Logger
	Now          func() time.Time
}

// Notifier sends notifications through an explicitly passed platform handle.
// It holds no state of its own; build one per process and pass it down.
type Notifier struct {
	platform     Platform
	registration Registration
	origin       string
	logger       *slog.Logger
	now          func() time.Time
}

// New creates a Notifier
func New(cfg Config) *Notifier {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Notifier{
		platform:     cfg.Platform,
		registration: cfg.Registration,
		origin:       cfg.Origin,
		logger:       cfg.Logger.With("component", "notifier"),
		now:          cfg.Now,
	}
}

// IsSupported reports whether the platform can show notifications
func (n *Notifier) IsSupported() bool {
	return n.platform != nil && n.platform.Supported()
}

// PermissionStatus returns the current permission
func (n *Notifier) PermissionStatus() PermissionStatus {
	if n.platform == nil {
		return PermissionDefault.Status()
	}
	return n.platform.Permission().Status()
}

// RequestPermission asks for permission and reports whether it was granted.
// It never fails.
func (n *Notifier) RequestPermission(ctx context.Context) bool {
	if !n.IsSupported() {
		n.logger.Warn("Notifications not supported")
		return false
	}

	p, err := n.platform.RequestPermission(ctx)
	if err != nil {
		n.logger.Error("Error requesting notification permission", "error", err)
		return false
	}
	return p == PermissionGranted
}

// Initialize prepares the notifier and requests permission
func (n *Notifier) Initialize(ctx context.Context) bool {
	if !n.IsSupported() {
		return false
	}
	return n.RequestPermission(ctx)
}

// Send shows a notification. Without permission nothing is displayed.
// Failures are logged.
func (n *Notifier) Send(ctx context.Context, opts Options) {
	if !n.PermissionStatus().Granted {
		n.logger.Warn("Notification permission not granted", "title", opts.Title)
		return
	}

	var err error
	if n.registration != nil {
		err = n.registration.Show(ctx, n.full(opts))
	} else {
		err = n.platform.Display(ctx, n.direct(opts))
	}
	if err != nil {
		n.logger.Error("Error sending notification", "title", opts.Title, "error", err)
	}
}

// ClearNotifications closes the active notifications with the given tag,
// all of them when tag is empty
func (n *Notifier) ClearNotifications(ctx context.Context, tag string) {
	if n.registration == nil {
		return
	}
	if err := n.registration.Close(ctx, tag); err != nil {
		n.logger.Error("Error clearing notifications", "tag", tag, "error", err)
	}
}

// ActiveNotifications lists the active notifications with the given tag
func (n *Notifier) ActiveNotifications(ctx context.Context, tag string) []Notification {
	if n.registration == nil {
		return []Notification{}
	}
	list, err := n.registration.List(ctx, tag)
	if err != nil {
		n.logger.Error("Error getting notifications", "tag", tag, "error", err)
		return []Notification{}
	}
	return list
}

// full applies every default; used for the registration channel
func (n *Notifier) full(opts Options) Notification {
	ts := opts.Timestamp
	if ts.IsZero() {
		ts = n.now()
	}

	data := make(map[string]interface{}, len(opts.Data)+2)
	for k, v := range opts.Data {
		data[k] = v
	}
	data["timestamp"] = ts.UnixMilli()
	data["url"] = n.origin

	actions := opts.Actions
	if actions == nil {
		actions = []Action{}
	}

	return Notification{
		Title:              opts.Title,
		Body:               opts.Body,
		Icon:               orDefault(opts.Icon, DefaultIcon),
		Badge:              orDefault(opts.Badge, DefaultIcon),
		Image:              opts.Image,
		Tag:                orDefault(opts.Tag, DefaultTag),
		RequireInteraction: opts.RequireInteraction,
		Actions:            actions,
		Data:               data,
		Vibrate:            append([]int(nil), DefaultVibrate...),
		Timestamp:          ts.UnixMilli(),
	}
}

// direct is the reduced form plain display supports
func (n *Notifier) direct(opts Options) Notification {
	return Notification{
		Title:              opts.Title,
		Body:               opts.Body,
		Icon:               orDefault(opts.Icon, DefaultIcon),
		Tag:                orDefault(opts.Tag, DefaultTag),
		RequireInteraction: opts.RequireInteraction,
		Data:               opts.Data,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
