package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JayjayR89/ai-live-cam/internal/metrics"
	"github.com/JayjayR89/ai-live-cam/internal/notify"
)

// PermissionSetter records the permission reported by a client
type PermissionSetter interface {
	SetPermission(perm notify.Permission)
}

// NotificationHandler handles notification endpoints
type NotificationHandler struct {
	notifier *notify.Notifier
	platform PermissionSetter
	metrics  *metrics.Metrics
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(notifier *notify.Notifier, platform PermissionSetter, m *metrics.Metrics) *NotificationHandler {
	return &NotificationHandler{
		notifier: notifier,
		platform: platform,
		metrics:  m,
	}
}

// Routes returns the notification routes
func (h *NotificationHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListActive)
	r.Post("/", h.Send)
	r.Delete("/", h.Clear)

	r.Get("/permission", h.GetPermission)
	r.Put("/permission", h.ReportPermission)
	r.Post("/permission/request", h.RequestPermission)

	r.Post("/templates/{name}", h.SendTemplate)

	return r
}

// PermissionResponse is the permission panel
type PermissionResponse struct {
	Supported bool `json:"supported"`
	notify.PermissionStatus
}

func (h *NotificationHandler) permission() PermissionResponse {
	return PermissionResponse{
		Supported:        h.notifier.IsSupported(),
		PermissionStatus: h.notifier.PermissionStatus(),
	}
}

// GetPermission returns the current permission
func (h *NotificationHandler) GetPermission(w http.ResponseWriter, r *http.Request) {
	OK(w, h.permission())
}

// ReportPermission records a permission reported by a client
func (h *NotificationHandler) ReportPermission(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Permission string `json:"permission"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}
	if h.platform == nil {
		ServiceUnavailable(w, "Notifications are not available")
		return
	}

	h.platform.SetPermission(notify.ParsePermission(req.Permission))
	OK(w, h.permission())
}

// RequestPermission asks the connected clients for permission and waits for
// the answer
func (h *NotificationHandler) RequestPermission(w http.ResponseWriter, r *http.Request) {
	h.notifier.RequestPermission(r.Context())
	OK(w, h.permission())
}

// Send shows a custom notification
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var opts notify.Options
	if err := decodeJSON(w, r, &opts); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}
	if errs := ValidateNotification(opts); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}

	h.notifier.Send(r.Context(), opts)
	if h.metrics != nil {
		h.metrics.Notification("custom")
	}
	Accepted(w, h.permission())
}

// SendTemplate shows one of the canned notifications
func (h *NotificationHandler) SendTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var params notify.TemplateParams
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &params); err != nil {
			BadRequest(w, "Invalid request body")
			return
		}
	}

	opts, err := notify.Template(name, params)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	h.notifier.Send(r.Context(), opts)
	if h.metrics != nil {
		h.metrics.Notification(name)
	}
	Accepted(w, opts)
}

// ListActive lists the notifications still shown, optionally by tag
func (h *NotificationHandler) ListActive(w http.ResponseWriter, r *http.Request) {
	list := h.notifier.ActiveNotifications(r.Context(), r.URL.Query().Get("tag"))
	JSONWithMeta(w, http.StatusOK, list, &Meta{Count: len(list)})
}

// Clear closes the notifications with a tag, all of them without one
func (h *NotificationHandler) Clear(w http.ResponseWriter, r *http.Request) {
	h.notifier.ClearNotifications(r.Context(), r.URL.Query().Get("tag"))
	NoContent(w)
}
