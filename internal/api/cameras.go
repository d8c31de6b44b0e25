package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JayjayR89/ai-live-cam/internal/camera"
	"github.com/JayjayR89/ai-live-cam/internal/detection"
	"github.com/JayjayR89/ai-live-cam/internal/livecam"
	"github.com/JayjayR89/ai-live-cam/internal/metrics"
)

// CameraShell defines the preview shell operations used by the API
type CameraShell interface {
	List() []camera.Camera
	Get(id string) (camera.Camera, error)
	Current() (camera.Camera, bool)
	Select(id string) error
	Flip() (camera.Camera, error)
	SetMinimized(minimized bool) camera.ShellState
	ToggleMinimized() camera.ShellState
	SetDetection(enabled bool) error
	State() camera.ShellState
}

// LiveService defines the detection operations used by the API
type LiveService interface {
	StartDetection(id string) error
	StopDetection(id string)
	DetectionActive(id string) bool
	Stats(id string) livecam.CameraStats
	Latest(id string) (detection.Snapshot, bool)
	OverlayPNG(id string) ([]byte, error)
	Stream(id string) (*livecam.FrameBroadcaster, error)
	Analyze(ctx context.Context, id string) (*livecam.AnalysisResult, error)
	Settings() detection.Settings
	UpdateSettings(s detection.Settings) error
	SetCategory(cat detection.Category, enabled bool) (detection.Settings, error)
	Categories() []livecam.CategoryInfo
	ModelLoaded() bool
}

// CameraHandler handles camera preview and per-camera detection endpoints
type CameraHandler struct {
	shell   CameraShell
	live    LiveService
	metrics *metrics.Metrics
}

// NewCameraHandler creates a new camera handler
func NewCameraHandler(shell CameraShell, live LiveService, m *metrics.Metrics) *CameraHandler {
	return &CameraHandler{
		shell:   shell,
		live:    live,
		metrics: m,
	}
}

// Routes returns the camera routes
func (h *CameraHandler) Routes() chi.Router {
	r := chi.NewRouter()

	// Preview shell
	r.Get("/", h.List)
	r.Get("/state", h.GetState)
	r.Post("/flip", h.Flip)
	r.Post("/minimize", h.Minimize)
	r.Put("/current", h.SelectCurrent)

	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)

		// Detection control
		r.Get("/detection", h.GetDetection)
		r.Post("/detection", h.StartDetection)
		r.Delete("/detection", h.StopDetection)
		r.Get("/detections", h.GetDetections)
		r.Post("/analyze", h.Analyze)

		// Overlay output
		r.Get("/overlay.png", h.GetOverlay)
		r.Get("/stream.mjpeg", h.StreamMJPEG)
	})

	return r
}

// List returns every camera of the preview
func (h *CameraHandler) List(w http.ResponseWriter, r *http.Request) {
	cameras := h.shell.List()
	JSONWithMeta(w, http.StatusOK, cameras, &Meta{Count: len(cameras)})
}

// GetState returns the preview state
func (h *CameraHandler) GetState(w http.ResponseWriter, r *http.Request) {
	OK(w, h.shell.State())
}

// Get returns one camera
func (h *CameraHandler) Get(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.camera(w, r)
	if !ok {
		return
	}
	OK(w, cam)
}

// Flip switches to the next camera
func (h *CameraHandler) Flip(w http.ResponseWriter, r *http.Request) {
	if _, err := h.shell.Flip(); err != nil {
		if errors.Is(err, camera.ErrCannotFlip) {
			Conflict(w, err.Error())
			return
		}
		InternalError(w, err.Error())
		return
	}
	OK(w, h.shell.State())
}

// Minimize sets or toggles the minimized flag
func (h *CameraHandler) Minimize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Minimized *bool `json:"minimized"`
	}
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			BadRequest(w, "Invalid request body")
			return
		}
	}

	if req.Minimized == nil {
		OK(w, h.shell.ToggleMinimized())
		return
	}
	OK(w, h.shell.SetMinimized(*req.Minimized))
}

// SelectCurrent makes a camera the current one
func (h *CameraHandler) SelectCurrent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateCameraID(req.ID); err != nil {
		BadRequest(w, err.Error())
		return
	}

	if err := h.shell.Select(req.ID); err != nil {
		if errors.Is(err, camera.ErrCameraNotFound) {
			NotFound(w, "Camera not found")
			return
		}
		InternalError(w, err.Error())
		return
	}
	OK(w, h.shell.State())
}

// GetDetection returns the detection state and stats of a camera
func (h *CameraHandler) GetDetection(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.camera(w, r)
	if !ok {
		return
	}
	OK(w, h.detectionStatus(cam.ID))
}

// StartDetection activates detection on a camera
func (h *CameraHandler) StartDetection(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.camera(w, r)
	if !ok {
		return
	}

	var err error
	if current, ok := h.shell.Current(); ok && current.ID == cam.ID {
		err = h.shell.SetDetection(true)
	} else {
		err = h.live.StartDetection(cam.ID)
	}
	if err != nil {
		InternalError(w, err.Error())
		return
	}
	Accepted(w, h.detectionStatus(cam.ID))
}

// StopDetection deactivates detection on a camera
func (h *CameraHandler) StopDetection(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.camera(w, r)
	if !ok {
		return
	}

	if current, ok := h.shell.Current(); ok && current.ID == cam.ID {
		if err := h.shell.SetDetection(false); err != nil {
			InternalError(w, err.Error())
			return
		}
	} else {
		h.live.StopDetection(cam.ID)
	}
	OK(w, h.detectionStatus(cam.ID))
}

// GetDetections returns the latest snapshot of a camera
func (h *CameraHandler) GetDetections(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.camera(w, r)
	if !ok {
		return
	}

	snap, ok := h.live.Latest(cam.ID)
	if !ok {
		NotFound(w, "No detections yet")
		return
	}
	OK(w, snap)
}

// Analyze runs detection once on the current frame
func (h *CameraHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.camera(w, r)
	if !ok {
		return
	}

	result, err := h.live.Analyze(r.Context(), cam.ID)
	if err != nil {
		if errors.Is(err, detection.ErrNotReady) {
			ServiceUnavailable(w, "Video not ready")
			return
		}
		InternalError(w, err.Error())
		return
	}
	OK(w, result)
}

// GetOverlay returns the transparent overlay of the last tick
func (h *CameraHandler) GetOverlay(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.camera(w, r)
	if !ok {
		return
	}

	data, err := h.live.OverlayPNG(cam.ID)
	if err != nil {
		if errors.Is(err, livecam.ErrUnknownCamera) || errors.Is(err, livecam.ErrNoOverlay) {
			NotFound(w, "Detection has not run on this camera")
			return
		}
		InternalError(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(data)
}

// StreamMJPEG streams the frames with the overlay drawn in
func (h *CameraHandler) StreamMJPEG(w http.ResponseWriter, r *http.Request) {
	cam, ok := h.camera(w, r)
	if !ok {
		return
	}

	stream, err := h.live.Stream(cam.ID)
	if err != nil {
		ServiceUnavailable(w, err.Error())
		return
	}

	id, frames := stream.Subscribe()
	defer stream.Unsubscribe(id)
	if h.metrics != nil {
		h.metrics.StreamClients.Add(1)
		defer h.metrics.StreamClients.Add(-1)
	}

	streamMJPEG(r.Context(), w, frames)
}

// DetectionStatus is the detection panel of a camera
type DetectionStatus struct {
	livecam.CameraStats
	Active bool `json:"active"`
}

func (h *CameraHandler) detectionStatus(id string) DetectionStatus {
	return DetectionStatus{
		CameraStats: h.live.Stats(id),
		Active:      h.live.DetectionActive(id),
	}
}

func (h *CameraHandler) camera(w http.ResponseWriter, r *http.Request) (camera.Camera, bool) {
	id := chi.URLParam(r, "id")
	if err := ValidateCameraID(id); err != nil {
		BadRequest(w, err.Error())
		return camera.Camera{}, false
	}

	cam, err := h.shell.Get(id)
	if err != nil {
		NotFound(w, "Camera not found")
		return camera.Camera{}, false
	}
	return cam, true
}
