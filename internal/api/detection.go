package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JayjayR89/ai-live-cam/internal/detection"
)

// DetectionHandler handles the shared detection settings panel
type DetectionHandler struct {
	live LiveService
}

// NewDetectionHandler creates a new detection handler
func NewDetectionHandler(live LiveService) *DetectionHandler {
	return &DetectionHandler{live: live}
}

// Routes returns the detection routes
func (h *DetectionHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
	r.Put("/categories/{category}", h.SetCategory)
	return r
}

// GetSettings returns the current settings
func (h *DetectionHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	OK(w, h.live.Settings())
}

// UpdateSettings replaces the settings. Fields missing from the body keep
// their current value.
func (h *DetectionHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	settings := h.live.Settings()
	if err := decodeJSON(w, r, &settings); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}

	if errs := ValidateSettings(settings); errs.HasErrors() {
		ValidationErrorResponse(w, errs)
		return
	}

	if err := h.live.UpdateSettings(settings); err != nil {
		InternalError(w, err.Error())
		return
	}
	OK(w, settings)
}

// SetCategory toggles one category filter
func (h *DetectionHandler) SetCategory(w http.ResponseWriter, r *http.Request) {
	cat, ok := detection.ParseCategory(chi.URLParam(r, "category"))
	if !ok {
		NotFound(w, "Unknown category")
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		BadRequest(w, "Invalid request body")
		return
	}

	settings, err := h.live.SetCategory(cat, req.Enabled)
	if err != nil {
		InternalError(w, err.Error())
		return
	}
	OK(w, settings)
}

// handleCategories returns the legend of the category filters
func handleCategories(live LiveService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cats := live.Categories()
		JSONWithMeta(w, http.StatusOK, cats, &Meta{Count: len(cats)})
	}
}
