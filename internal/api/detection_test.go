package api

import (
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/JayjayR89/ai-live-cam/internal/detection"
	"github.com/JayjayR89/ai-live-cam/internal/livecam"
)

func setupDetectionRouter(live *fakeLive) http.Handler {
	r := chi.NewRouter()
	r.Mount("/detection", NewDetectionHandler(live).Routes())
	r.Get("/categories", handleCategories(live))
	return r
}

func TestDetectionHandler_GetSettings(t *testing.T) {
	live := newFakeLive()
	h := setupDetectionRouter(live)

	w := doRequest(t, h, http.MethodGet, "/detection/settings", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var s detection.Settings
	decodeData(t, w, &s)
	if s != detection.DefaultSettings() {
		t.Errorf("Expected default settings, got %+v", s)
	}
}

func TestDetectionHandler_UpdateSettings(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
		check    func(t *testing.T, s detection.Settings)
	}{
		{
			name:     "partial update keeps other fields",
			body:     `{"min_confidence":0.7,"show_labels":false}`,
			wantCode: http.StatusOK,
			check: func(t *testing.T, s detection.Settings) {
				if s.MinConfidence != 0.7 || s.ShowLabels {
					t.Errorf("Update not applied: %+v", s)
				}
				if !s.EnablePeople || !s.ShowConfidence {
					t.Errorf("Untouched fields changed: %+v", s)
				}
			},
		},
		{
			name:     "threshold out of range",
			body:     `{"min_confidence":1.5}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown field",
			body:     `{"threshold":0.5}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed body",
			body:     `{`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live := newFakeLive()
			h := setupDetectionRouter(live)

			w := doRequest(t, h, http.MethodPut, "/detection/settings", tt.body)
			if w.Code != tt.wantCode {
				t.Fatalf("Expected %d, got %d: %s", tt.wantCode, w.Code, w.Body.String())
			}
			if tt.check != nil {
				tt.check(t, live.Settings())
			}
			if tt.wantCode != http.StatusOK && live.Settings() != detection.DefaultSettings() {
				t.Error("Rejected update should not change settings")
			}
		})
	}
}

func TestDetectionHandler_SetCategory(t *testing.T) {
	live := newFakeLive()
	h := setupDetectionRouter(live)

	w := doRequest(t, h, http.MethodPut, "/detection/categories/vehicles", `{"enabled":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if live.Settings().EnableVehicles {
		t.Error("Expected vehicles disabled")
	}

	w = doRequest(t, h, http.MethodPut, "/detection/categories/plants", `{"enabled":false}`)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown category, got %d", w.Code)
	}
}

func TestHandleCategories(t *testing.T) {
	h := setupDetectionRouter(newFakeLive())

	w := doRequest(t, h, http.MethodGet, "/categories", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var cats []livecam.CategoryInfo
	decodeData(t, w, &cats)
	if len(cats) != 1 || cats[0].Category != detection.CategoryPeople {
		t.Errorf("Unexpected categories: %+v", cats)
	}
}
