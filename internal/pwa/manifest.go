// Package pwa builds the web app manifest that makes the preview installable
package pwa

import (
	"encoding/json"
	"net/http"

	"github.com/JayjayR89/ai-live-cam/internal/config"
)

// ContentType of the manifest response
const ContentType = "application/manifest+json"

// Icon is a manifest icon
type Icon struct {
	Src     string `json:"src"`
	Sizes   string `json:"sizes"`
	Type    string `json:"type,omitempty"`
	Purpose string `json:"purpose,omitempty"`
}

// Shortcut is an app shortcut shown by the launcher
type Shortcut struct {
	Name        string `json:"name"`
	ShortName   string `json:"short_name"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Icons       []Icon `json:"icons"`
}

// Manifest is the web app manifest
type Manifest struct {
	Name            string     `json:"name"`
	ShortName       string     `json:"short_name"`
	Description     string     `json:"description"`
	ThemeColor      string     `json:"theme_color"`
	BackgroundColor string     `json:"background_color"`
	Display         string     `json:"display"`
	Orientation     string     `json:"orientation"`
	Scope           string     `json:"scope"`
	StartURL        string     `json:"start_url"`
	Icons           []Icon     `json:"icons"`
	Categories      []string   `json:"categories"`
	Shortcuts       []Shortcut `json:"shortcuts"`
}

// Shortcut actions, passed to the app as ?action=
const (
	ActionCapture = "capture"
	ActionDetect  = "detect"
)

// Build creates the manifest from the app config
func Build(cfg config.PWAConfig) Manifest {
	favicon := Icon{Src: "/favicon.ico", Sizes: "48x48"}

	return Manifest{
		Name:            cfg.Name,
		ShortName:       cfg.ShortName,
		Description:     cfg.Description,
		ThemeColor:      cfg.ThemeColor,
		BackgroundColor: cfg.BackgroundColor,
		Display:         cfg.Display,
		Orientation:     "any",
		Scope:           "/",
		StartURL:        cfg.StartURL,
		Icons: []Icon{
			{Src: "/favicon.ico", Sizes: "48x48", Type: "image/x-icon"},
			{Src: "/placeholder.svg", Sizes: "192x192", Type: "image/svg+xml", Purpose: "any maskable"},
			{Src: "/placeholder.svg", Sizes: "512x512", Type: "image/svg+xml", Purpose: "any maskable"},
		},
		Categories: []string{"photography", "utilities", "productivity"},
		Shortcuts: []Shortcut{
			{
				Name:        "Quick Capture",
				ShortName:   "Capture",
				Description: "Take a quick photo with AI analysis",
				URL:         "/?action=" + ActionCapture,
				Icons:       []Icon{favicon},
			},
			{
				Name:        "Object Detection",
				ShortName:   "Detect",
				Description: "Real-time object detection mode",
				URL:         "/?action=" + ActionDetect,
				Icons:       []Icon{favicon},
			},
		},
	}
}

// Handler serves the manifest built from the current config
func Handler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", ContentType)
		w.Header().Set("Cache-Control", "no-cache")
		_ = json.NewEncoder(w).Encode(Build(cfg.Snapshot().PWA))
	}
}
