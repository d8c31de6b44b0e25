package api

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/JayjayR89/ai-live-cam/internal/config"
	"github.com/JayjayR89/ai-live-cam/internal/logging"
	"github.com/JayjayR89/ai-live-cam/internal/metrics"
	"github.com/JayjayR89/ai-live-cam/internal/notify"
	"github.com/JayjayR89/ai-live-cam/internal/pwa"
)

// HealthChecker reports whether a dependency is usable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RouterConfig holds the components served by the router
type RouterConfig struct {
	Config   *config.Config
	Shell    CameraShell
	Live     LiveService
	Hub      *Hub
	Notifier *notify.Notifier
	Platform PermissionSetter
	Logs     *logging.RingBuffer
	Metrics  *metrics.Metrics
	Bus      HealthChecker // optional
	WebPath  string        // static frontend, skipped when missing
}

// Long-lived responses that must not run under the request timeout
var streamingSuffixes = []string{"/stream.mjpeg", "/logs/stream", "/ws"}

// NewRouter builds the HTTP handler of the application
func NewRouter(rc RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(timeoutExceptStreams(60 * time.Second))

	origins := []string{"http://localhost:*", "http://127.0.0.1:*"}
	if rc.Config != nil {
		origins = append(origins, rc.Config.Snapshot().Server.CORSOrigins...)
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"Link", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", handleHealth(rc))
	if rc.Metrics != nil {
		r.Handle("/metrics", rc.Metrics.Handler())
	}
	if rc.Config != nil {
		r.Get("/manifest.webmanifest", pwa.Handler(rc.Config))
	}
	if rc.Hub != nil {
		r.Get("/ws", rc.Hub.HandleWebSocket)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/categories", handleCategories(rc.Live))
		r.Mount("/cameras", NewCameraHandler(rc.Shell, rc.Live, rc.Metrics).Routes())
		r.Mount("/detection", NewDetectionHandler(rc.Live).Routes())
		if rc.Notifier != nil {
			r.Mount("/notifications", NewNotificationHandler(rc.Notifier, rc.Platform, rc.Metrics).Routes())
		}
		if rc.Logs != nil {
			r.Mount("/logs", NewLogHandler(rc.Logs).Routes())
		}
	})

	// Serve static frontend files in production
	if rc.WebPath != "" {
		if info, err := os.Stat(rc.WebPath); err == nil && info.IsDir() {
			fs := http.FileServer(http.Dir(rc.WebPath))

			// Serve index.html for SPA routes
			r.Get("/*", func(w http.ResponseWriter, r *http.Request) {
				path := filepath.Join(rc.WebPath, filepath.Clean("/"+r.URL.Path))
				if _, err := os.Stat(path); err == nil {
					fs.ServeHTTP(w, r)
					return
				}
				http.ServeFile(w, r, filepath.Join(rc.WebPath, "index.html"))
			})
		}
	}

	return r
}

func timeoutExceptStreams(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		timed := middleware.Timeout(d)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, suffix := range streamingSuffixes {
				if strings.HasSuffix(r.URL.Path, suffix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			timed.ServeHTTP(w, r)
		})
	}
}

// HealthStatus is the body of the health endpoint
type HealthStatus struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
	EventBus    string `json:"event_bus,omitempty"`
	Cameras     int    `json:"cameras"`
	Clients     int    `json:"clients"`
}

func handleHealth(rc RouterConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := HealthStatus{Status: "healthy"}
		if rc.Live != nil {
			status.ModelLoaded = rc.Live.ModelLoaded()
		}
		if rc.Shell != nil {
			status.Cameras = len(rc.Shell.List())
		}
		if rc.Hub != nil {
			status.Clients = rc.Hub.ClientCount()
		}

		code := http.StatusOK
		if rc.Bus != nil {
			if err := rc.Bus.HealthCheck(r.Context()); err != nil {
				status.Status = "degraded"
				status.EventBus = err.Error()
				code = http.StatusServiceUnavailable
			} else {
				status.EventBus = "ok"
			}
		}
		JSON(w, code, status)
	}
}
