package detection

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// EmbeddedServer is a built-in model server that runs in-process.
// It speaks the same protocol as the external model server and answers every
// frame with a fixed set of predictions, which is enough to exercise the
// overlay when no real model server is configured.
type EmbeddedServer struct {
	mu       sync.RWMutex
	server   *http.Server
	listener net.Listener
	logger   *slog.Logger
	port     int

	// Stats
	startTime      time.Time
	processedCount int64
	errorCount     int64

	models      map[string]LoadOptions
	predictions []Prediction
}

// EmbeddedServerConfig holds embedded server configuration
type EmbeddedServerConfig struct {
	Port        int // 0 picks a free port
	Logger      *slog.Logger
	Predictions []Prediction
}

// NewEmbeddedServer creates a new embedded model server
func NewEmbeddedServer(cfg EmbeddedServerConfig) *EmbeddedServer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &EmbeddedServer{
		port:        cfg.Port,
		logger:      cfg.Logger.With("component", "embedded-model"),
		models:      make(map[string]LoadOptions),
		predictions: cfg.Predictions,
		startTime:   time.Now(),
	}
}

// Handler returns the HTTP handler of the server
func (s *EmbeddedServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/load", s.handleLoad)
	r.Post("/detect", s.handleDetect)
	r.Get("/status", s.handleStatus)
	return r
}

// Start starts listening in the background
func (s *EmbeddedServer) Start(ctx context.Context) error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	s.port = listener.Addr().(*net.TCPAddr).Port

	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.startTime = time.Now()
	s.logger.Info("Embedded model server starting", "port", s.port)

	go func() {
		if err := s.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Embedded model server error", "error", err)
		}
	}()

	return nil
}

// Stop stops the embedded server
func (s *EmbeddedServer) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Address returns host:port of the server
func (s *EmbeddedServer) Address() string {
	return fmt.Sprintf("127.0.0.1:%d", s.port)
}

func (s *EmbeddedServer) handleLoad(w http.ResponseWriter, r *http.Request) {
	var req LoadOptions
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Base == "" {
		req.Base = "mobilenet_v2"
	}

	modelID := fmt.Sprintf("coco-ssd-%s-%d", req.Base, time.Now().UnixNano())

	s.mu.Lock()
	s.models[modelID] = req
	s.mu.Unlock()

	s.logger.Info("Model loaded", "model_id", modelID, "base", req.Base)

	s.respondJSON(w, map[string]interface{}{
		"success":  true,
		"model_id": modelID,
	})
}

func (s *EmbeddedServer) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ModelID   string `json:"model_id"`
		CameraID  string `json:"camera_id"`
		ImageData string `json:"image_data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	s.mu.RLock()
	_, loaded := s.models[req.ModelID]
	s.mu.RUnlock()
	if !loaded {
		s.respondError(w, http.StatusNotFound, "model not loaded")
		return
	}

	if _, err := base64.StdEncoding.DecodeString(req.ImageData); err != nil || req.ImageData == "" {
		s.respondError(w, http.StatusBadRequest, "Invalid image data")
		return
	}

	s.mu.Lock()
	s.processedCount++
	s.mu.Unlock()

	predictions := make([]map[string]interface{}, 0, len(s.predictions))
	for _, p := range s.predictions {
		predictions = append(predictions, map[string]interface{}{
			"bbox":  p.BBox[:],
			"class": p.Class,
			"score": p.Score,
		})
	}

	s.respondJSON(w, map[string]interface{}{
		"success":     true,
		"predictions": predictions,
	})
}

func (s *EmbeddedServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	processed := s.processedCount
	errors := s.errorCount
	models := make([]string, 0, len(s.models))
	for id := range s.models {
		models = append(models, id)
	}
	s.mu.RUnlock()

	s.respondJSON(w, map[string]interface{}{
		"connected":       true,
		"models":          models,
		"processed_count": processed,
		"error_count":     errors,
		"uptime":          time.Since(s.startTime).Seconds(),
	})
}

func (s *EmbeddedServer) respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func (s *EmbeddedServer) respondError(w http.ResponseWriter, status int, message string) {
	s.mu.Lock()
	s.errorCount++
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
