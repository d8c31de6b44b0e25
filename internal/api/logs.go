package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JayjayR89/ai-live-cam/internal/logging"
)

// LogHandler serves the in-memory log buffer
type LogHandler struct {
	buffer    *logging.RingBuffer
	heartbeat time.Duration
}

// NewLogHandler creates a new log handler
func NewLogHandler(buffer *logging.RingBuffer) *LogHandler {
	return &LogHandler{
		buffer:    buffer,
		heartbeat: 15 * time.Second,
	}
}

// Routes returns the log routes
func (h *LogHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.List)
	r.Get("/stream", h.Stream)
	return r
}

// List returns recent log entries filtered by limit, level and component
func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	q := logging.Query{Limit: 100, MinLevel: slog.LevelDebug}

	params := r.URL.Query()
	if v := params.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			BadRequest(w, "limit must be a non-negative integer")
			return
		}
		q.Limit = limit
	}
	if v := params.Get("level"); v != "" {
		q.MinLevel = logging.ParseLevel(v)
	}
	q.Component = params.Get("component")

	entries := h.buffer.Recent(q)
	if entries == nil {
		entries = []logging.LogEntry{}
	}
	JSONWithMeta(w, http.StatusOK, entries, &Meta{Count: len(entries)})
}

// Stream provides Server-Sent Events for live log streaming
func (h *LogHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	component := r.URL.Query().Get("component")
	minLevel := slog.LevelDebug
	if v := r.URL.Query().Get("level"); v != "" {
		minLevel = logging.ParseLevel(v)
	}

	ch := h.buffer.Subscribe()
	defer h.buffer.Unsubscribe(ch)

	// Send initial connection message
	fmt.Fprintf(w, ": connected %s\n\n", time.Now().Format(time.RFC3339))
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ": heartbeat\n\n")
			flusher.Flush()
		case entry, ok := <-ch:
			if !ok {
				return
			}
			if component != "" && entry.Component != component {
				continue
			}
			if logging.ParseLevel(entry.Level) < minLevel {
				continue
			}
			data, err := json.Marshal(entry)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: log\ndata: %s\n\n", data)
			flusher.Flush()
		}
	}
}
