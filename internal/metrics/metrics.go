// Package metrics exposes detection and notification metrics for Prometheus
package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Frames pushed to MJPEG viewers and dropped for slow viewers
	FramesStreamed atomic.Uint64
	FramesDropped  atomic.Uint64

	// Websocket messages skipped because a client queue was full
	MessagesDropped atomic.Uint64

	// Connected clients
	WebSocketClients atomic.Int64
	StreamClients    atomic.Int64

	inferenceLatency *prometheus.HistogramVec
	inferenceErrors  *prometheus.CounterVec
	detections       *prometheus.CounterVec
	fps              *prometheus.GaugeVec
	loopActive       *prometheus.GaugeVec
	modelLoads       *prometheus.CounterVec
	notifications    *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		inferenceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "livecam_inference_duration_seconds",
			Help:    "Time spent in one model inference",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}, []string{"camera"}),
		inferenceErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livecam_inference_errors_total",
			Help: "Per-frame inference failures",
		}, []string{"camera"}),
		detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livecam_detections_total",
			Help: "Predictions kept after filtering, by category",
		}, []string{"camera", "category"}),
		fps: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livecam_detection_fps",
			Help: "Detection loop rate",
		}, []string{"camera"}),
		loopActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "livecam_detection_active",
			Help: "Detection loop active (0=idle, 1=loading or running)",
		}, []string{"camera"}),
		modelLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livecam_model_loads_total",
			Help: "Model load attempts by result",
		}, []string{"result"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "livecam_notifications_total",
			Help: "Notifications raised, by template",
		}, []string{"template"}),
	}

	m.registerPrometheusMetrics()
	return m
}

// registerPrometheusMetrics registers all metrics with Prometheus
func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(
		m.inferenceLatency,
		m.inferenceErrors,
		m.detections,
		m.fps,
		m.loopActive,
		m.modelLoads,
		m.notifications,
	)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "livecam_stream_frames_total",
			Help: "Total composited frames sent to MJPEG viewers",
		},
		func() float64 { return float64(m.FramesStreamed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "livecam_stream_frames_dropped_total",
			Help: "Total frames dropped for slow MJPEG viewers",
		},
		func() float64 { return float64(m.FramesDropped.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "livecam_websocket_messages_dropped_total",
			Help: "Total websocket messages skipped for slow clients",
		},
		func() float64 { return float64(m.MessagesDropped.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "livecam_websocket_clients",
			Help: "Number of connected websocket clients",
		},
		func() float64 { return float64(m.WebSocketClients.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "livecam_stream_clients",
			Help: "Number of connected MJPEG viewers",
		},
		func() float64 { return float64(m.StreamClients.Load()) },
	))
}

// ObserveInference records one successful inference
func (m *Metrics) ObserveInference(camera string, d time.Duration) {
	m.inferenceLatency.WithLabelValues(camera).Observe(d.Seconds())
}

// InferenceError counts a per-frame inference failure
func (m *Metrics) InferenceError(camera string) {
	m.inferenceErrors.WithLabelValues(camera).Inc()
}

// AddDetections counts kept predictions by category
func (m *Metrics) AddDetections(camera string, byCategory map[string]int) {
	for category, n := range byCategory {
		m.detections.WithLabelValues(camera, category).Add(float64(n))
	}
}

// SetFPS records the current loop rate
func (m *Metrics) SetFPS(camera string, fps int) {
	m.fps.WithLabelValues(camera).Set(float64(fps))
}

// SetLoopActive records whether a camera's loop is active
func (m *Metrics) SetLoopActive(camera string, active bool) {
	v := 0.0
	if active {
		v = 1
	}
	m.loopActive.WithLabelValues(camera).Set(v)
}

// ModelLoad counts a model load attempt
func (m *Metrics) ModelLoad(ok bool) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.modelLoads.WithLabelValues(result).Inc()
}

// Notification counts a raised notification
func (m *Metrics) Notification(template string) {
	m.notifications.WithLabelValues(template).Inc()
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
