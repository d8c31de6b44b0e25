// Package livecam ties the detection loops, the overlay renderer and the
// notifier together for every camera.
package livecam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/JayjayR89/ai-live-cam/internal/config"
	"github.com/JayjayR89/ai-live-cam/internal/core"
	"github.com/JayjayR89/ai-live-cam/internal/detection"
	"github.com/JayjayR89/ai-live-cam/internal/metrics"
	"github.com/JayjayR89/ai-live-cam/internal/notify"
	"github.com/JayjayR89/ai-live-cam/internal/overlay"
)

// Client message types
const (
	MessageTypeDetection      = "detection"
	MessageTypeDetectionState = "detection_state"
	MessageTypeToast          = "toast"
)

// Toast titles shown when the model finishes loading
const (
	ToastModelReadyTitle       = "Object Detection Ready"
	ToastModelReadyDescription = "AI model loaded successfully"
	ToastModelFailedTitle      = "Model Loading Failed"
	ToastModelFailedDesc       = "Could not load object detection model"
)

// DefaultJPEGQuality is used for composited MJPEG frames
const DefaultJPEGQuality = 80

var (
	// ErrUnknownCamera is returned for a camera without detection state
	ErrUnknownCamera = errors.New("unknown camera")
	// ErrNoOverlay is returned before the first tick rendered an overlay
	ErrNoOverlay = errors.New("no overlay rendered yet")
)

// Broadcaster sends messages to connected web clients
type Broadcaster interface {
	Broadcast(msg interface{})
	BroadcastToCamera(cameraID string, msg interface{})
}

// Publisher publishes events on the bus
type Publisher interface {
	Publish(subject string, data interface{}) error
}

// FrameProvider supplies frames of a go2rtc stream
type FrameProvider interface {
	Source(stream string) detection.FrameSource
	GrabFrame(ctx context.Context, stream string) (*detection.Frame, error)
}

// Toast is a transient in-app message
type Toast struct {
	Variant     string `json:"variant"` // default or destructive
	Title       string `json:"title"`
	Description string `json:"description"`
}

// DetectionView is a prediction as the client draws it
type DetectionView struct {
	BBox     [4]float64 `json:"bbox"`
	Class    string     `json:"class"`
	Score    float64    `json:"score"`
	Label    string     `json:"label"`
	Category string     `json:"category"`
	Color    string     `json:"color"`
}

// DetectionMessage is sent to clients after every tick
type DetectionMessage struct {
	CameraID   string          `json:"camera_id"`
	FrameID    int64           `json:"frame_id"`
	Width      int             `json:"width"`
	Height     int             `json:"height"`
	Detections []DetectionView `json:"detections"`
	FPS        int             `json:"fps"`
	FrameCount int64           `json:"frame_count"`
	Timestamp  time.Time       `json:"timestamp"`
}

// StateEvent reports a detection state change of one camera
type StateEvent struct {
	CameraID  string          `json:"camera_id"`
	State     detection.State `json:"state"`
	Active    bool            `json:"active"`
	Error     string          `json:"error,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// CameraStats is the stats panel of one camera
type CameraStats struct {
	CameraID string `json:"camera_id"`
	detection.LoopStats
	Viewers int `json:"viewers"`
}

// AnalysisResult is the outcome of a one-shot analysis
type AnalysisResult struct {
	ID         string                 `json:"id"`
	CameraID   string                 `json:"camera_id"`
	Width      int                    `json:"width"`
	Height     int                    `json:"height"`
	Detections []detection.Prediction `json:"detections"`
	ElapsedMs  int64                  `json:"elapsed_ms"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Config holds the collaborators of a Service
type Config struct {
	Config      *config.Config
	Loader      detection.Loader
	Frames      FrameProvider
	Notifier    *notify.Notifier // optional
	Hub         Broadcaster      // optional
	Bus         Publisher        // optional
	Metrics     *metrics.Metrics // optional
	Logger      *slog.Logger
	Now         func() time.Time
	JPEGQuality int
}

// Service runs one detection loop per camera over a shared model
type Service struct {
	cfg      *config.Config
	loader   *sharedLoader
	frames   FrameProvider
	notifier *notify.Notifier
	hub      Broadcaster
	bus      Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	quality  int

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	cameras      map[string]*cameraState
	settings     detection.Settings
	lastObjectAt time.Time
	closed       bool
}

type cameraState struct {
	id     string
	loop   *detection.Loop
	stream *FrameBroadcaster

	mu     sync.Mutex
	canvas *overlay.ImageCanvas
	latest *detection.Snapshot
}

// New creates a Service. No loop runs until StartDetection.
func New(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = DefaultJPEGQuality
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:      cfg.Config,
		frames:   cfg.Frames,
		notifier: cfg.Notifier,
		hub:      cfg.Hub,
		bus:      cfg.Bus,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "livecam"),
		now:      cfg.Now,
		quality:  cfg.JPEGQuality,
		ctx:      ctx,
		cancel:   cancel,
		cameras:  make(map[string]*cameraState),
		settings: cfg.Config.DetectionSettings(),
	}
	loadTimeout := func() time.Duration {
		return time.Duration(s.cfg.Snapshot().Model.LoadTimeoutSeconds) * time.Second
	}
	s.loader = newSharedLoader(ctx, cfg.Loader, loadTimeout, func(ok bool) {
		if s.metrics != nil {
			s.metrics.ModelLoad(ok)
		}
	})
	return s
}

// Start activates detection on every enabled camera when auto start is set
func (s *Service) Start() {
	snap := s.cfg.Snapshot()
	if !snap.Detection.AutoStart {
		return
	}
	for _, cam := range snap.Cameras {
		if !cam.Enabled {
			continue
		}
		if err := s.StartDetection(cam.ID); err != nil {
			s.logger.Warn("Failed to auto start detection", "camera", cam.ID, "error", err)
		}
	}
}

// Close stops every loop and disconnects every viewer
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cameras := make([]*cameraState, 0, len(s.cameras))
	for _, cs := range s.cameras {
		cameras = append(cameras, cs)
	}
	s.mu.Unlock()

	s.cancel()
	for _, cs := range cameras {
		cs.loop.Close()
		cs.stream.Close()
	}
	s.logger.Info("Live detection stopped")
}

// camera returns the state of a camera, creating it on first use
func (s *Service) camera(id string) (*cameraState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("service closed")
	}
	if cs, ok := s.cameras[id]; ok {
		return cs, nil
	}

	snap := s.cfg.Snapshot()
	cs := &cameraState{
		id:     id,
		stream: NewFrameBroadcaster(),
		canvas: overlay.NewImageCanvas(),
	}
	cs.loop = detection.NewLoop(s.ctx, detection.LoopConfig{
		CameraID:    id,
		Loader:      s.loader,
		Source:      s.frames.Source(s.streamName(id)),
		Sink:        &cameraSink{s: s, cs: cs},
		Settings:    s.Settings,
		LoadOptions: detection.LoadOptions{Base: snap.Model.Base},
		Interval:    snap.Detection.Interval(),
		LoadTimeout: time.Duration(snap.Model.LoadTimeoutSeconds) * time.Second,
		Logger:      s.logger,
		Now:         s.now,
		OnInference: func(latency time.Duration, err error) {
			if s.metrics == nil {
				return
			}
			if err != nil {
				s.metrics.InferenceError(id)
				return
			}
			s.metrics.ObserveInference(id, latency)
		},
	})
	s.cameras[id] = cs
	return cs, nil
}

func (s *Service) lookup(id string) (*cameraState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cs, ok := s.cameras[id]
	return cs, ok
}

func (s *Service) streamName(id string) string {
	if cam := s.cfg.GetCamera(id); cam != nil {
		return cam.StreamName()
	}
	return detection.StreamName(id)
}

// StartDetection activates the loop of a camera
func (s *Service) StartDetection(id string) error {
	cs, err := s.camera(id)
	if err != nil {
		return err
	}
	state := detection.StateLoading
	if cs.loop.Stats().ModelReady {
		state = detection.StateRunning
	}
	s.publishState(id, state, true, nil)
	cs.loop.Activate()
	if s.metrics != nil {
		s.metrics.SetLoopActive(id, true)
	}
	s.logger.Info("Detection activated", "camera", id)
	return nil
}

// StopDetection deactivates the loop of a camera and clears its overlay
func (s *Service) StopDetection(id string) {
	cs, ok := s.lookup(id)
	if !ok {
		return
	}
	cs.loop.Deactivate()

	cs.mu.Lock()
	cs.canvas.Clear()
	cs.latest = nil
	cs.mu.Unlock()

	if s.metrics != nil {
		s.metrics.SetLoopActive(id, false)
		s.metrics.SetFPS(id, 0)
	}
	s.publishState(id, detection.StateIdle, false, nil)
	s.logger.Info("Detection deactivated", "camera", id)
}

// DetectionActive reports whether a camera has detection requested
func (s *Service) DetectionActive(id string) bool {
	cs, ok := s.lookup(id)
	return ok && cs.loop.Active()
}

// Settings returns the current detection settings
func (s *Service) Settings() detection.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// UpdateSettings replaces the settings used from the next tick on and
// persists them as the new defaults
func (s *Service) UpdateSettings(settings detection.Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()

	if err := s.cfg.SetDetectionSettings(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	s.broadcast(clientMessage("detection_settings", settings))
	return nil
}

// SetCategory toggles one category filter
func (s *Service) SetCategory(cat detection.Category, enabled bool) (detection.Settings, error) {
	settings := detection.SetEnabled(s.Settings(), cat, enabled)
	if err := s.UpdateSettings(settings); err != nil {
		return detection.Settings{}, err
	}
	return settings, nil
}

// OnConfigChange picks up settings edited in the config file
func (s *Service) OnConfigChange(cfg *config.Config) {
	settings := cfg.DetectionSettings()
	if settings.Validate() != nil {
		return
	}
	s.mu.Lock()
	s.settings = settings
	s.mu.Unlock()
}

// Latest returns the last snapshot of a camera
func (s *Service) Latest(id string) (detection.Snapshot, bool) {
	cs, ok := s.lookup(id)
	if !ok {
		return detection.Snapshot{}, false
	}
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.latest == nil {
		return detection.Snapshot{}, false
	}
	return *cs.latest, true
}

// OverlayPNG returns the transparent overlay of the last tick
func (s *Service) OverlayPNG(id string) ([]byte, error) {
	cs, ok := s.lookup(id)
	if !ok {
		return nil, ErrUnknownCamera
	}
	cs.mu.Lock()
	img := cs.canvas.Snapshot()
	cs.mu.Unlock()
	if img.Bounds().Empty() {
		return nil, ErrNoOverlay
	}
	return overlay.EncodePNG(img)
}

// Stream returns the MJPEG broadcaster of a camera
func (s *Service) Stream(id string) (*FrameBroadcaster, error) {
	cs, err := s.camera(id)
	if err != nil {
		return nil, err
	}
	return cs.stream, nil
}

// Stats returns the stats panel of a camera
func (s *Service) Stats(id string) CameraStats {
	stats := CameraStats{CameraID: id, LoopStats: detection.LoopStats{State: detection.StateIdle}}
	if cs, ok := s.lookup(id); ok {
		stats.LoopStats = cs.loop.Stats()
		stats.Viewers = cs.stream.ClientCount()
	}
	stats.ModelReady = s.loader.Loaded()
	return stats
}

// ModelLoaded reports whether the shared model is loaded
func (s *Service) ModelLoaded() bool {
	return s.loader.Loaded()
}

// Analyze runs detection once on the current frame of a camera
func (s *Service) Analyze(ctx context.Context, id string) (*AnalysisResult, error) {
	start := s.now()
	snap := s.cfg.Snapshot()

	frame, err := s.frames.GrabFrame(ctx, s.streamName(id))
	if err != nil {
		return nil, fmt.Errorf("failed to grab frame: %w", err)
	}
	if !frame.Ready() {
		return nil, detection.ErrNotReady
	}

	model, err := s.loader.Load(ctx, detection.LoadOptions{Base: snap.Model.Base})
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}

	inferStart := time.Now()
	predictions, err := model.Detect(ctx, frame)
	if s.metrics != nil {
		if err != nil {
			s.metrics.InferenceError(id)
		} else {
			s.metrics.ObserveInference(id, time.Since(inferStart))
		}
	}
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}

	elapsed := s.now().Sub(start)
	result := &AnalysisResult{
		ID:         uuid.New().String(),
		CameraID:   id,
		Width:      frame.Width,
		Height:     frame.Height,
		Detections: detection.Filter(predictions, s.Settings()),
		ElapsedMs:  elapsed.Milliseconds(),
		Timestamp:  start,
	}

	if s.notifier != nil && snap.Notifications.Enabled {
		s.notifier.NotifyAnalysisComplete(ctx, 1, elapsed)
		s.countNotification(notify.TemplateAnalysisComplete)
	}
	return result, nil
}

// Categories lists the category filters with their current state
func (s *Service) Categories() []CategoryInfo {
	settings := s.Settings()
	cats := detection.Categories()
	out := make([]CategoryInfo, 0, len(cats))
	for _, c := range cats {
		out = append(out, CategoryInfo{
			Category: c,
			Color:    detection.HexColor(c),
			Enabled:  detection.IsEnabled(c, settings),
			Classes:  detection.Members(c),
		})
	}
	return out
}

// CategoryInfo describes one category filter
type CategoryInfo struct {
	Category detection.Category `json:"category"`
	Color    string             `json:"color"`
	Enabled  bool               `json:"enabled"`
	Classes  []string           `json:"classes"`
}

func (s *Service) publishState(id string, state detection.State, active bool, err error) {
	event := StateEvent{
		CameraID:  id,
		State:     state,
		Active:    active,
		Timestamp: s.now(),
	}
	if err != nil {
		event.Error = err.Error()
	}
	s.broadcast(clientMessage(MessageTypeDetectionState, event))
	s.publish(core.SubjectDetectionState, event)
}

func (s *Service) toast(t Toast) {
	s.broadcast(clientMessage(MessageTypeToast, t))
}

func (s *Service) broadcast(msg interface{}) {
	if s.hub != nil {
		s.hub.Broadcast(msg)
	}
}

func (s *Service) publish(subject string, data interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(subject, data); err != nil {
		s.logger.Debug("Failed to publish event", "subject", subject, "error", err)
	}
}

func (s *Service) countNotification(template string) {
	if s.metrics != nil {
		s.metrics.Notification(template)
	}
}

// notifyObjects raises the object notification, at most once per cooldown
func (s *Service) notifyObjects(snap detection.Snapshot) {
	if s.notifier == nil || len(snap.Detections) == 0 {
		return
	}
	cfg := s.cfg.Snapshot().Notifications
	if !cfg.Enabled {
		return
	}

	now := s.now()
	cooldown := time.Duration(cfg.ObjectCooldownSeconds) * time.Second
	s.mu.Lock()
	if !s.lastObjectAt.IsZero() && now.Sub(s.lastObjectAt) < cooldown {
		s.mu.Unlock()
		return
	}
	s.lastObjectAt = now
	s.mu.Unlock()

	objects, confidence := summarize(snap.Detections)
	ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
	defer cancel()
	s.notifier.NotifyObjectDetected(ctx, objects, confidence)
	s.countNotification(notify.TemplateObjectDetected)
}

// summarize returns the distinct display names in order of appearance and
// the highest score
func summarize(predictions []detection.Prediction) ([]string, float64) {
	seen := make(map[string]bool)
	var objects []string
	var best float64
	for _, p := range predictions {
		name := detection.DisplayName(p.Class)
		if !seen[name] {
			seen[name] = true
			objects = append(objects, name)
		}
		if p.Score > best {
			best = p.Score
		}
	}
	return objects, best
}

func views(predictions []detection.Prediction, s detection.Settings) []DetectionView {
	out := make([]DetectionView, 0, len(predictions))
	for _, p := range predictions {
		cat := detection.Classify(p.Class)
		out = append(out, DetectionView{
			BBox:     p.BBox,
			Class:    p.Class,
			Score:    p.Score,
			Label:    overlay.Label(p, s.ShowConfidence),
			Category: string(cat),
			Color:    detection.HexColor(cat),
		})
	}
	return out
}

func clientMessage(msgType string, data interface{}) map[string]interface{} {
	return map[string]interface{}{
		"type":      msgType,
		"timestamp": time.Now(),
		"data":      data,
	}
}
