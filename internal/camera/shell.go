// Package camera provides the camera preview shell: camera enumeration,
// selection, flip and minimize, with detection following the current camera.
package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/JayjayR89/ai-live-cam/internal/config"
)

// Status represents camera status
type Status string

const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
)

var (
	// ErrCameraNotFound is returned for an unknown camera id
	ErrCameraNotFound = errors.New("camera not found")
	// ErrNoCamera is returned when no camera is selected
	ErrNoCamera = errors.New("no camera selected")
	// ErrCannotFlip is returned when the flip control is not available
	ErrCannotFlip = errors.New("cannot flip camera")
)

// Camera represents a camera's current state
type Camera struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Stream     string     `json:"stream"`
	Facing     string     `json:"facing,omitempty"`
	Status     Status     `json:"status"`
	Discovered bool       `json:"discovered"` // listed by go2rtc but not configured
	Resolution string     `json:"resolution,omitempty"`
	Codec      string     `json:"codec,omitempty"`
	FPS        float64    `json:"fps,omitempty"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
}

// DetectionController switches detection on and off per camera
type DetectionController interface {
	StartDetection(cameraID string) error
	StopDetection(cameraID string)
	DetectionActive(cameraID string) bool
}

// ShellState is what the preview shows
type ShellState struct {
	Cameras         []Camera `json:"cameras"`
	Current         string   `json:"current"`
	Minimized       bool     `json:"minimized"`
	CanFlip         bool     `json:"can_flip"`
	DetectionActive bool     `json:"detection_active"`
}

// ShellConfig configures a Shell
type ShellConfig struct {
	Config         *config.Config
	Streams        StreamSource
	Detection      DetectionController
	HealthInterval time.Duration
	Logger         *slog.Logger
	Now            func() time.Time
}

// Shell manages the camera preview
type Shell struct {
	cfg       *config.Config
	streams   StreamSource
	detection DetectionController
	interval  time.Duration
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.RWMutex
	cameras   map[string]*Camera
	order     []string
	current   string
	minimized bool
	listeners []func(ShellState)

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewShell creates a new camera shell
func NewShell(cfg ShellConfig) *Shell {
	if cfg.HealthInterval <= 0 {
		cfg.HealthInterval = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Shell{
		cfg:       cfg.Config,
		streams:   cfg.Streams,
		detection: cfg.Detection,
		interval:  cfg.HealthInterval,
		logger:    cfg.Logger.With("component", "camera-shell"),
		now:       cfg.Now,
		cameras:   make(map[string]*Camera),
		stopChan:  make(chan struct{}),
	}
}

// Start loads the cameras and starts health monitoring
func (s *Shell) Start(ctx context.Context) error {
	s.logger.Info("Starting camera shell")

	if err := s.Refresh(ctx); err != nil {
		s.logger.Warn("Initial camera refresh incomplete", "error", err)
	}

	go s.healthMonitor(ctx)
	return nil
}

// Stop stops health monitoring
func (s *Shell) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// Refresh rebuilds the camera list from the config and go2rtc, and updates
// camera health. Without a stream source every camera is reported offline.
func (s *Shell) Refresh(ctx context.Context) error {
	var streams map[string]StreamStats
	var fetchErr error
	if s.streams != nil {
		streams, fetchErr = s.streams.Streams(ctx)
		if fetchErr != nil {
			fetchErr = fmt.Errorf("failed to fetch go2rtc streams: %w", fetchErr)
		}
	}

	s.mu.Lock()
	dropped := s.rebuildLocked(streams, fetchErr == nil)
	s.mu.Unlock()
	s.stopDropped(dropped)

	s.mu.RLock()
	state := s.stateLocked()
	listeners := s.listeners
	s.mu.RUnlock()

	s.logger.Debug("Cameras refreshed", "camera_count", len(state.Cameras), "current", state.Current)
	notify(listeners, state)
	return fetchErr
}

// SyncFromConfig rebuilds the camera list after a config change, keeping
// the last known health
func (s *Shell) SyncFromConfig() {
	s.mu.Lock()
	dropped := s.rebuildLocked(nil, false)
	s.mu.Unlock()
	s.stopDropped(dropped)

	s.changed()
}

// rebuildLocked merges configured cameras with discovered streams. When
// fresh is false the stream map is ignored and discovered cameras are kept.
// It returns the previous current camera when that camera disappeared.
func (s *Shell) rebuildLocked(streams map[string]StreamStats, fresh bool) (dropped string) {
	now := s.now()
	cameras := make(map[string]*Camera)
	var order []string
	claimed := make(map[string]bool)

	var configured []config.CameraConfig
	if s.cfg != nil {
		configured = s.cfg.ListCameras()
	}
	for _, cc := range configured {
		if !cc.Enabled {
			continue
		}
		cam := &Camera{
			ID:     cc.ID,
			Name:   cc.Name,
			Stream: cc.StreamName(),
			Facing: cc.Facing,
			Status: StatusOffline,
		}
		claimed[cam.Stream] = true
		cameras[cam.ID] = cam
		order = append(order, cam.ID)
	}

	var discovered []string
	if fresh {
		for name := range streams {
			if !claimed[name] {
				discovered = append(discovered, name)
			}
		}
		sort.Strings(discovered)
	} else {
		for _, id := range s.order {
			if prev := s.cameras[id]; prev != nil && prev.Discovered && !claimed[prev.Stream] {
				discovered = append(discovered, id)
			}
		}
	}
	for _, name := range discovered {
		if _, exists := cameras[name]; exists {
			continue
		}
		cameras[name] = &Camera{ID: name, Name: name, Stream: name, Status: StatusOffline, Discovered: true}
		order = append(order, name)
	}

	for id, cam := range cameras {
		if fresh {
			applyHealth(cam, checkHealth(cam.Stream, streams, now))
			continue
		}
		if prev := s.cameras[id]; prev != nil {
			cam.Status = prev.Status
			cam.Resolution = prev.Resolution
			cam.Codec = prev.Codec
			cam.FPS = prev.FPS
			cam.LastSeen = prev.LastSeen
		}
	}

	s.cameras = cameras
	s.order = order

	if _, ok := s.cameras[s.current]; !ok {
		dropped = s.current
		s.current = ""
		if len(s.order) > 0 {
			s.current = s.order[0]
		}
	}
	return dropped
}

// stopDropped stops detection on a camera that left the list
func (s *Shell) stopDropped(id string) {
	if id == "" || s.detection == nil || !s.detection.DetectionActive(id) {
		return
	}
	s.logger.Info("Current camera removed, stopping detection", "camera", id)
	s.detection.StopDetection(id)
}

func applyHealth(cam *Camera, h Health) {
	cam.Status = h.Status
	cam.Resolution = h.Resolution
	cam.Codec = h.Codec
	cam.FPS = h.FPS
	if h.Status == StatusOnline {
		t := h.LastCheck
		cam.LastSeen = &t
	}
}

// healthMonitor refreshes camera health periodically
func (s *Shell) healthMonitor(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-ticker.C:
			if err := s.Refresh(ctx); err != nil {
				s.logger.Warn("Camera health check failed", "error", err)
			}
		}
	}
}

// List returns all cameras in display order
func (s *Shell) List() []Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listLocked()
}

func (s *Shell) listLocked() []Camera {
	out := make([]Camera, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.cameras[id])
	}
	return out
}

// Get returns a camera by ID
func (s *Shell) Get(id string) (Camera, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cam, ok := s.cameras[id]
	if !ok {
		return Camera{}, fmt.Errorf("%w: %s", ErrCameraNotFound, id)
	}
	return *cam, nil
}

// Current returns the selected camera
func (s *Shell) Current() (Camera, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cam, ok := s.cameras[s.current]
	if !ok {
		return Camera{}, false
	}
	return *cam, true
}

// Select makes id the current camera. Active detection moves with it.
func (s *Shell) Select(id string) error {
	s.mu.Lock()
	if _, ok := s.cameras[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrCameraNotFound, id)
	}
	previous := s.current
	s.current = id
	s.mu.Unlock()

	if previous != id {
		s.logger.Info("Camera selected", "camera", id, "previous", previous)
		s.moveDetection(previous, id)
	}
	s.changed()
	return nil
}

// Flip switches to the next camera, wrapping around. It is only available
// when more than one camera exists, the current one is online and the
// preview is not minimized.
func (s *Shell) Flip() (Camera, error) {
	s.mu.Lock()
	if !s.canFlipLocked() {
		s.mu.Unlock()
		return Camera{}, ErrCannotFlip
	}
	previous := s.current
	idx := 0
	for i, id := range s.order {
		if id == previous {
			idx = i
			break
		}
	}
	next := s.order[(idx+1)%len(s.order)]
	s.current = next
	cam := *s.cameras[next]
	s.mu.Unlock()

	s.logger.Info("Camera flipped", "camera", next, "previous", previous)
	s.moveDetection(previous, next)
	s.changed()
	return cam, nil
}

// moveDetection keeps detection running on the camera in view
func (s *Shell) moveDetection(from, to string) {
	if s.detection == nil || from == "" || !s.detection.DetectionActive(from) {
		return
	}
	s.detection.StopDetection(from)
	if err := s.detection.StartDetection(to); err != nil {
		s.logger.Warn("Failed to start detection on new camera", "camera", to, "error", err)
	}
}

// SetMinimized minimizes or restores the preview
func (s *Shell) SetMinimized(minimized bool) ShellState {
	s.mu.Lock()
	s.minimized = minimized
	s.mu.Unlock()
	return s.changed()
}

// ToggleMinimized flips the minimized flag
func (s *Shell) ToggleMinimized() ShellState {
	s.mu.Lock()
	s.minimized = !s.minimized
	s.mu.Unlock()
	return s.changed()
}

// SetDetection turns detection on or off for the current camera
func (s *Shell) SetDetection(enabled bool) error {
	cam, ok := s.Current()
	if !ok {
		return ErrNoCamera
	}
	if s.detection == nil {
		return fmt.Errorf("detection unavailable")
	}

	if enabled {
		if err := s.detection.StartDetection(cam.ID); err != nil {
			return err
		}
	} else {
		s.detection.StopDetection(cam.ID)
	}
	s.changed()
	return nil
}

// State returns the shell state
func (s *Shell) State() ShellState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stateLocked()
}

func (s *Shell) stateLocked() ShellState {
	state := ShellState{
		Cameras:   s.listLocked(),
		Current:   s.current,
		Minimized: s.minimized,
		CanFlip:   s.canFlipLocked(),
	}
	if s.detection != nil && s.current != "" {
		state.DetectionActive = s.detection.DetectionActive(s.current)
	}
	return state
}

func (s *Shell) canFlipLocked() bool {
	cur, ok := s.cameras[s.current]
	return len(s.order) > 1 && ok && cur.Status == StatusOnline && !s.minimized
}

// OnChange registers a callback for shell state changes
func (s *Shell) OnChange(fn func(ShellState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Shell) changed() ShellState {
	s.mu.RLock()
	state := s.stateLocked()
	listeners := s.listeners
	s.mu.RUnlock()

	notify(listeners, state)
	return state
}

func notify(listeners []func(ShellState), state ShellState) {
	for _, fn := range listeners {
		fn(state)
	}
}
