package camera

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/JayjayR89/ai-live-cam/internal/config"
)

type fakeStreams struct {
	mu      sync.Mutex
	streams map[string]StreamStats
	err     error
}

func (f *fakeStreams) Streams(ctx context.Context) (map[string]StreamStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.streams, f.err
}

func (f *fakeStreams) set(streams map[string]StreamStats, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streams, f.err = streams, err
}

type fakeDetection struct {
	mu      sync.Mutex
	active  map[string]bool
	started []string
	stopped []string
	failOn  string
}

func newFakeDetection() *fakeDetection {
	return &fakeDetection{active: make(map[string]bool)}
}

func (f *fakeDetection) StartDetection(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == f.failOn {
		return errors.New("model unavailable")
	}
	f.active[id] = true
	f.started = append(f.started, id)
	return nil
}

func (f *fakeDetection) StopDetection(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, id)
	f.stopped = append(f.stopped, id)
}

func (f *fakeDetection) DetectionActive(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[id]
}

func online() StreamStats {
	return StreamStats{Producers: []ProducerStats{{
		URL:    "rtsp://cam",
		Recv:   1024,
		Medias: []string{"video, recvonly, H264"},
	}}}
}

func setupTestConfig(t *testing.T, cams ...config.CameraConfig) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Cameras = cams
	return cfg
}

func setupShell(t *testing.T, streams map[string]StreamStats, cams ...config.CameraConfig) (*Shell, *fakeDetection, *fakeStreams) {
	t.Helper()
	src := &fakeStreams{streams: streams}
	det := newFakeDetection()
	s := NewShell(ShellConfig{
		Config:    setupTestConfig(t, cams...),
		Streams:   src,
		Detection: det,
	})
	if err := s.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	return s, det, src
}

func twoCameras() []config.CameraConfig {
	return []config.CameraConfig{
		{ID: "front", Name: "Front", Facing: "environment", Enabled: true},
		{ID: "selfie", Name: "Selfie", Facing: "user", Enabled: true},
	}
}

func TestRefresh_MergesConfigAndDiscoveredStreams(t *testing.T) {
	s, _, _ := setupShell(t, map[string]StreamStats{
		"front":  online(),
		"garage": online(),
		"attic":  {},
	}, append(twoCameras(), config.CameraConfig{ID: "off", Enabled: false})...)

	cams := s.List()
	want := []string{"front", "selfie", "attic", "garage"}
	if len(cams) != len(want) {
		t.Fatalf("Expected %d cameras, got %d: %+v", len(want), len(cams), cams)
	}
	for i, id := range want {
		if cams[i].ID != id {
			t.Errorf("Camera %d = %s, want %s", i, cams[i].ID, id)
		}
	}

	if cams[0].Status != StatusOnline || cams[0].Codec != "H264" || cams[0].LastSeen == nil {
		t.Errorf("Expected front online with codec, got %+v", cams[0])
	}
	if cams[1].Status != StatusOffline {
		t.Errorf("Expected selfie offline, got %s", cams[1].Status)
	}
	if !cams[2].Discovered || cams[2].Status != StatusOffline {
		t.Errorf("Attic has no producers, got %+v", cams[2])
	}
	if cams[0].Discovered {
		t.Error("Configured camera should not be marked discovered")
	}
}

func TestRefresh_ConfiguredStreamName(t *testing.T) {
	s, _, _ := setupShell(t, map[string]StreamStats{"porch_main": online()},
		config.CameraConfig{ID: "porch", Stream: "porch_main", Enabled: true})

	cams := s.List()
	if len(cams) != 1 {
		t.Fatalf("Stream claimed by a camera should not be listed twice, got %+v", cams)
	}
	if cams[0].Status != StatusOnline {
		t.Errorf("Expected porch online, got %s", cams[0].Status)
	}
}

func TestRefresh_StreamError(t *testing.T) {
	s, _, src := setupShell(t, map[string]StreamStats{"front": online()}, twoCameras()...)

	src.set(nil, errors.New("connection refused"))
	if err := s.Refresh(context.Background()); err == nil {
		t.Error("Expected error from Refresh")
	}

	cam, err := s.Get("front")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if cam.Status != StatusOnline {
		t.Errorf("Failed fetch should keep the last known status, got %s", cam.Status)
	}
}

func TestCurrent_DefaultsToFirstCamera(t *testing.T) {
	s, _, _ := setupShell(t, nil, twoCameras()...)

	cam, ok := s.Current()
	if !ok || cam.ID != "front" {
		t.Errorf("Expected front to be current, got %+v (ok=%v)", cam, ok)
	}

	empty, _, _ := setupShell(t, nil)
	if _, ok := empty.Current(); ok {
		t.Error("Expected no current camera without cameras")
	}
}

func TestGet_NotFound(t *testing.T) {
	s, _, _ := setupShell(t, nil, twoCameras()...)

	if _, err := s.Get("nonexistent"); !errors.Is(err, ErrCameraNotFound) {
		t.Errorf("Expected ErrCameraNotFound, got %v", err)
	}
}

func TestCanFlip(t *testing.T) {
	tests := []struct {
		name      string
		cams      []config.CameraConfig
		streams   map[string]StreamStats
		minimized bool
		want      bool
	}{
		{"two cameras online", twoCameras(), map[string]StreamStats{"front": online()}, false, true},
		{"single camera", twoCameras()[:1], map[string]StreamStats{"front": online()}, false, false},
		{"current offline", twoCameras(), map[string]StreamStats{"selfie": online()}, false, false},
		{"minimized", twoCameras(), map[string]StreamStats{"front": online()}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _, _ := setupShell(t, tt.streams, tt.cams...)
			s.SetMinimized(tt.minimized)

			if got := s.State().CanFlip; got != tt.want {
				t.Errorf("CanFlip = %v, want %v", got, tt.want)
			}
			_, err := s.Flip()
			if tt.want && err != nil {
				t.Errorf("Flip failed: %v", err)
			}
			if !tt.want && !errors.Is(err, ErrCannotFlip) {
				t.Errorf("Expected ErrCannotFlip, got %v", err)
			}
		})
	}
}

func TestFlip_WrapsAround(t *testing.T) {
	s, _, _ := setupShell(t, map[string]StreamStats{"front": online(), "selfie": online()}, twoCameras()...)

	cam, err := s.Flip()
	if err != nil || cam.ID != "selfie" {
		t.Fatalf("Expected selfie, got %+v (%v)", cam, err)
	}
	cam, err = s.Flip()
	if err != nil || cam.ID != "front" {
		t.Fatalf("Expected front after wrap, got %+v (%v)", cam, err)
	}
}

func TestFlip_MovesDetection(t *testing.T) {
	s, det, _ := setupShell(t, map[string]StreamStats{"front": online(), "selfie": online()}, twoCameras()...)

	if err := s.SetDetection(true); err != nil {
		t.Fatalf("SetDetection failed: %v", err)
	}
	if !s.State().DetectionActive {
		t.Fatal("Expected detection active")
	}

	if _, err := s.Flip(); err != nil {
		t.Fatalf("Flip failed: %v", err)
	}

	if det.DetectionActive("front") {
		t.Error("Detection should stop on the previous camera")
	}
	if !det.DetectionActive("selfie") {
		t.Error("Detection should start on the new camera")
	}
	if !s.State().DetectionActive {
		t.Error("State should report detection on the new current camera")
	}
}

func TestSelect(t *testing.T) {
	s, det, _ := setupShell(t, nil, twoCameras()...)

	if err := s.Select("selfie"); err != nil {
		t.Fatalf("Select failed: %v", err)
	}
	if cam, _ := s.Current(); cam.ID != "selfie" {
		t.Errorf("Expected selfie, got %s", cam.ID)
	}
	if len(det.started) != 0 {
		t.Error("Select without active detection should not start it")
	}

	if err := s.Select("nonexistent"); !errors.Is(err, ErrCameraNotFound) {
		t.Errorf("Expected ErrCameraNotFound, got %v", err)
	}
}

func TestSetDetection(t *testing.T) {
	s, det, _ := setupShell(t, nil, twoCameras()...)

	if err := s.SetDetection(true); err != nil {
		t.Fatalf("SetDetection(true) failed: %v", err)
	}
	if !det.DetectionActive("front") {
		t.Error("Expected detection on front")
	}
	if err := s.SetDetection(false); err != nil {
		t.Fatalf("SetDetection(false) failed: %v", err)
	}
	if det.DetectionActive("front") {
		t.Error("Expected detection stopped")
	}

	det.failOn = "front"
	if err := s.SetDetection(true); err == nil {
		t.Error("Expected start error to be returned")
	}

	empty, _, _ := setupShell(t, nil)
	if err := empty.SetDetection(true); !errors.Is(err, ErrNoCamera) {
		t.Errorf("Expected ErrNoCamera, got %v", err)
	}
}

func TestToggleMinimized(t *testing.T) {
	s, _, _ := setupShell(t, nil, twoCameras()...)

	if state := s.ToggleMinimized(); !state.Minimized {
		t.Error("Expected minimized")
	}
	if state := s.ToggleMinimized(); state.Minimized {
		t.Error("Expected restored")
	}
}

func TestOnChange(t *testing.T) {
	s, _, _ := setupShell(t, nil, twoCameras()...)

	var states []ShellState
	s.OnChange(func(st ShellState) { states = append(states, st) })

	s.SetMinimized(true)
	_ = s.Select("selfie")

	if len(states) != 2 {
		t.Fatalf("Expected 2 notifications, got %d", len(states))
	}
	if !states[0].Minimized || states[1].Current != "selfie" {
		t.Errorf("Unexpected states: %+v", states)
	}
}

func TestSyncFromConfig_RemovedCurrentStopsDetection(t *testing.T) {
	cfg := setupTestConfig(t, twoCameras()...)
	det := newFakeDetection()
	s := NewShell(ShellConfig{Config: cfg, Detection: det})
	_ = s.Refresh(context.Background())

	if err := s.SetDetection(true); err != nil {
		t.Fatalf("SetDetection failed: %v", err)
	}

	cfg.Cameras = twoCameras()[1:]
	s.SyncFromConfig()

	if cam, _ := s.Current(); cam.ID != "selfie" {
		t.Errorf("Expected selfie to become current, got %s", cam.ID)
	}
	if det.DetectionActive("front") {
		t.Error("Detection on a removed camera should stop")
	}
}

func TestHealthMonitor(t *testing.T) {
	src := &fakeStreams{}
	s := NewShell(ShellConfig{
		Config:         setupTestConfig(t, twoCameras()...),
		Streams:        src,
		HealthInterval: 10 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer s.Stop()

	src.set(map[string]StreamStats{"front": online()}, nil)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cam, _ := s.Get("front"); cam.Status == StatusOnline {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Health monitor did not pick up the online stream")
}

func TestGo2RTCStreams(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/streams" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]StreamStats{
			"front": {Producers: []ProducerStats{{
				Recv:   2048,
				Tracks: []TrackStats{{Type: "video", Codec: "H265", Width: 1920, Height: 1080, FPS: 25}},
			}}},
		})
	}))
	defer server.Close()

	streams, err := NewGo2RTCStreams(server.URL + "/").Streams(context.Background())
	if err != nil {
		t.Fatalf("Streams failed: %v", err)
	}

	h := checkHealth("front", streams, time.Now())
	if h.Status != StatusOnline || h.Codec != "H265" || h.Resolution != "1920x1080" || h.FPS != 25 {
		t.Errorf("Unexpected health: %+v", h)
	}
	if h.BytesRecv != 2048 {
		t.Errorf("Expected 2048 bytes received, got %d", h.BytesRecv)
	}
}

func TestGo2RTCStreams_BadStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if _, err := NewGo2RTCStreams(server.URL).Streams(context.Background()); err == nil {
		t.Error("Expected error for non-200 response")
	}
}
