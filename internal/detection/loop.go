package detection

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sync"
	"time"
)

// State is the lifecycle state of a Loop
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateRunning State = "running"
)

// DefaultInterval is the delay between ticks, roughly one display refresh
const DefaultInterval = time.Second / 30

// LoopConfig holds the collaborators of a Loop
type LoopConfig struct {
	CameraID    string
	Loader      Loader
	Source      FrameSource
	Sink        Sink
	Settings    func() Settings
	LoadOptions LoadOptions
	Interval    time.Duration
	LoadTimeout time.Duration
	Logger      *slog.Logger

	// OnInference is called after every model call with its latency
	OnInference func(latency time.Duration, err error)

	// Now is used for FPS computation; defaults to time.Now
	Now func() time.Time
}

// LoopStats is a point-in-time view of a Loop for the stats panel
type LoopStats struct {
	State           State     `json:"state"`
	ModelReady      bool      `json:"model_ready"`
	FPS             int       `json:"fps"`
	FrameCount      int64     `json:"frame_count"`
	Detections      int       `json:"detections"`
	InferenceErrors int64     `json:"inference_errors"`
	SkippedTicks    int64     `json:"skipped_ticks"`
	LastTick        time.Time `json:"last_tick,omitempty"`
}

// Loop drives inference against a live frame source. At most one model load
// and at most one inference call are outstanding at any time.
type Loop struct {
	mu     sync.Mutex
	cfg    LoopConfig
	parent context.Context
	logger *slog.Logger

	state      State
	model      Model
	wantActive bool
	closed     bool

	// cancel/done belong to the running goroutine; loadCancel to the in-flight load
	cancel     context.CancelFunc
	done       chan struct{}
	prevDone   chan struct{}
	loadCancel context.CancelFunc

	lastTick        time.Time
	fps             int
	frameCount      int64
	lastDetections  int
	inferenceErrors int64
	skippedTicks    int64
}

// NewLoop creates an idle loop. ctx bounds the lifetime of every goroutine the
// loop starts.
func NewLoop(ctx context.Context, cfg LoopConfig) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = 2 * time.Minute
	}
	if cfg.Settings == nil {
		cfg.Settings = DefaultSettings
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Loop{
		cfg:    cfg,
		parent: ctx,
		logger: cfg.Logger.With("component", "detection_loop", "camera", cfg.CameraID),
		state:  StateIdle,
	}
}

// Activate requests detection. It loads the model on first use and is a
// no-op while a load is in flight or the loop is already running.
func (l *Loop) Activate() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return
	}
	l.wantActive = true

	switch l.state {
	case StateLoading, StateRunning:
		return
	}

	if l.model != nil {
		l.startLocked()
		return
	}

	l.state = StateLoading
	ctx, cancel := context.WithTimeout(l.parent, l.cfg.LoadTimeout)
	l.loadCancel = cancel
	go l.load(ctx, cancel)
}

func (l *Loop) load(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	l.logger.Info("Loading detection model", "base", l.cfg.LoadOptions.Base)
	start := time.Now()
	model, err := l.cfg.Loader.Load(ctx, l.cfg.LoadOptions)

	l.mu.Lock()
	l.loadCancel = nil
	if err != nil {
		l.state = StateIdle
		wanted := l.wantActive && !l.closed
		l.wantActive = false
		l.mu.Unlock()

		if !wanted {
			l.logger.Info("Detection model load ended after detection was switched off", "error", err)
			return
		}
		l.logger.Error("Failed to load detection model", "error", err)
		if l.cfg.Sink != nil {
			l.cfg.Sink.OnLoadError(err)
		}
		return
	}

	l.model = model
	if l.closed || !l.wantActive {
		l.state = StateIdle
		l.mu.Unlock()
		l.logger.Info("Detection model loaded but detection was switched off", "duration", time.Since(start))
		return
	}
	l.startLocked()
	l.mu.Unlock()

	l.logger.Info("Detection model loaded", "duration", time.Since(start))
	if l.cfg.Sink != nil {
		l.cfg.Sink.OnModelReady()
	}
}

// startLocked starts the tick goroutine (must hold lock)
func (l *Loop) startLocked() {
	ctx, cancel := context.WithCancel(l.parent)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.state = StateRunning
	l.lastTick = time.Time{}
	go l.run(ctx, done, l.prevDone)
}

// Deactivate stops the loop and waits until the pending tick is cancelled.
// It must not be called from a Sink callback.
func (l *Loop) Deactivate() {
	l.mu.Lock()
	l.wantActive = false
	if l.state != StateRunning {
		l.mu.Unlock()
		return
	}
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.prevDone = done
	l.state = StateIdle
	l.fps = 0
	l.mu.Unlock()

	cancel()
	<-done
	l.logger.Info("Detection stopped")
}

// Close deactivates the loop, aborts a pending load and rejects future
// activations
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	if l.loadCancel != nil {
		l.loadCancel()
	}
	l.mu.Unlock()

	l.Deactivate()
}

// State returns the current lifecycle state
func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Active reports whether detection has been requested and not switched off
func (l *Loop) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.wantActive
}

// Stats returns the stats panel values
func (l *Loop) Stats() LoopStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LoopStats{
		State:           l.state,
		ModelReady:      l.model != nil,
		FPS:             l.fps,
		FrameCount:      l.frameCount,
		Detections:      l.lastDetections,
		InferenceErrors: l.inferenceErrors,
		SkippedTicks:    l.skippedTicks,
		LastTick:        l.lastTick,
	}
}

func (l *Loop) run(ctx context.Context, done, prev chan struct{}) {
	defer close(done)

	// A previous run may still be unwinding after a concurrent Deactivate
	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		l.tick(ctx)

		if ctx.Err() != nil {
			return
		}
		// The next tick is scheduled only after this one settled
		timer.Reset(l.cfg.Interval)
	}
}

func (l *Loop) tick(ctx context.Context) {
	frame, err := l.cfg.Source.CurrentFrame(ctx)
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, ErrNotReady) {
			l.logger.Debug("Frame unavailable", "error", err)
		}
		l.skip()
		return
	}
	if !frame.Ready() {
		l.skip()
		return
	}

	settings := l.cfg.Settings()

	l.mu.Lock()
	model := l.model
	l.mu.Unlock()

	start := time.Now()
	predictions, err := model.Detect(ctx, frame)
	if ctx.Err() != nil {
		// Deactivated while inference was in flight
		return
	}
	if l.cfg.OnInference != nil {
		l.cfg.OnInference(time.Since(start), err)
	}
	if err != nil {
		l.mu.Lock()
		l.inferenceErrors++
		l.mu.Unlock()
		l.logger.Warn("Error during object detection", "error", err)
		return
	}

	kept := Filter(predictions, settings)
	now := l.cfg.Now()

	l.mu.Lock()
	if !l.lastTick.IsZero() {
		if delta := now.Sub(l.lastTick); delta > 0 {
			l.fps = int(math.Round(float64(time.Second) / float64(delta)))
		}
	}
	l.lastTick = now
	l.frameCount++
	l.lastDetections = len(kept)
	snap := Snapshot{
		CameraID:   l.cfg.CameraID,
		Timestamp:  now,
		FrameID:    frame.FrameID,
		Width:      frame.Width,
		Height:     frame.Height,
		Detections: kept,
		FPS:        l.fps,
		FrameCount: l.frameCount,
		Settings:   settings,
		Frame:      frame,
	}
	l.mu.Unlock()

	if l.cfg.Sink != nil {
		l.cfg.Sink.OnSnapshot(snap)
	}
}

func (l *Loop) skip() {
	l.mu.Lock()
	l.skippedTicks++
	l.mu.Unlock()
}
