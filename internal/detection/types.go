// Package detection provides the live object detection pipeline: the model
// adapter, the category filter policy and the per-camera detection loop.
package detection

import (
	"context"
	"errors"
	"image"
	"math"
	"time"
)

// ErrNotReady is returned by a FrameSource when the video has not started
// decoding yet. The loop treats it as a transient condition, not a failure.
var ErrNotReady = errors.New("video source not ready")

// Prediction is one detected object as returned by the model
type Prediction struct {
	BBox  [4]float64 `json:"bbox"` // x, y, width, height in source pixels
	Class string     `json:"class"`
	Score float64    `json:"score"`
}

// X returns the left edge of the bounding box
func (p Prediction) X() float64 { return p.BBox[0] }

// Y returns the top edge of the bounding box
func (p Prediction) Y() float64 { return p.BBox[1] }

// Width returns the bounding box width
func (p Prediction) Width() float64 { return p.BBox[2] }

// Height returns the bounding box height
func (p Prediction) Height() float64 { return p.BBox[3] }

// Settings holds the user controlled detection options. It is always passed by
// value so that a tick never observes a half-applied update.
type Settings struct {
	EnablePeople      bool    `json:"enable_people" yaml:"enable_people"`
	EnableVehicles    bool    `json:"enable_vehicles" yaml:"enable_vehicles"`
	EnableAnimals     bool    `json:"enable_animals" yaml:"enable_animals"`
	EnableObjects     bool    `json:"enable_objects" yaml:"enable_objects"`
	EnableElectronics bool    `json:"enable_electronics" yaml:"enable_electronics"`
	ShowLabels        bool    `json:"show_labels" yaml:"show_labels"`
	ShowConfidence    bool    `json:"show_confidence" yaml:"show_confidence"`
	MinConfidence     float64 `json:"min_confidence" yaml:"min_confidence"`
}

// DefaultSettings returns settings with every category enabled and a 50%
// confidence threshold
func DefaultSettings() Settings {
	return Settings{
		EnablePeople:      true,
		EnableVehicles:    true,
		EnableAnimals:     true,
		EnableObjects:     true,
		EnableElectronics: true,
		ShowLabels:        true,
		ShowConfidence:    true,
		MinConfidence:     0.5,
	}
}

// Validate checks that the settings are usable
func (s Settings) Validate() error {
	if !ValidConfidence(s.MinConfidence) {
		return &DetectionError{Message: "min_confidence must be between 0 and 1"}
	}
	return nil
}

// ValidConfidence reports whether v is a score threshold in [0, 1]
func ValidConfidence(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Frame is a decoded video frame
type Frame struct {
	CameraID  string
	Timestamp time.Time
	FrameID   int64
	Image     image.Image
	Data      []byte // encoded JPEG
	Width     int
	Height    int
}

// Ready reports whether the frame has decoded dimensions
func (f *Frame) Ready() bool {
	return f != nil && f.Width > 0 && f.Height > 0
}

// Snapshot is the result of one completed tick. It replaces the previous
// snapshot wholesale; detections are never merged across frames.
type Snapshot struct {
	CameraID   string       `json:"camera_id"`
	Timestamp  time.Time    `json:"timestamp"`
	FrameID    int64        `json:"frame_id"`
	Width      int          `json:"width"`
	Height     int          `json:"height"`
	Detections []Prediction `json:"detections"`
	FPS        int          `json:"fps"`
	FrameCount int64        `json:"frame_count"`
	Settings   Settings     `json:"settings"`
	Frame      *Frame       `json:"-"`
}

// LoadOptions selects the model variant to load
type LoadOptions struct {
	Base string `json:"base"` // mobilenet_v2, lite_mobilenet_v2, mobilenet_v1
}

// Model runs inference on a single frame
type Model interface {
	Detect(ctx context.Context, frame *Frame) ([]Prediction, error)
}

// Loader loads a Model. Loading may be slow and may fail.
type Loader interface {
	Load(ctx context.Context, opts LoadOptions) (Model, error)
}

// FrameSource exposes the current frame of a live video
type FrameSource interface {
	CurrentFrame(ctx context.Context) (*Frame, error)
}

// FrameSourceFunc adapts a function to FrameSource
type FrameSourceFunc func(ctx context.Context) (*Frame, error)

// CurrentFrame calls f
func (f FrameSourceFunc) CurrentFrame(ctx context.Context) (*Frame, error) {
	return f(ctx)
}

// Sink receives the results of the loop
type Sink interface {
	// OnSnapshot is called after every tick that ran inference
	OnSnapshot(snap Snapshot)

	// OnLoadError is called once when the model fails to load
	OnLoadError(err error)

	// OnModelReady is called once after the model loaded
	OnModelReady()
}

// DetectionError represents a detection error
type DetectionError struct {
	Message string
}

func (e *DetectionError) Error() string {
	return e.Message
}
