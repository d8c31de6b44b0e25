package detection

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"
)

// Go2RTCFrameGrabber grabs frames from go2rtc
type Go2RTCFrameGrabber struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGo2RTCFrameGrabber creates a new frame grabber for go2rtc
func NewGo2RTCFrameGrabber(baseURL string) *Go2RTCFrameGrabber {
	return &Go2RTCFrameGrabber{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default().With("component", "frame_grabber"),
	}
}

// StreamName converts a camera ID to a go2rtc stream name
func StreamName(cameraID string) string {
	return strings.ToLower(strings.ReplaceAll(cameraID, " ", "_"))
}

// GrabFrame grabs a single frame from a camera. A stream that is not
// producing frames yet yields ErrNotReady.
func (g *Go2RTCFrameGrabber) GrabFrame(ctx context.Context, cameraID string) (*Frame, error) {
	u := fmt.Sprintf("%s/api/frame.jpeg?src=%s", g.baseURL, url.QueryEscape(StreamName(cameraID)))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch frame: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusServiceUnavailable:
		g.logger.Debug("Stream not producing frames", "camera", cameraID, "status", resp.StatusCode)
		return nil, ErrNotReady
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame data: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrNotReady
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()

	return &Frame{
		CameraID:  cameraID,
		Timestamp: time.Now(),
		Image:     img,
		Data:      data,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}, nil
}

// Source returns a FrameSource bound to one camera
func (g *Go2RTCFrameGrabber) Source(cameraID string) FrameSource {
	var seq atomic.Int64
	return FrameSourceFunc(func(ctx context.Context) (*Frame, error) {
		frame, err := g.GrabFrame(ctx, cameraID)
		if err != nil {
			return nil, err
		}
		frame.FrameID = seq.Add(1)
		return frame, nil
	})
}

// ImageToBytes converts an image to JPEG bytes
func ImageToBytes(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FrameFromImage wraps an already decoded image as a Frame
func FrameFromImage(cameraID string, img image.Image) (*Frame, error) {
	data, err := ImageToBytes(img, 85)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	bounds := img.Bounds()
	return &Frame{
		CameraID:  cameraID,
		Timestamp: time.Now(),
		Image:     img,
		Data:      data,
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
	}, nil
}
