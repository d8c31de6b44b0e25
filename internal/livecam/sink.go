package livecam

import (
	"context"
	"time"

	"github.com/JayjayR89/ai-live-cam/internal/core"
	"github.com/JayjayR89/ai-live-cam/internal/detection"
	"github.com/JayjayR89/ai-live-cam/internal/notify"
	"github.com/JayjayR89/ai-live-cam/internal/overlay"
)

// cameraSink receives the loop results of one camera
type cameraSink struct {
	s  *Service
	cs *cameraState
}

// OnSnapshot repaints the overlay and fans the tick out to viewers, web
// clients and the bus
func (k *cameraSink) OnSnapshot(snap detection.Snapshot) {
	s, cs := k.s, k.cs

	cs.mu.Lock()
	overlay.RenderSnapshot(cs.canvas, snap)
	cs.latest = &snap
	var composited []byte
	if cs.stream.ClientCount() > 0 && snap.Frame != nil && snap.Frame.Image != nil {
		img := overlay.Composite(snap.Frame.Image, cs.canvas.Image())
		data, err := overlay.EncodeJPEG(img, s.quality)
		if err != nil {
			s.logger.Warn("Failed to encode stream frame", "camera", cs.id, "error", err)
		} else {
			composited = data
		}
	}
	cs.mu.Unlock()

	if composited != nil {
		dropped := cs.stream.Broadcast(composited)
		if s.metrics != nil {
			s.metrics.FramesStreamed.Add(1)
			s.metrics.FramesDropped.Add(uint64(dropped))
		}
	}

	msg := DetectionMessage{
		CameraID:   snap.CameraID,
		FrameID:    snap.FrameID,
		Width:      snap.Width,
		Height:     snap.Height,
		Detections: views(snap.Detections, snap.Settings),
		FPS:        snap.FPS,
		FrameCount: snap.FrameCount,
		Timestamp:  snap.Timestamp,
	}
	if s.hub != nil {
		s.hub.BroadcastToCamera(cs.id, clientMessage(MessageTypeDetection, msg))
	}
	s.publish(core.DetectionsSubject(cs.id), snap)

	if s.metrics != nil {
		s.metrics.SetFPS(cs.id, snap.FPS)
		if len(snap.Detections) > 0 {
			byCategory := make(map[string]int)
			for _, p := range snap.Detections {
				byCategory[string(detection.Classify(p.Class))]++
			}
			s.metrics.AddDetections(cs.id, byCategory)
		}
	}

	s.notifyObjects(snap)
}

// OnLoadError reports a failed model load. The loop is already idle.
func (k *cameraSink) OnLoadError(err error) {
	s := k.s
	s.toast(Toast{
		Variant:     "destructive",
		Title:       ToastModelFailedTitle,
		Description: ToastModelFailedDesc,
	})
	if s.metrics != nil {
		s.metrics.SetLoopActive(k.cs.id, false)
	}
	s.publishState(k.cs.id, detection.StateIdle, false, err)

	if s.notifier != nil && s.cfg.Snapshot().Notifications.Enabled {
		ctx, cancel := context.WithTimeout(s.ctx, 5*time.Second)
		defer cancel()
		s.notifier.NotifyError(ctx, ToastModelFailedDesc, true)
		s.countNotification(notify.TemplateError)
	}
}

// OnModelReady announces that detection is running
func (k *cameraSink) OnModelReady() {
	s := k.s
	s.toast(Toast{
		Variant:     "default",
		Title:       ToastModelReadyTitle,
		Description: ToastModelReadyDescription,
	})
	s.publishState(k.cs.id, detection.StateRunning, true, nil)
}
