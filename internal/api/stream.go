package api

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// blankInterval is how long a viewer waits before a placeholder is sent
const blankInterval = 5 * time.Second

var (
	blankOnce sync.Once
	blankData []byte
)

// blankJPEG renders the placeholder shown while detection is not producing
// frames
func blankJPEG() []byte {
	blankOnce.Do(func() {
		img := image.NewRGBA(image.Rect(0, 0, 640, 480))
		bg := color.RGBA{R: 0x1F, G: 0x29, B: 0x37, A: 0xFF}
		for y := range 480 {
			for x := range 640 {
				img.Set(x, y, bg)
			}
		}
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err == nil {
			blankData = buf.Bytes()
		}
	})
	return blankData
}

// streamMJPEG writes frames from a broadcaster channel as a multipart stream
// until the client goes away or the channel is closed
func streamMJPEG(ctx context.Context, w http.ResponseWriter, frames <-chan []byte) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")

	timer := time.NewTimer(blankInterval)
	defer timer.Stop()

	for {
		var data []byte
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			data = frame
		case <-timer.C:
			data = blankJPEG()
		}
		timer.Reset(blankInterval)

		if err := writePart(w, data); err != nil {
			slog.Debug("MJPEG client disconnected", "error", err)
			return
		}
		flusher.Flush()
	}
}

func writePart(w http.ResponseWriter, data []byte) error {
	if _, err := w.Write([]byte("--frame\r\nContent-Type: image/jpeg\r\n\r\n")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\r\n"))
	return err
}
