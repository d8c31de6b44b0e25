package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/JayjayR89/ai-live-cam/internal/detection"
)

// Label geometry in frame pixels
const (
	LineWidth   = 3.0
	GlowWidth   = 1.0
	LabelPad    = 6.0
	LabelHeight = 24.0
)

// LabelColor is the label text color
var LabelColor = color.RGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}

// Label formats the label of a prediction: the capitalized class name,
// followed by the rounded confidence when showConfidence is set
func Label(p detection.Prediction, showConfidence bool) string {
	label := detection.DisplayName(p.Class)
	if showConfidence {
		label += fmt.Sprintf(" %d%%", int(math.Round(p.Score*100)))
	}
	return label
}

// LabelRect places a label background for a box at (x, y). The label sits
// above the box unless that would leave the canvas, in which case it is drawn
// inside the top of the box. It is shifted left to stay within canvasWidth.
func LabelRect(x, y, textWidth, canvasWidth float64) (lx, ly, lw, lh float64) {
	lw = textWidth + 2*LabelPad
	lh = LabelHeight

	lx = x
	if lx+lw > canvasWidth {
		lx = canvasWidth - lw
	}
	if lx < 0 {
		lx = 0
	}

	ly = y - lh
	if ly < 0 {
		ly = y
	}
	if ly < 0 {
		ly = 0
	}
	return lx, ly, lw, lh
}

// Render repaints the canvas for one tick. The canvas is resized to the
// frame's native resolution and cleared, then every prediction is drawn in
// list order.
func Render(c Canvas, width, height int, predictions []detection.Prediction, s detection.Settings) {
	c.Resize(width, height)
	c.Clear()

	canvasWidth := float64(width)
	for _, p := range predictions {
		col := detection.ColorOf(detection.Classify(p.Class))
		x, y, w, h := p.X(), p.Y(), p.Width(), p.Height()

		c.StrokeRect(x, y, w, h, col, LineWidth)
		glow := col
		glow.A = 0x80
		offset := LineWidth/2 + GlowWidth/2
		c.StrokeRect(x-offset, y-offset, w+2*offset, h+2*offset, premultiply(glow), GlowWidth)

		if !s.ShowLabels {
			continue
		}

		label := Label(p, s.ShowConfidence)
		lx, ly, lw, lh := LabelRect(x, y, c.MeasureText(label), canvasWidth)
		c.FillRect(lx, ly, lw, lh, col)
		c.FillText(label, lx+LabelPad, ly+LabelPad, LabelColor)
	}
}

// RenderSnapshot renders the result of one loop tick
func RenderSnapshot(c Canvas, snap detection.Snapshot) {
	Render(c, snap.Width, snap.Height, snap.Detections, snap.Settings)
}

// Composite draws the overlay on top of a frame. The overlay is scaled when
// its size differs from the frame.
func Composite(frame image.Image, overlay *image.RGBA) *image.RGBA {
	b := frame.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, b.Min, draw.Src)

	if overlay == nil || overlay.Bounds().Empty() {
		return dst
	}
	if overlay.Bounds().Size() == dst.Bounds().Size() {
		draw.Draw(dst, dst.Bounds(), overlay, overlay.Bounds().Min, draw.Over)
		return dst
	}
	xdraw.BiLinear.Scale(dst, dst.Bounds(), overlay, overlay.Bounds(), draw.Over, nil)
	return dst
}

// EncodeJPEG encodes an image for the MJPEG stream
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodePNG encodes the transparent overlay
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// premultiply converts a straight-alpha color to the premultiplied form
// color.RGBA expects
func premultiply(c color.RGBA) color.RGBA {
	a := uint32(c.A)
	return color.RGBA{
		R: uint8(uint32(c.R) * a / 0xFF),
		G: uint8(uint32(c.G) * a / 0xFF),
		B: uint8(uint32(c.B) * a / 0xFF),
		A: c.A,
	}
}
