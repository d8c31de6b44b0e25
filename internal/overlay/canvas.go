// Package overlay paints detection boxes and labels onto a transparent
// canvas aligned with the camera frame.
package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Canvas is the subset of a 2D drawing context the renderer needs.
// Coordinates are in frame pixels; text is positioned by its top edge.
type Canvas interface {
	Resize(width, height int)
	Size() (width, height int)
	Clear()
	StrokeRect(x, y, w, h float64, c color.RGBA, lineWidth float64)
	FillRect(x, y, w, h float64, c color.RGBA)
	MeasureText(text string) float64
	FillText(text string, x, y float64, c color.RGBA)
}

// ImageCanvas is a Canvas backed by an RGBA image
type ImageCanvas struct {
	img  *image.RGBA
	face font.Face
}

// NewImageCanvas creates an empty canvas
func NewImageCanvas() *ImageCanvas {
	return &ImageCanvas{
		img:  image.NewRGBA(image.Rect(0, 0, 0, 0)),
		face: basicfont.Face7x13,
	}
}

// Resize sets the pixel dimensions. The buffer is only reallocated when the
// size changes.
func (c *ImageCanvas) Resize(width, height int) {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	b := c.img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return
	}
	c.img = image.NewRGBA(image.Rect(0, 0, width, height))
}

// Size returns the pixel dimensions
func (c *ImageCanvas) Size() (int, int) {
	b := c.img.Bounds()
	return b.Dx(), b.Dy()
}

// Clear makes every pixel transparent
func (c *ImageCanvas) Clear() {
	clear(c.img.Pix)
}

// StrokeRect outlines a rectangle with the line centered on its edges
func (c *ImageCanvas) StrokeRect(x, y, w, h float64, col color.RGBA, lineWidth float64) {
	if lineWidth <= 0 {
		return
	}
	half := lineWidth / 2
	// top, bottom, left, right
	c.FillRect(x-half, y-half, w+lineWidth, lineWidth, col)
	c.FillRect(x-half, y+h-half, w+lineWidth, lineWidth, col)
	c.FillRect(x-half, y+half, lineWidth, h-lineWidth, col)
	c.FillRect(x+w-half, y+half, lineWidth, h-lineWidth, col)
}

// FillRect fills a rectangle, blending translucent colors over the canvas
func (c *ImageCanvas) FillRect(x, y, w, h float64, col color.RGBA) {
	r := image.Rect(
		int(math.Round(x)), int(math.Round(y)),
		int(math.Round(x+w)), int(math.Round(y+h)),
	).Intersect(c.img.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(c.img, r, image.NewUniform(col), image.Point{}, draw.Over)
}

// MeasureText returns the advance width of text in pixels
func (c *ImageCanvas) MeasureText(text string) float64 {
	return float64(font.MeasureString(c.face, text).Ceil())
}

// FillText draws text with its top edge at y
func (c *ImageCanvas) FillText(text string, x, y float64, col color.RGBA) {
	ascent := c.face.Metrics().Ascent.Ceil()
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(col),
		Face: c.face,
		Dot:  fixed.P(int(math.Round(x)), int(math.Round(y))+ascent),
	}
	d.DrawString(text)
}

// Image returns the backing image. It is reused between renders.
func (c *ImageCanvas) Image() *image.RGBA {
	return c.img
}

// Snapshot returns a copy of the current pixels
func (c *ImageCanvas) Snapshot() *image.RGBA {
	cp := image.NewRGBA(c.img.Bounds())
	copy(cp.Pix, c.img.Pix)
	return cp
}
