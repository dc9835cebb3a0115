// Package preview keeps the local thumbnail of what the camera is sending.
package preview

import (
	"image"
	"image/color"
	"sync"

	"golang.org/x/image/draw"
)

const (
	DefaultWidth  = 320
	DefaultHeight = 240
)

// Thumbnail is a fixed-size canvas that shows the latest rendered frame
// scaled to fit, centred, with letterbox bars.
type Thumbnail struct {
	mu      sync.Mutex
	canvas  *image.RGBA
	bg      color.RGBA
	shown   bool
	renders uint64
}

// NewThumbnail creates a w×h canvas. Non-positive sizes select the
// defaults.
func NewThumbnail(w, h int) *Thumbnail {
	if w <= 0 || h <= 0 {
		w, h = DefaultWidth, DefaultHeight
	}
	t := &Thumbnail{
		canvas: image.NewRGBA(image.Rect(0, 0, w, h)),
		bg:     color.RGBA{A: 0xff},
	}
	t.fill()
	return t
}

// Size returns the canvas dimensions.
func (t *Thumbnail) Size() (int, int) {
	return t.canvas.Rect.Dx(), t.canvas.Rect.Dy()
}

// Render draws img aspect-fit into the canvas.
func (t *Thumbnail) Render(img image.Image) {
	if img == nil {
		return
	}
	sb := img.Bounds()
	if sb.Empty() {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.fill()
	dst := Fit(t.canvas.Rect, sb.Dx(), sb.Dy())
	draw.ApproxBiLinear.Scale(t.canvas, dst, img, sb, draw.Src, nil)
	t.shown = true
	t.renders++
}

// Clear blanks the canvas and hides it.
func (t *Thumbnail) Clear() {
	t.mu.Lock()
	t.fill()
	t.shown = false
	t.mu.Unlock()
}

// Visible reports whether a frame has been rendered since the last Clear.
func (t *Thumbnail) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shown
}

// Renders counts Render calls over the thumbnail's lifetime.
func (t *Thumbnail) Renders() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.renders
}

// CurrentFrame returns a copy of the canvas, or nil while hidden.
func (t *Thumbnail) CurrentFrame() *image.RGBA {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.shown {
		return nil
	}
	out := image.NewRGBA(t.canvas.Rect)
	copy(out.Pix, t.canvas.Pix)
	return out
}

func (t *Thumbnail) fill() {
	draw.Draw(t.canvas, t.canvas.Rect, &image.Uniform{C: t.bg}, image.Point{}, draw.Src)
}

// Fit returns the largest rectangle with the aspect ratio of a w×h source
// that fits inside view, centred.
func Fit(view image.Rectangle, w, h int) image.Rectangle {
	vw, vh := view.Dx(), view.Dy()
	if w <= 0 || h <= 0 || vw <= 0 || vh <= 0 {
		return image.Rectangle{}
	}
	// Compare w/h with vw/vh without floating point.
	var fw, fh int
	if w*vh >= h*vw {
		fw = vw
		fh = h * vw / w
	} else {
		fh = vh
		fw = w * vh / h
	}
	x := view.Min.X + (vw-fw)/2
	y := view.Min.Y + (vh-fh)/2
	return image.Rect(x, y, x+fw, y+fh)
}
