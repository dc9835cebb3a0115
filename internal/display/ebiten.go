package display

import (
	"image"
	"math"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
)

// Option configures an EbitenDisplay.
type Option func(*EbitenDisplay)

// WithKey runs fn on its own goroutine each time k is pressed, so slow
// actions such as a camera flip never stall rendering.
func WithKey(k ebiten.Key, fn func()) Option {
	return func(d *EbitenDisplay) { d.keys[k] = fn }
}

// WithWindowSize sets the initial window size.
func WithWindowSize(w, h int) Option {
	return func(d *EbitenDisplay) { d.winW, d.winH = w, h }
}

// EbitenDisplay renders a FrameSource letterboxed using Ebitengine.
// Escape closes the window.
type EbitenDisplay struct {
	title       string
	src         FrameSource
	keys        map[ebiten.Key]func()
	winW, winH  int
	ebitenImage *ebiten.Image
}

// NewEbitenDisplay creates a display for src.
func NewEbitenDisplay(title string, src FrameSource, opts ...Option) *EbitenDisplay {
	d := &EbitenDisplay{
		title: title,
		src:   src,
		keys:  map[ebiten.Key]func(){},
		winW:  1280,
		winH:  720,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run starts the Ebitengine game loop. Must be called from the main goroutine.
func (d *EbitenDisplay) Run() error {
	ebiten.SetWindowSize(d.winW, d.winH)
	ebiten.SetWindowTitle(d.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(d)
}

// --- ebiten.Game interface ---

func (d *EbitenDisplay) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	for k, fn := range d.keys {
		if inpututil.IsKeyJustPressed(k) {
			go fn()
		}
	}
	return nil
}

func (d *EbitenDisplay) Draw(screen *ebiten.Image) {
	frame := d.src.CurrentFrame()
	if frame == nil {
		return
	}
	frame = compact(frame)

	fw, fh := frame.Rect.Dx(), frame.Rect.Dy()
	if d.ebitenImage == nil ||
		d.ebitenImage.Bounds().Dx() != fw ||
		d.ebitenImage.Bounds().Dy() != fh {
		d.ebitenImage = ebiten.NewImage(fw, fh)
	}
	d.ebitenImage.WritePixels(frame.Pix)

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	scale, offsetX, offsetY := aspectFitTransform(float64(sw), float64(sh), float64(fw), float64(fh))

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(offsetX, offsetY)
	op.Filter = ebiten.FilterLinear
	screen.DrawImage(d.ebitenImage, op)
}

func (d *EbitenDisplay) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}

// compact returns img with Pix holding exactly its visible pixels, as
// WritePixels requires.
func compact(img *image.RGBA) *image.RGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if img.Stride == 4*w && len(img.Pix) == 4*w*h {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		src := img.Pix[img.PixOffset(img.Rect.Min.X, img.Rect.Min.Y+y):]
		copy(out.Pix[y*out.Stride:(y+1)*out.Stride], src[:4*w])
	}
	return out
}

// aspectFitTransform returns scale and offsets to fit frame into view with letterboxing.
func aspectFitTransform(viewW, viewH, frameW, frameH float64) (scale, offsetX, offsetY float64) {
	scale = math.Min(viewW/frameW, viewH/frameH)
	offsetX = (viewW - frameW*scale) / 2
	offsetY = (viewH - frameH*scale) / 2
	return
}
