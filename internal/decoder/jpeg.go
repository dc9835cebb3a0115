package decoder

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"
)

// DefaultMaxPixels rejects frames larger than 8K UHD before decoding.
const DefaultMaxPixels = 7680 * 4320

// JPEGDecoder decodes JPEG bytes into *image.RGBA.
type JPEGDecoder struct {
	maxPixels int
}

func NewJPEGDecoder() *JPEGDecoder {
	return &JPEGDecoder{maxPixels: DefaultMaxPixels}
}

// Decode returns an RGBA image whose bounds start at the origin. The header
// is checked first so a corrupt or hostile size never allocates.
func (d *JPEGDecoder) Decode(data []byte) (*image.RGBA, error) {
	cfg, err := jpeg.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > d.maxPixels {
		return nil, fmt.Errorf("jpeg: frame %dx%d exceeds %d pixels", cfg.Width, cfg.Height, d.maxPixels)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	// jpeg yields YCbCr or Gray; pixel comparison wants RGBA.
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	return rgba, nil
}
