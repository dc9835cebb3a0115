package encoder

import "image"

// Encoder is the single lossy compression step applied to a captured
// raster before it leaves the capturer.
type Encoder interface {
	Encode(img *image.RGBA) ([]byte, error)
	SetQuality(quality int)
	// MediaType is the MIME type of the encoded bytes.
	MediaType() string
}
