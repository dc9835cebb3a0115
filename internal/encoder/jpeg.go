package encoder

import (
	"bytes"
	"image"
	"image/jpeg"
	"sync/atomic"
)

// DefaultQuality matches the quality factor browsers apply for a 0.8
// canvas export.
const DefaultQuality = 80

// MediaTypeJPEG is the MIME type produced by JPEGEncoder.
const MediaTypeJPEG = "image/jpeg"

// JPEGEncoder encodes frames as JPEG.
type JPEGEncoder struct {
	quality atomic.Int32
	// sizeHint pre-sizes the output buffer from the previous frame.
	sizeHint atomic.Int64
}

// NewJPEGEncoder creates a JPEG encoder with the given quality (1-100).
func NewJPEGEncoder(quality int) *JPEGEncoder {
	e := &JPEGEncoder{}
	e.SetQuality(quality)
	return e
}

// SetQuality clamps quality to 1-100.
func (e *JPEGEncoder) SetQuality(quality int) {
	e.quality.Store(int32(clampQuality(quality)))
}

// Quality returns the current quality factor.
func (e *JPEGEncoder) Quality() int {
	return int(e.quality.Load())
}

func (e *JPEGEncoder) MediaType() string { return MediaTypeJPEG }

func (e *JPEGEncoder) Encode(img *image.RGBA) ([]byte, error) {
	var buf bytes.Buffer
	if hint := e.sizeHint.Load(); hint > 0 {
		buf.Grow(int(hint + hint/4))
	} else {
		buf.Grow(64 * 1024)
	}
	err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: e.Quality()})
	if err != nil {
		return nil, err
	}
	e.sizeHint.Store(int64(buf.Len()))
	return buf.Bytes(), nil
}

func clampQuality(q int) int {
	if q < 1 {
		return 1
	}
	if q > 100 {
		return 100
	}
	return q
}
