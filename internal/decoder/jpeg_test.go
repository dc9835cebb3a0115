package decoder

import (
	"bytes"
	"image"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJPEGDecoder_Decode(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 40, 30))
	for i := range src.Pix {
		src.Pix[i] = 0x80
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, &jpeg.Options{Quality: 90}))

	var d Decoder = NewJPEGDecoder()
	out, err := d.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), out.Rect)
	assert.Len(t, out.Pix, 40*30*4)
	// Flat grey survives compression within a small tolerance.
	assert.InDelta(t, 0x80, int(out.Pix[0]), 3)
	assert.Equal(t, uint8(0xff), out.Pix[3])
}

func TestJPEGDecoder_RejectsGarbage(t *testing.T) {
	_, err := NewJPEGDecoder().Decode([]byte("not a jpeg"))
	assert.Error(t, err)
}

func TestJPEGDecoder_RejectsOversizeFrames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 64, 64)), nil))

	d := &JPEGDecoder{maxPixels: 32 * 32}
	_, err := d.Decode(buf.Bytes())
	assert.ErrorContains(t, err, "exceeds")
}
