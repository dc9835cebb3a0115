package decoder

import "image"

// Decoder turns an encoded frame back into raw pixels.
type Decoder interface {
	Decode(data []byte) (*image.RGBA, error)
}
