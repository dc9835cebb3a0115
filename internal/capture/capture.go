// Package capture turns a live device track into a steady sequence of
// encoded, validated frames. One Capturer type serves every device role;
// whether frames are motion gated is decided by the caller.
package capture

import (
	"time"
)

// Frame is one encoded capture. It is immutable once emitted and the
// capturer keeps no reference to it.
type Frame struct {
	// Seq increases by one for every frame a capturer emits.
	Seq       uint64
	MediaType string
	// Data holds the encoded bytes, Payload their base64 form.
	Data    []byte
	Payload string
	// Width and Height are the raster dimensions the frame was encoded
	// at, i.e. the device's negotiated resolution.
	Width      int
	Height     int
	CapturedAt time.Time
}

// Stats summarises capture loop behaviour for instrumentation.
type Stats struct {
	Ticks    uint64
	NotReady uint64
	Emitted  uint64
	Invalid  uint64
	Failed   uint64
}
