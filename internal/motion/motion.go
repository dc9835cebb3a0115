// Package motion decides which camera frames are worth sending. It scores
// each candidate against the last forwarded frame, forwards frames that
// moved enough or are due as a periodic forced frame, and keeps a local
// thumbnail in step with what was sent.
package motion

import (
	"image"
	"math"
	"time"
)

// Config holds the gate's tuning constants. The defaults are empirical.
type Config struct {
	// Threshold is the minimum Score that counts as motion, on the
	// per-channel 0..255 scale.
	Threshold float64
	// ForceInterval forwards every Nth candidate regardless of motion.
	ForceInterval int
	// Stride samples every Nth pixel when scoring.
	Stride int
	// FrameInterval is the minimum spacing between candidates.
	FrameInterval time.Duration
}

// DefaultConfig returns the reference tuning.
func DefaultConfig() Config {
	return Config{
		Threshold:     10,
		ForceInterval: 10,
		Stride:        2,
		FrameInterval: 200 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Threshold < 0 {
		c.Threshold = d.Threshold
	}
	if c.ForceInterval < 1 {
		c.ForceInterval = d.ForceInterval
	}
	if c.Stride < 1 {
		c.Stride = d.Stride
	}
	if c.FrameInterval < 0 {
		c.FrameInterval = d.FrameInterval
	}
	return c
}

// Score returns the mean absolute per-channel difference (R, G and B) over
// every stride-th pixel of prev and cur, in 0..255. Missing or differently
// sized frames score +Inf.
func Score(prev, cur *image.RGBA, stride int) float64 {
	if prev == nil || cur == nil {
		return math.Inf(1)
	}
	w, h := cur.Rect.Dx(), cur.Rect.Dy()
	if prev.Rect.Dx() != w || prev.Rect.Dy() != h || w == 0 || h == 0 {
		return math.Inf(1)
	}
	if stride < 1 {
		stride = 1
	}

	var sum, n int
	for p := 0; p < w*h; p += stride {
		x, y := p%w, p/w
		a := prev.Pix[prev.PixOffset(prev.Rect.Min.X+x, prev.Rect.Min.Y+y):]
		b := cur.Pix[cur.PixOffset(cur.Rect.Min.X+x, cur.Rect.Min.Y+y):]
		sum += absDiff(a[0], b[0]) + absDiff(a[1], b[1]) + absDiff(a[2], b[2])
		n++
	}
	return float64(sum) / float64(3*n)
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
