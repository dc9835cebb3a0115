// Package display shows a stream of frames in a desktop window.
package display

import (
	"image"
	"sync"
)

// Display renders frames until the user closes it.
type Display interface {
	Run() error
}

// FrameSource provides frames to the display. A nil frame leaves the
// window blank.
type FrameSource interface {
	CurrentFrame() *image.RGBA
}

// Latest is a FrameSource holding the most recently received frame.
type Latest struct {
	mu    sync.Mutex
	frame *image.RGBA
}

// Set replaces the current frame (called from the network goroutine).
func (l *Latest) Set(img *image.RGBA) {
	l.mu.Lock()
	l.frame = img
	l.mu.Unlock()
}

func (l *Latest) CurrentFrame() *image.RGBA {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frame
}
