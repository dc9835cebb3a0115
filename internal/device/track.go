package device

import (
	"image"
	"sync"
)

// FrameTrack is a Track fed by a reader goroutine: the reader publishes
// frames, the capturer polls the latest one. Settings follow the size of
// the last published frame.
type FrameTrack struct {
	id     string
	stopFn func() error

	mu       sync.Mutex
	settings Settings
	frame    image.Image
	stopped  bool
	stopErr  error

	ended   chan struct{}
	endOnce sync.Once
	endErr  error
}

// NewFrameTrack creates a track that reports initial until the first frame
// arrives. stop releases the underlying device and runs at most once.
func NewFrameTrack(id string, initial Settings, stop func() error) *FrameTrack {
	return &FrameTrack{
		id:       id,
		stopFn:   stop,
		settings: initial,
		ended:    make(chan struct{}),
	}
}

func (t *FrameTrack) ID() string { return t.id }

func (t *FrameTrack) Settings() Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

func (t *FrameTrack) Frame() (image.Image, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.frame == nil {
		return nil, false
	}
	return t.frame, true
}

// Publish makes img the latest frame. It is ignored once the track has
// stopped or ended.
func (t *FrameTrack) Publish(img image.Image) {
	if img == nil {
		return
	}
	select {
	case <-t.ended:
		return
	default:
	}
	b := img.Bounds()
	t.mu.Lock()
	if !t.stopped {
		t.frame = img
		t.settings.Width, t.settings.Height = b.Dx(), b.Dy()
	}
	t.mu.Unlock()
}

func (t *FrameTrack) Ended() <-chan struct{} { return t.ended }

// End marks the track as ended by the device, recording why.
func (t *FrameTrack) End(err error) {
	t.endOnce.Do(func() {
		t.endErr = err
		close(t.ended)
	})
}

// Err returns the reason passed to End, if any.
func (t *FrameTrack) Err() error {
	select {
	case <-t.ended:
		return t.endErr
	default:
		return nil
	}
}

// Stop releases the device. Repeated calls return the first result.
func (t *FrameTrack) Stop() error {
	t.mu.Lock()
	if t.stopped {
		err := t.stopErr
		t.mu.Unlock()
		return err
	}
	t.stopped = true
	t.frame = nil
	t.mu.Unlock()

	var err error
	if t.stopFn != nil {
		err = t.stopFn()
	}
	t.mu.Lock()
	t.stopErr = err
	t.mu.Unlock()
	t.End(nil)
	return err
}
