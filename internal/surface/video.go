// Package surface implements the presentable surface a live stream is
// attached to before it can be sampled.
package surface

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/junsooki/AirCam/internal/device"
)

var (
	ErrNoSource    = errors.New("surface has no source")
	ErrSourceEnded = errors.New("surface source ended before playback")
)

const defaultPollInterval = 5 * time.Millisecond

// Video presents the first track of an attached stream. It holds no frame
// copy of its own: the presented frame is always the track's latest.
type Video struct {
	mu      sync.Mutex
	src     device.Stream
	track   device.Track
	playing bool

	poll time.Duration
}

// NewVideo returns an empty surface.
func NewVideo() *Video {
	return &Video{poll: defaultPollInterval}
}

// Attach sets s as the source. Any previous source is dropped and playback
// must be started again.
func (v *Video) Attach(s device.Stream) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.src = s
	v.track = nil
	v.playing = false
	if s != nil {
		if tracks := s.Tracks(); len(tracks) > 0 {
			v.track = tracks[0]
		}
	}
}

// Play waits until the source has a presentable frame.
func (v *Video) Play(ctx context.Context) error {
	ticker := time.NewTicker(v.poll)
	defer ticker.Stop()

	for {
		v.mu.Lock()
		track := v.track
		if track == nil {
			v.mu.Unlock()
			return ErrNoSource
		}
		if _, ok := track.Frame(); ok {
			v.playing = true
			v.mu.Unlock()
			return nil
		}
		v.mu.Unlock()

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for first frame: %w", ctx.Err())
		case <-track.Ended():
			return ErrSourceEnded
		case <-ticker.C:
		}
	}
}

// Pause stops presenting without detaching the source.
func (v *Video) Pause() {
	v.mu.Lock()
	v.playing = false
	v.mu.Unlock()
}

// Ready reports whether a frame is presentable right now.
func (v *Video) Ready() bool {
	return v.Frame() != nil
}

// Frame returns the presented frame, or nil.
func (v *Video) Frame() image.Image {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.playing || v.track == nil {
		return nil
	}
	img, ok := v.track.Frame()
	if !ok {
		return nil
	}
	return img
}

// Reset detaches the source and forgets playback state.
func (v *Video) Reset() error {
	v.mu.Lock()
	v.src = nil
	v.track = nil
	v.playing = false
	v.mu.Unlock()
	return nil
}

// Attached reports whether a source is set.
func (v *Video) Attached() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.src != nil
}
