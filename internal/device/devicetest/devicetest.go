// Package devicetest provides scriptable in-memory capture devices for
// tests.
package devicetest

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/junsooki/AirCam/internal/device"
)

// Pattern returns a deterministic high-detail image. Different seeds give
// visibly different frames; the same seed gives identical pixels.
func Pattern(w, h int, seed uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			v := uint8(x*7+y*13+x*y) ^ seed
			img.Pix[i+0] = v
			img.Pix[i+1] = v*3 + seed
			img.Pix[i+2] = uint8(x ^ y)
			img.Pix[i+3] = 0xff
		}
	}
	return img
}

// Provider is a device.Provider whose behaviour is set through its fields
// before use.
type Provider struct {
	// Err, when set, is returned by every Acquire.
	Err error
	// NoTracks makes Acquire return a stream without tracks.
	NoTracks bool
	// Blank makes new tracks never produce a frame.
	Blank bool
	// Negotiate overrides the settings a track runs with. By default the
	// requested constraints are granted.
	Negotiate func(c device.Constraints) device.Settings
	// Unsupported makes Supported fail.
	Unsupported bool

	mu       sync.Mutex
	requests []device.Constraints
	tracks   []*Track
}

// Acquire implements device.Provider.
func (p *Provider) Acquire(ctx context.Context, c device.Constraints) (device.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, c)
	if p.Err != nil {
		return nil, p.Err
	}
	if p.NoTracks {
		return &Stream{}, nil
	}

	s := device.Settings{Width: c.Width, Height: c.Height, FrameRate: c.FrameRate}
	if p.Negotiate != nil {
		s = p.Negotiate(c)
	}
	t := NewTrack(fmt.Sprintf("%s-%d", c.Role, len(p.tracks)), s)
	if !p.Blank {
		t.SetFrame(Pattern(s.Width, s.Height, uint8(len(p.tracks))))
	}
	p.tracks = append(p.tracks, t)
	return &Stream{tracks: []device.Track{t}}, nil
}

// Supported implements device.Provider.
func (p *Provider) Supported() error {
	if p.Unsupported {
		return device.ErrNotSupported
	}
	return nil
}

// Requests returns every constraint set passed to Acquire, in order.
func (p *Provider) Requests() []device.Constraints {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]device.Constraints(nil), p.requests...)
}

// Tracks returns every track handed out, in order.
func (p *Provider) Tracks() []*Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Track(nil), p.tracks...)
}

// LastTrack returns the most recently acquired track, or nil.
func (p *Provider) LastTrack() *Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.tracks) == 0 {
		return nil
	}
	return p.tracks[len(p.tracks)-1]
}

// Live counts tracks that have not been stopped.
func (p *Provider) Live() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, t := range p.tracks {
		if !t.Stopped() {
			n++
		}
	}
	return n
}

// Stream is a device.Stream over fixed tracks.
type Stream struct {
	tracks []device.Track
}

// NewStream wraps tracks in a stream.
func NewStream(tracks ...device.Track) *Stream {
	return &Stream{tracks: tracks}
}

// Tracks implements device.Stream.
func (s *Stream) Tracks() []device.Track { return s.tracks }

// Track is a device.Track driven by the test.
type Track struct {
	id string

	mu       sync.Mutex
	settings device.Settings
	frame    image.Image
	stopped  bool
	stopErr  error
	ended    chan struct{}
	endOnce  sync.Once
	stopCall int
}

// NewTrack creates a track running with s and no frame.
func NewTrack(id string, s device.Settings) *Track {
	return &Track{id: id, settings: s, ended: make(chan struct{})}
}

// ID implements device.Track.
func (t *Track) ID() string { return t.id }

// Settings implements device.Track.
func (t *Track) Settings() device.Settings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.settings
}

// SetSettings changes the negotiated settings mid-session.
func (t *Track) SetSettings(s device.Settings) {
	t.mu.Lock()
	t.settings = s
	t.mu.Unlock()
}

// Frame implements device.Track.
func (t *Track) Frame() (image.Image, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.frame == nil {
		return nil, false
	}
	return t.frame, true
}

// SetFrame replaces the presentable frame; nil means no data.
func (t *Track) SetFrame(img image.Image) {
	t.mu.Lock()
	t.frame = img
	t.mu.Unlock()
}

// Ended implements device.Track.
func (t *Track) Ended() <-chan struct{} { return t.ended }

// End simulates the device going away without anyone calling Stop.
func (t *Track) End() {
	t.endOnce.Do(func() { close(t.ended) })
}

// FailStop makes every later Stop return err (the track is still released).
func (t *Track) FailStop(err error) {
	t.mu.Lock()
	t.stopErr = err
	t.mu.Unlock()
}

// Stop implements device.Track.
func (t *Track) Stop() error {
	t.mu.Lock()
	t.stopped = true
	t.stopCall++
	err := t.stopErr
	t.mu.Unlock()
	t.End()
	return err
}

// Stopped reports whether Stop was called.
func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// StopCalls counts Stop invocations.
func (t *Track) StopCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopCall
}
