// Package screen captures a display with kbinani/screenshot.
package screen

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/kbinani/screenshot"
	"github.com/pion/logging"

	"github.com/junsooki/AirCam/internal/device"
	"github.com/junsooki/AirCam/internal/permissions"
)

// maxFailures is how many consecutive failed grabs end the track, which is
// how a removed display or revoked permission shows up.
const maxFailures = 5

var ErrDisplayLost = errors.New("display lost")

// Provider implements device.Provider for one display. The display size
// is the negotiated resolution, whatever was requested.
type Provider struct {
	display int
	log     logging.LeveledLogger

	numDisplays func() int
	bounds      func(int) image.Rectangle
	grab        func(image.Rectangle) (*image.RGBA, error)
	permitted   func() bool
}

// NewProvider captures display index (0 = primary). lf may be nil.
func NewProvider(display int, lf logging.LoggerFactory) *Provider {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &Provider{
		display:     display,
		log:         lf.NewLogger("device"),
		numDisplays: screenshot.NumActiveDisplays,
		bounds:      screenshot.GetDisplayBounds,
		grab:        screenshot.CaptureRect,
		permitted:   permissions.HasScreenRecording,
	}
}

// Supported checks for an active display and, on macOS, the screen
// recording permission.
func (p *Provider) Supported() error {
	if p.numDisplays() == 0 {
		return fmt.Errorf("%w: no active display", device.ErrNotSupported)
	}
	if !p.permitted() {
		return fmt.Errorf("%w: screen recording permission not granted", device.ErrNotSupported)
	}
	return nil
}

// Acquire starts grabbing the display at c.FrameRate.
func (p *Provider) Acquire(ctx context.Context, c device.Constraints) (device.Stream, error) {
	if c.Role != device.RoleScreen {
		return nil, fmt.Errorf("%w: screen provider cannot open %s", device.ErrNoDevice, c.Role)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !p.permitted() {
		return nil, fmt.Errorf("%w: screen recording", device.ErrPermissionDenied)
	}
	if p.display >= p.numDisplays() {
		return nil, fmt.Errorf("%w: display %d", device.ErrNoDevice, p.display)
	}

	fps := c.FrameRate
	if fps < 1 {
		fps = 1
	}
	b := p.bounds(p.display)
	stop := make(chan struct{})
	t := device.NewFrameTrack(fmt.Sprintf("display-%d", p.display),
		device.Settings{Width: b.Dx(), Height: b.Dy(), FrameRate: fps},
		func() error {
			close(stop)
			return nil
		})

	if c.Width != b.Dx() || c.Height != b.Dy() {
		p.log.Debugf("display %d is %dx%d (requested %dx%d)", p.display, b.Dx(), b.Dy(), c.Width, c.Height)
	}

	go p.run(t, time.Second/time.Duration(fps), stop)
	return &stream{tracks: []device.Track{t}}, nil
}

func (p *Provider) run(t *device.FrameTrack, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		if p.grabOnce(t) {
			failures = 0
		} else if failures++; failures >= maxFailures {
			p.log.Warnf("display %d: %d consecutive capture failures, ending", p.display, failures)
			t.End(ErrDisplayLost)
			return
		}

		select {
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

func (p *Provider) grabOnce(t *device.FrameTrack) bool {
	if p.display >= p.numDisplays() {
		return false
	}
	img, err := p.grab(p.bounds(p.display))
	if err != nil {
		p.log.Debugf("display %d capture: %v", p.display, err)
		return false
	}
	t.Publish(img)
	return true
}

type stream struct {
	tracks []device.Track
}

func (s *stream) Tracks() []device.Track { return s.tracks }
