// Package camera acquires webcams through pion/mediadevices. A driver must
// be registered by the binary, e.g. by importing
// github.com/pion/mediadevices/pkg/driver/camera.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/pion/logging"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/junsooki/AirCam/internal/device"
)

// firstFrameTimeout bounds how long Acquire waits to learn the negotiated
// resolution before falling back to the requested one.
const firstFrameTimeout = 3 * time.Second

// Provider implements device.Provider for cameras. The front role is the
// first video input, the rear role the second (or the first when only one
// exists).
type Provider struct {
	log       logging.LeveledLogger
	enumerate func() []mediadevices.MediaDeviceInfo
	open      func(mediadevices.MediaStreamConstraints) (mediadevices.MediaStream, error)
}

// NewProvider creates a camera provider. lf may be nil.
func NewProvider(lf logging.LoggerFactory) *Provider {
	if lf == nil {
		lf = logging.NewDefaultLoggerFactory()
	}
	return &Provider{
		log:       lf.NewLogger("device"),
		enumerate: mediadevices.EnumerateDevices,
		open:      mediadevices.GetUserMedia,
	}
}

// Supported reports whether any camera is present.
func (p *Provider) Supported() error {
	if len(videoInputs(p.enumerate())) == 0 {
		return fmt.Errorf("%w: no video input devices", device.ErrNotSupported)
	}
	return nil
}

// Acquire opens the camera selected by c.Role with c as ideal constraints.
func (p *Provider) Acquire(ctx context.Context, c device.Constraints) (device.Stream, error) {
	if !c.Role.IsCamera() {
		return nil, fmt.Errorf("%w: camera provider cannot open %s", device.ErrNoDevice, c.Role)
	}
	info, err := selectDevice(videoInputs(p.enumerate()), c.Role)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ms, err := p.open(mediadevices.MediaStreamConstraints{
		Video: func(mc *mediadevices.MediaTrackConstraints) {
			mc.DeviceID = prop.String(info.DeviceID)
			mc.Width = prop.Int(c.Width)
			mc.Height = prop.Int(c.Height)
			mc.FrameRate = prop.Float(float64(c.FrameRate))
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	var tracks []device.Track
	for _, mt := range ms.GetVideoTracks() {
		vt, ok := mt.(*mediadevices.VideoTrack)
		if !ok {
			_ = mt.Close()
			continue
		}
		tracks = append(tracks, p.start(ctx, vt, info.Label, c))
	}
	if len(tracks) == 0 {
		return &stream{}, nil
	}
	p.log.Infof("opened %s camera %q", c.Role, info.Label)
	return &stream{tracks: tracks}, nil
}

// start runs the frame reader for vt and waits briefly for its first
// frame so the negotiated size is known.
func (p *Provider) start(ctx context.Context, vt *mediadevices.VideoTrack, label string, c device.Constraints) *device.FrameTrack {
	initial := device.Settings{Width: c.Width, Height: c.Height, FrameRate: c.FrameRate}
	t := device.NewFrameTrack(vt.ID(), initial, vt.Close)

	vt.OnEnded(func(err error) {
		p.log.Warnf("camera %q ended: %v", label, err)
		t.End(err)
	})

	first := make(chan struct{})
	var once sync.Once
	go func() {
		defer once.Do(func() { close(first) })
		r := vt.NewReader(true)
		for {
			img, release, err := r.Read()
			if err != nil {
				select {
				case <-t.Ended():
				default:
					if !errors.Is(err, io.EOF) {
						p.log.Warnf("camera %q read: %v", label, err)
					}
					t.End(err)
				}
				return
			}
			t.Publish(img)
			release()
			once.Do(func() { close(first) })
		}
	}()

	select {
	case <-first:
	case <-ctx.Done():
	case <-time.After(firstFrameTimeout):
		p.log.Debugf("camera %q: no frame within %v, assuming requested size", label, firstFrameTimeout)
	}
	return t
}

func videoInputs(all []mediadevices.MediaDeviceInfo) []mediadevices.MediaDeviceInfo {
	var out []mediadevices.MediaDeviceInfo
	for _, d := range all {
		if d.Kind == mediadevices.VideoInput {
			out = append(out, d)
		}
	}
	return out
}

func selectDevice(cams []mediadevices.MediaDeviceInfo, role device.Role) (mediadevices.MediaDeviceInfo, error) {
	if len(cams) == 0 {
		return mediadevices.MediaDeviceInfo{}, device.ErrNoDevice
	}
	if role == device.RoleRearCamera && len(cams) > 1 {
		return cams[1], nil
	}
	return cams[0], nil
}

func classify(err error) error {
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%w: %w", device.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", device.ErrNoDevice, err)
}

type stream struct {
	tracks []device.Track
}

func (s *stream) Tracks() []device.Track { return s.tracks }
