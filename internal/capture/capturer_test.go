package capture

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/AirCam/internal/device"
	"github.com/junsooki/AirCam/internal/device/devicetest"
	"github.com/junsooki/AirCam/internal/surface"
)

const waitFor = 2 * time.Second

func collect(ch chan Frame) func(Frame) {
	return func(f Frame) {
		select {
		case ch <- f:
		default:
		}
	}
}

func TestCapturer_UsesNegotiatedResolution(t *testing.T) {
	p := &devicetest.Provider{
		Negotiate: func(c device.Constraints) device.Settings {
			return device.Settings{Width: 352, Height: 288, FrameRate: c.FrameRate}
		},
	}
	c := New(p, device.RoleFrontCamera, WithResolution(640, 480))
	defer func() { _ = c.Stop() }()

	frames := make(chan Frame, 4)
	require.NoError(t, c.Start(context.Background(), surface.NewVideo(), 30, collect(frames)))

	select {
	case f := <-frames:
		assert.Equal(t, 352, f.Width)
		assert.Equal(t, 288, f.Height)
		assert.Equal(t, "image/jpeg", f.MediaType)
		assert.NoError(t, Validate(f, DefaultMinPayloadSize))
	case <-time.After(waitFor):
		t.Fatal("no frame emitted")
	}

	w, h := c.RasterSize()
	assert.Equal(t, 352, w)
	assert.Equal(t, 288, h)
	assert.Equal(t, device.Settings{Width: 352, Height: 288, FrameRate: 30}, c.Settings())

	req := p.Requests()
	require.Len(t, req, 1)
	assert.Equal(t, 640, req[0].Width)
	assert.Equal(t, 480, req[0].Height)
	assert.Equal(t, 30, req[0].FrameRate)
	assert.Equal(t, device.RoleFrontCamera, req[0].Role)
}

func TestCapturer_SequenceIsMonotonic(t *testing.T) {
	p := &devicetest.Provider{}
	c := New(p, device.RoleScreen, WithResolution(160, 120))
	defer func() { _ = c.Stop() }()

	frames := make(chan Frame, 16)
	require.NoError(t, c.Start(context.Background(), surface.NewVideo(), 30, collect(frames)))

	var last uint64
	for i := 0; i < 3; i++ {
		select {
		case f := <-frames:
			assert.Equal(t, last+1, f.Seq)
			last = f.Seq
		case <-time.After(waitFor):
			t.Fatal("no frame emitted")
		}
	}
}

func TestCapturer_StartErrors(t *testing.T) {
	tests := []struct {
		name     string
		provider *devicetest.Provider
		kind     Kind
		sentinel error
	}{
		{
			name:     "permission denied",
			provider: &devicetest.Provider{Err: fmt.Errorf("getUserMedia: %w", device.ErrPermissionDenied)},
			kind:     KindPermissionDenied,
			sentinel: ErrPermissionDenied,
		},
		{
			name:     "no device",
			provider: &devicetest.Provider{Err: device.ErrNoDevice},
			kind:     KindDeviceUnavailable,
			sentinel: ErrDeviceUnavailable,
		},
		{
			name:     "no tracks",
			provider: &devicetest.Provider{NoTracks: true},
			kind:     KindDeviceUnavailable,
			sentinel: ErrDeviceUnavailable,
		},
		{
			name:     "preview never plays",
			provider: &devicetest.Provider{Blank: true},
			kind:     KindPreviewPlaybackFailed,
			sentinel: ErrPreviewPlaybackFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := surface.NewVideo()
			c := New(tt.provider, device.RoleFrontCamera, WithPlaybackTimeout(30*time.Millisecond))

			err := c.Start(context.Background(), v, 10, func(Frame) { t.Error("unexpected frame") })
			require.Error(t, err)

			var se *StartError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.kind, se.Kind)
			assert.ErrorIs(t, err, tt.sentinel)

			// Nothing stays held after a failed start.
			assert.Zero(t, tt.provider.Live())
			assert.False(t, v.Attached())
			assert.False(t, c.Running())
			select {
			case <-c.Done():
			case <-time.After(waitFor):
				t.Fatal("Done not closed after failed start")
			}
		})
	}
}

func TestCapturer_InvalidCadence(t *testing.T) {
	c := New(&devicetest.Provider{}, device.RoleScreen)
	assert.ErrorIs(t, c.Start(context.Background(), surface.NewVideo(), 0, func(Frame) {}), ErrInvalidCadence)
}

func TestCapturer_InvalidFramesNeverEmitted(t *testing.T) {
	p := &devicetest.Provider{}
	c := New(p, device.RoleScreen, WithResolution(160, 120), WithMinPayloadSize(1<<24))
	defer func() { _ = c.Stop() }()

	emitted := make(chan Frame, 1)
	require.NoError(t, c.Start(context.Background(), surface.NewVideo(), 30, collect(emitted)))

	require.Eventually(t, func() bool { return c.Stats().Invalid >= 3 }, waitFor, 5*time.Millisecond)
	assert.Empty(t, emitted)
	assert.Zero(t, c.Stats().Emitted)
}

func TestCapturer_NotReadyTickIsNoop(t *testing.T) {
	p := &devicetest.Provider{}
	c := New(p, device.RoleScreen, WithResolution(160, 120))
	defer func() { _ = c.Stop() }()

	frames := make(chan Frame, 64)
	require.NoError(t, c.Start(context.Background(), surface.NewVideo(), 30, collect(frames)))
	p.LastTrack().SetFrame(nil)

	// Drain anything emitted before the frame was withdrawn.
	time.Sleep(50 * time.Millisecond)
	for len(frames) > 0 {
		<-frames
	}
	before := c.Stats().NotReady

	require.Eventually(t, func() bool { return c.Stats().NotReady >= before+3 }, waitFor, 5*time.Millisecond)
	assert.Empty(t, frames)
	assert.True(t, c.Running())
}

func TestCapturer_ResolutionChangeResizesRaster(t *testing.T) {
	p := &devicetest.Provider{}
	c := New(p, device.RoleScreen, WithResolution(320, 240))
	defer func() { _ = c.Stop() }()

	frames := make(chan Frame, 64)
	require.NoError(t, c.Start(context.Background(), surface.NewVideo(), 30, collect(frames)))

	track := p.LastTrack()
	track.SetSettings(device.Settings{Width: 200, Height: 100, FrameRate: 30})
	track.SetFrame(devicetest.Pattern(200, 100, 9))

	require.Eventually(t, func() bool {
		select {
		case f := <-frames:
			return f.Width == 200 && f.Height == 100
		default:
			return false
		}
	}, waitFor, time.Millisecond)

	w, h := c.RasterSize()
	assert.Equal(t, 200, w)
	assert.Equal(t, 100, h)
}

func TestCapturer_StopIsIdempotent(t *testing.T) {
	p := &devicetest.Provider{}
	v := surface.NewVideo()
	c := New(p, device.RoleFrontCamera, WithResolution(160, 120))

	require.NoError(t, c.Start(context.Background(), v, 30, func(Frame) {}))
	require.True(t, c.Running())

	require.NoError(t, c.Stop())
	first := c.Stats()
	require.NoError(t, c.Stop())

	assert.False(t, c.Running())
	assert.False(t, v.Attached())
	assert.Zero(t, p.Live())
	assert.Equal(t, 1, p.LastTrack().StopCalls())
	w, h := c.RasterSize()
	assert.Zero(t, w)
	assert.Zero(t, h)

	select {
	case <-c.Done():
	case <-time.After(waitFor):
		t.Fatal("sampling loop still running")
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, first.Emitted, c.Stats().Emitted)

	assert.ErrorIs(t, c.Start(context.Background(), v, 30, func(Frame) {}), ErrStopped)
}

func TestCapturer_StopBeforeStart(t *testing.T) {
	c := New(&devicetest.Provider{}, device.RoleScreen)
	assert.NoError(t, c.Stop())
	assert.NoError(t, c.Stop())
	<-c.Done()
}

func TestCapturer_StopFromFrameCallback(t *testing.T) {
	p := &devicetest.Provider{}
	c := New(p, device.RoleScreen, WithResolution(160, 120))

	stopped := make(chan struct{})
	require.NoError(t, c.Start(context.Background(), surface.NewVideo(), 30, func(Frame) {
		if err := c.Stop(); err == nil {
			select {
			case <-stopped:
			default:
				close(stopped)
			}
		}
	}))

	select {
	case <-stopped:
	case <-time.After(waitFor):
		t.Fatal("callback never ran")
	}
	<-c.Done()
	assert.Zero(t, p.Live())
}

func TestCapturer_DeviceLossStopsCapture(t *testing.T) {
	p := &devicetest.Provider{}
	v := surface.NewVideo()
	c := New(p, device.RoleScreen, WithResolution(160, 120))

	require.NoError(t, c.Start(context.Background(), v, 30, func(Frame) {}))
	p.LastTrack().End()

	select {
	case <-c.Lost():
	case <-time.After(waitFor):
		t.Fatal("device loss not observed")
	}
	<-c.Done()

	assert.False(t, c.Running())
	assert.True(t, p.LastTrack().Stopped())
	assert.False(t, v.Attached())
	w, _ := c.RasterSize()
	assert.Zero(t, w)
}

func TestCapturer_StopDoesNotReportLoss(t *testing.T) {
	p := &devicetest.Provider{}
	c := New(p, device.RoleScreen, WithResolution(160, 120))
	require.NoError(t, c.Start(context.Background(), surface.NewVideo(), 30, func(Frame) {}))
	require.NoError(t, c.Stop())

	select {
	case <-c.Lost():
		t.Fatal("explicit stop reported as device loss")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCapturer_StopContinuesPastFailures(t *testing.T) {
	p := &devicetest.Provider{}
	v := surface.NewVideo()
	c := New(p, device.RoleFrontCamera, WithResolution(160, 120))
	require.NoError(t, c.Start(context.Background(), v, 30, func(Frame) {}))

	boom := errors.New("ioctl failed")
	p.LastTrack().FailStop(boom)

	err := c.Stop()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStopFailed)
	assert.ErrorIs(t, err, boom)

	// Later steps still ran.
	assert.False(t, v.Attached())
	assert.False(t, c.Running())
	assert.NoError(t, c.Stop())
}

// stopDuringSettings stops the capturer the moment Start reads the
// negotiated settings, after acquisition but before the surface is attached.
type stopDuringSettings struct {
	*devicetest.Track
	stop func()
}

func (t stopDuringSettings) Settings() device.Settings {
	t.stop()
	return t.Track.Settings()
}

type fixedProvider struct {
	stream device.Stream
}

func (p fixedProvider) Acquire(context.Context, device.Constraints) (device.Stream, error) {
	return p.stream, nil
}

func (p fixedProvider) Supported() error { return nil }

func TestCapturer_StopBeforeAttachLeavesSurfaceDetached(t *testing.T) {
	track := devicetest.NewTrack("cam", device.Settings{Width: 64, Height: 48, FrameRate: 10})
	track.SetFrame(devicetest.Pattern(64, 48, 1))

	var c *Capturer
	st := stopDuringSettings{Track: track, stop: func() { _ = c.Stop() }}
	c = New(fixedProvider{stream: devicetest.NewStream(st)}, device.RoleFrontCamera, WithResolution(64, 48))

	video := surface.NewVideo()
	err := c.Start(context.Background(), video, 10, func(Frame) {})
	assert.ErrorIs(t, err, ErrStopped)
	assert.False(t, video.Attached())
	assert.True(t, track.Stopped())
	<-c.Done()
}
