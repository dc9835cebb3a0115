package screen

import (
	"context"
	"errors"
	"image"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/AirCam/internal/device"
)

func fakeProvider(displays int, size image.Rectangle) *Provider {
	p := NewProvider(0, nil)
	p.numDisplays = func() int { return displays }
	p.bounds = func(int) image.Rectangle { return size }
	p.grab = func(r image.Rectangle) (*image.RGBA, error) { return image.NewRGBA(r), nil }
	p.permitted = func() bool { return true }
	return p
}

func TestProvider_NegotiatesDisplaySize(t *testing.T) {
	p := fakeProvider(1, image.Rect(0, 0, 1440, 900))
	s, err := p.Acquire(context.Background(), device.Constraints{Role: device.RoleScreen, Width: 640, Height: 480, FrameRate: 30})
	require.NoError(t, err)
	require.Len(t, s.Tracks(), 1)

	tr := s.Tracks()[0]
	defer func() { _ = tr.Stop() }()
	assert.Equal(t, device.Settings{Width: 1440, Height: 900, FrameRate: 30}, tr.Settings())

	require.Eventually(t, func() bool {
		_, ok := tr.Frame()
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestProvider_ResolutionChange(t *testing.T) {
	var wide atomic.Bool
	p := fakeProvider(1, image.Rect(0, 0, 800, 600))
	p.bounds = func(int) image.Rectangle {
		if wide.Load() {
			return image.Rect(0, 0, 1920, 1080)
		}
		return image.Rect(0, 0, 800, 600)
	}
	s, err := p.Acquire(context.Background(), device.Constraints{Role: device.RoleScreen, FrameRate: 30})
	require.NoError(t, err)
	tr := s.Tracks()[0]
	defer func() { _ = tr.Stop() }()

	wide.Store(true)
	require.Eventually(t, func() bool { return tr.Settings().Width == 1920 }, time.Second, 5*time.Millisecond)
}

func TestProvider_EndsAfterRepeatedFailures(t *testing.T) {
	p := fakeProvider(1, image.Rect(0, 0, 10, 10))
	p.grab = func(image.Rectangle) (*image.RGBA, error) { return nil, errors.New("capture denied") }

	s, err := p.Acquire(context.Background(), device.Constraints{Role: device.RoleScreen, FrameRate: 30})
	require.NoError(t, err)
	tr := s.Tracks()[0].(*device.FrameTrack)

	select {
	case <-tr.Ended():
	case <-time.After(2 * time.Second):
		t.Fatal("track did not end")
	}
	assert.ErrorIs(t, tr.Err(), ErrDisplayLost)
	assert.NoError(t, tr.Stop())
}

func TestProvider_Errors(t *testing.T) {
	p := fakeProvider(0, image.Rectangle{})
	assert.ErrorIs(t, p.Supported(), device.ErrNotSupported)
	_, err := p.Acquire(context.Background(), device.Constraints{Role: device.RoleScreen, FrameRate: 1})
	assert.ErrorIs(t, err, device.ErrNoDevice)

	p = fakeProvider(1, image.Rect(0, 0, 10, 10))
	p.permitted = func() bool { return false }
	assert.ErrorIs(t, p.Supported(), device.ErrNotSupported)
	_, err = p.Acquire(context.Background(), device.Constraints{Role: device.RoleScreen, FrameRate: 1})
	assert.ErrorIs(t, err, device.ErrPermissionDenied)

	_, err = fakeProvider(1, image.Rect(0, 0, 10, 10)).Acquire(context.Background(), device.Constraints{Role: device.RoleFrontCamera})
	assert.ErrorIs(t, err, device.ErrNoDevice)
}
