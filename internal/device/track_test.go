package device

import (
	"errors"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameTrack_PublishUpdatesSettings(t *testing.T) {
	tr := NewFrameTrack("cam0", Settings{Width: 640, Height: 480, FrameRate: 15}, nil)
	_, ok := tr.Frame()
	assert.False(t, ok)
	assert.Equal(t, Settings{Width: 640, Height: 480, FrameRate: 15}, tr.Settings())

	tr.Publish(image.NewRGBA(image.Rect(0, 0, 352, 288)))
	img, ok := tr.Frame()
	require.True(t, ok)
	assert.Equal(t, 352, img.Bounds().Dx())
	assert.Equal(t, Settings{Width: 352, Height: 288, FrameRate: 15}, tr.Settings())
}

func TestFrameTrack_StopOnce(t *testing.T) {
	calls := 0
	boom := errors.New("busy")
	tr := NewFrameTrack("cam0", Settings{}, func() error {
		calls++
		return boom
	})
	tr.Publish(image.NewRGBA(image.Rect(0, 0, 2, 2)))

	assert.ErrorIs(t, tr.Stop(), boom)
	assert.ErrorIs(t, tr.Stop(), boom)
	assert.Equal(t, 1, calls)

	_, ok := tr.Frame()
	assert.False(t, ok)
	<-tr.Ended()
	assert.NoError(t, tr.Err())

	tr.Publish(image.NewRGBA(image.Rect(0, 0, 2, 2)))
	_, ok = tr.Frame()
	assert.False(t, ok)
}

func TestFrameTrack_End(t *testing.T) {
	tr := NewFrameTrack("scr", Settings{}, nil)
	assert.NoError(t, tr.Err())

	lost := errors.New("display removed")
	tr.End(lost)
	tr.End(errors.New("ignored"))
	<-tr.Ended()
	assert.ErrorIs(t, tr.Err(), lost)

	// Frames after the end are not presented.
	tr.Publish(image.NewRGBA(image.Rect(0, 0, 2, 2)))
	_, ok := tr.Frame()
	assert.False(t, ok)
}
