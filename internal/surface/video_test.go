package surface

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/AirCam/internal/device"
	"github.com/junsooki/AirCam/internal/device/devicetest"
)

func TestVideo_PlayWaitsForFirstFrame(t *testing.T) {
	track := devicetest.NewTrack("cam", device.Settings{Width: 64, Height: 48})
	v := NewVideo()
	v.Attach(devicetest.NewStream(track))
	assert.False(t, v.Ready())

	go func() {
		time.Sleep(20 * time.Millisecond)
		track.SetFrame(devicetest.Pattern(64, 48, 1))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, v.Play(ctx))
	assert.True(t, v.Ready())
	require.NotNil(t, v.Frame())
	assert.Equal(t, 64, v.Frame().Bounds().Dx())
}

func TestVideo_PlayTimesOut(t *testing.T) {
	v := NewVideo()
	v.Attach(devicetest.NewStream(devicetest.NewTrack("cam", device.Settings{})))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := v.Play(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, v.Ready())
}

func TestVideo_PlayFailsWhenTrackEnds(t *testing.T) {
	track := devicetest.NewTrack("cam", device.Settings{})
	v := NewVideo()
	v.Attach(devicetest.NewStream(track))
	track.End()

	err := v.Play(context.Background())
	assert.ErrorIs(t, err, ErrSourceEnded)
}

func TestVideo_PlayWithoutSource(t *testing.T) {
	v := NewVideo()
	assert.ErrorIs(t, v.Play(context.Background()), ErrNoSource)

	v.Attach(devicetest.NewStream())
	assert.ErrorIs(t, v.Play(context.Background()), ErrNoSource)
}

func TestVideo_PauseAndReset(t *testing.T) {
	track := devicetest.NewTrack("cam", device.Settings{Width: 8, Height: 8})
	track.SetFrame(devicetest.Pattern(8, 8, 0))
	v := NewVideo()
	v.Attach(devicetest.NewStream(track))
	require.NoError(t, v.Play(context.Background()))

	v.Pause()
	assert.False(t, v.Ready())
	assert.Nil(t, v.Frame())

	require.NoError(t, v.Play(context.Background()))
	assert.True(t, v.Ready())

	require.NoError(t, v.Reset())
	assert.False(t, v.Attached())
	assert.False(t, v.Ready())
	assert.ErrorIs(t, v.Play(context.Background()), ErrNoSource)
}
