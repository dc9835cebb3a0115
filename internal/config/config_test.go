package config

import (
	"strings"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/AirCam/internal/device"
	"github.com/junsooki/AirCam/internal/motion"
)

func TestParseHostFlags_Defaults(t *testing.T) {
	cfg, err := ParseHostFlags(nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultSignalingURL, cfg.SignalingURL)
	assert.True(t, strings.HasPrefix(cfg.HostID, "host-"))
	assert.Len(t, cfg.HostID, len("host-")+8)
	assert.Equal(t, device.RoleFrontCamera, cfg.Role)
	assert.Equal(t, 10, cfg.FPS)
	assert.Equal(t, 640, cfg.Width)
	assert.Equal(t, 480, cfg.Height)
	assert.Equal(t, 1024, cfg.MinPayload)
	assert.Equal(t, motion.DefaultConfig(), cfg.Motion)
	assert.False(t, cfg.Preview)
}

func TestParseHostFlags_Overrides(t *testing.T) {
	cfg, err := ParseHostFlags([]string{
		"-role", "screen", "-fps", "5", "-quality", "60", "-id", "desk",
		"-motion-threshold", "4.5", "-force-interval", "20", "-motion-stride", "3",
		"-frame-interval", "250ms", "-preview",
	})
	require.NoError(t, err)

	assert.Equal(t, device.RoleScreen, cfg.Role)
	assert.Equal(t, "desk", cfg.HostID)
	assert.Equal(t, 5, cfg.FPS)
	assert.Equal(t, 60, cfg.Quality)
	assert.Equal(t, motion.Config{Threshold: 4.5, ForceInterval: 20, Stride: 3, FrameInterval: 250 * time.Millisecond}, cfg.Motion)
	assert.True(t, cfg.Preview)
}

func TestParseHostFlags_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"fps too high", []string{"-fps", "60"}, "fps 60"},
		{"fps zero", []string{"-fps", "0"}, "fps 0"},
		{"quality", []string{"-quality", "101"}, "quality 101"},
		{"stride", []string{"-motion-stride", "0"}, "motion stride"},
		{"role", []string{"-role", "periscope"}, "unknown device role"},
		{"unknown flag", []string{"-display", "1"}, "flag provided but not defined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseHostFlags(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestHostConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := &HostConfig{SignalingURL: "ws://x", LogLevel: "info", FPS: 0, Width: 1, Height: 1, Quality: 0, Motion: motion.DefaultConfig()}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fps")
	assert.Contains(t, err.Error(), "quality")
}

func TestParseViewerFlags(t *testing.T) {
	_, err := ParseViewerFlags(nil)
	assert.Error(t, err)

	cfg, err := ParseViewerFlags([]string{"-host", "host-1"})
	require.NoError(t, err)
	assert.Equal(t, "host-1", cfg.HostID)
	assert.True(t, strings.HasPrefix(cfg.ViewerID, "viewer-"))
}

func TestNewLoggerFactory(t *testing.T) {
	f, err := NewLoggerFactory("DEBUG")
	require.NoError(t, err)
	assert.Equal(t, logging.LogLevelDebug, f.DefaultLogLevel)

	_, err = NewLoggerFactory("loud")
	assert.Error(t, err)
}
