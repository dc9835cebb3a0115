// Package config parses command-line configuration for the host and
// viewer binaries.
package config

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/junsooki/AirCam/internal/capture"
	"github.com/junsooki/AirCam/internal/device"
	"github.com/junsooki/AirCam/internal/encoder"
	"github.com/junsooki/AirCam/internal/motion"
	"github.com/junsooki/AirCam/internal/preview"
)

const DefaultSignalingURL = "ws://localhost:8080"

// HostConfig holds runtime configuration for the capture host.
type HostConfig struct {
	SignalingURL string
	HostID       string
	Role         device.Role
	FPS          int
	Width        int
	Height       int
	Quality      int
	MinPayload   int
	Motion       motion.Config
	Preview      bool
	PreviewW     int
	PreviewH     int
	LogLevel     string
}

// ParseHostFlags parses args (without the program name) for the host binary.
func ParseHostFlags(args []string) (*HostConfig, error) {
	cfg := &HostConfig{Motion: motion.DefaultConfig()}
	var role string

	fs := flag.NewFlagSet("aircam-host", flag.ContinueOnError)
	fs.StringVar(&cfg.SignalingURL, "signaling", DefaultSignalingURL, "Signaling server WebSocket URL")
	fs.StringVar(&cfg.HostID, "id", "", "Host ID (auto-generated if empty)")
	fs.StringVar(&role, "role", "front", "Capture source: front, rear or screen")
	fs.IntVar(&cfg.FPS, "fps", 10, "Capture cadence in frames per second (1-30)")
	fs.IntVar(&cfg.Width, "width", capture.DefaultWidth, "Preferred capture width")
	fs.IntVar(&cfg.Height, "height", capture.DefaultHeight, "Preferred capture height")
	fs.IntVar(&cfg.Quality, "quality", encoder.DefaultQuality, "JPEG quality (1-100)")
	fs.IntVar(&cfg.MinPayload, "min-payload", capture.DefaultMinPayloadSize, "Smallest plausible base64 frame payload")
	fs.Float64Var(&cfg.Motion.Threshold, "motion-threshold", cfg.Motion.Threshold, "Motion score that counts as a change")
	fs.IntVar(&cfg.Motion.ForceInterval, "force-interval", cfg.Motion.ForceInterval, "Forward every Nth camera candidate regardless of motion")
	fs.IntVar(&cfg.Motion.Stride, "motion-stride", cfg.Motion.Stride, "Pixel sampling stride for motion scoring")
	fs.DurationVar(&cfg.Motion.FrameInterval, "frame-interval", cfg.Motion.FrameInterval, "Minimum spacing between camera candidates")
	fs.BoolVar(&cfg.Preview, "preview", false, "Show the local thumbnail in a window")
	fs.IntVar(&cfg.PreviewW, "preview-width", preview.DefaultWidth, "Thumbnail width")
	fs.IntVar(&cfg.PreviewH, "preview-height", preview.DefaultHeight, "Thumbnail height")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: error, warn, info, debug, trace")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	r, err := device.ParseRole(role)
	if err != nil {
		return nil, err
	}
	cfg.Role = r
	if cfg.HostID == "" {
		cfg.HostID = "host-" + shortID()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges.
func (c *HostConfig) Validate() error {
	var errs []error
	if c.SignalingURL == "" {
		errs = append(errs, errors.New("signaling URL is required"))
	}
	if c.FPS < 1 || c.FPS > 30 {
		errs = append(errs, fmt.Errorf("fps %d out of range 1-30", c.FPS))
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("invalid resolution %dx%d", c.Width, c.Height))
	}
	if c.Quality < 1 || c.Quality > 100 {
		errs = append(errs, fmt.Errorf("quality %d out of range 1-100", c.Quality))
	}
	if c.MinPayload < 0 {
		errs = append(errs, fmt.Errorf("negative min payload %d", c.MinPayload))
	}
	if c.Motion.Threshold < 0 {
		errs = append(errs, fmt.Errorf("negative motion threshold %v", c.Motion.Threshold))
	}
	if c.Motion.ForceInterval < 1 {
		errs = append(errs, fmt.Errorf("force interval %d must be positive", c.Motion.ForceInterval))
	}
	if c.Motion.Stride < 1 {
		errs = append(errs, fmt.Errorf("motion stride %d must be positive", c.Motion.Stride))
	}
	if c.Motion.FrameInterval < 0 || c.Motion.FrameInterval > time.Minute {
		errs = append(errs, fmt.Errorf("frame interval %v out of range", c.Motion.FrameInterval))
	}
	if _, ok := logLevels[strings.ToLower(c.LogLevel)]; !ok {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}
	if c.Preview && (c.PreviewW <= 0 || c.PreviewH <= 0) {
		errs = append(errs, fmt.Errorf("invalid preview size %dx%d", c.PreviewW, c.PreviewH))
	}
	return errors.Join(errs...)
}

// ViewerConfig holds configuration for the viewer binary.
type ViewerConfig struct {
	SignalingURL string
	ViewerID     string
	HostID       string
	LogLevel     string
}

// ParseViewerFlags parses args (without the program name) for the viewer binary.
func ParseViewerFlags(args []string) (*ViewerConfig, error) {
	cfg := &ViewerConfig{}
	fs := flag.NewFlagSet("aircam-viewer", flag.ContinueOnError)
	fs.StringVar(&cfg.SignalingURL, "signaling", DefaultSignalingURL, "Signaling server WebSocket URL")
	fs.StringVar(&cfg.ViewerID, "id", "", "Viewer ID (auto-generated if empty)")
	fs.StringVar(&cfg.HostID, "host", "", "Host ID to connect to (required)")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: error, warn, info, debug, trace")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.HostID == "" {
		return nil, errors.New("-host is required")
	}
	if _, ok := logLevels[strings.ToLower(cfg.LogLevel)]; !ok {
		return nil, fmt.Errorf("unknown log level %q", cfg.LogLevel)
	}
	if cfg.ViewerID == "" {
		cfg.ViewerID = "viewer-" + shortID()
	}
	return cfg, nil
}

func shortID() string {
	return uuid.NewString()[:8]
}
