package capture

import (
	"errors"
	"fmt"

	"github.com/junsooki/AirCam/internal/device"
)

var (
	ErrPermissionDenied      = errors.New("permission denied")
	ErrDeviceUnavailable     = errors.New("device unavailable")
	ErrPreviewPlaybackFailed = errors.New("preview playback failed")

	// ErrFrameCaptureFailed marks a single tick whose draw or encode
	// failed. It is logged and never returned past the sampling loop.
	ErrFrameCaptureFailed = errors.New("frame capture failed")
	// ErrStopFailed wraps every cleanup step that failed during Stop.
	ErrStopFailed = errors.New("capture stop failed")

	ErrStopped        = errors.New("capturer stopped")
	ErrAlreadyStarted = errors.New("capturer already started")
	ErrInvalidCadence = errors.New("cadence must be at least 1 frame per second")

	ErrInvalidEncoding = errors.New("payload is not valid base64")
	ErrPayloadTooSmall = errors.New("payload below minimum size")
)

// Kind classifies why a start attempt failed.
type Kind int

const (
	KindPermissionDenied Kind = iota + 1
	KindDeviceUnavailable
	KindPreviewPlaybackFailed
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindDeviceUnavailable:
		return "DeviceUnavailable"
	case KindPreviewPlaybackFailed:
		return "PreviewPlaybackFailed"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

func (k Kind) sentinel() error {
	switch k {
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindPreviewPlaybackFailed:
		return ErrPreviewPlaybackFailed
	default:
		return ErrDeviceUnavailable
	}
}

// StartError is returned by Capturer.Start. By the time it is returned
// every track acquired during the attempt has been stopped.
type StartError struct {
	Kind Kind
	Role device.Role
	Err  error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("capture start (%s): %s: %v", e.Role, e.Kind, e.Err)
}

// Unwrap exposes both the kind sentinel and the cause to errors.Is.
func (e *StartError) Unwrap() []error {
	return []error{e.Kind.sentinel(), e.Err}
}

func acquireKind(err error) Kind {
	if errors.Is(err, device.ErrPermissionDenied) {
		return KindPermissionDenied
	}
	return KindDeviceUnavailable
}
