// Package device defines the capture-device collaborators the capture
// pipeline is built on: a Provider that acquires live streams for a Role,
// the Tracks inside a Stream, and the presentable Surface a stream is
// attached to.
package device

import (
	"context"
	"errors"
	"image"
)

var (
	// ErrPermissionDenied is returned by Acquire when the user or the OS
	// refused access to the device.
	ErrPermissionDenied = errors.New("device permission denied")
	// ErrNoDevice is returned by Acquire when no device matches the role.
	ErrNoDevice = errors.New("no matching device")
	// ErrNotSupported is returned by Supported when the platform cannot
	// capture the provider's roles at all.
	ErrNotSupported = errors.New("capture not supported")
)

// Role is the logical identity of a capture source, independent of the
// hardware handle behind it.
type Role string

const (
	RoleFrontCamera Role = "user"
	RoleRearCamera  Role = "environment"
	RoleScreen      Role = "screen"
)

// IsCamera reports whether r selects a camera.
func (r Role) IsCamera() bool {
	return r == RoleFrontCamera || r == RoleRearCamera
}

// Toggle returns the opposite camera role. Non-camera roles are returned
// unchanged.
func (r Role) Toggle() Role {
	switch r {
	case RoleFrontCamera:
		return RoleRearCamera
	case RoleRearCamera:
		return RoleFrontCamera
	default:
		return r
	}
}

// ParseRole maps a textual role to a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleFrontCamera, RoleRearCamera, RoleScreen:
		return Role(s), nil
	case "front":
		return RoleFrontCamera, nil
	case "rear", "back":
		return RoleRearCamera, nil
	}
	return "", errors.New("unknown device role: " + s)
}

// Constraints are the preferred acquisition parameters. They are ideals:
// a device may negotiate something else, so callers must read Settings
// back from the acquired track.
type Constraints struct {
	Role      Role
	Width     int
	Height    int
	FrameRate int
}

// Settings are the values a track actually runs with.
type Settings struct {
	Width     int
	Height    int
	FrameRate int
}

// Provider acquires live streams.
type Provider interface {
	// Acquire opens a stream for c.Role. It fails with ErrPermissionDenied
	// or ErrNoDevice (possibly wrapped).
	Acquire(ctx context.Context, c Constraints) (Stream, error)
	// Supported returns ErrNotSupported (possibly wrapped) if this
	// platform cannot capture at all.
	Supported() error
}

// Stream is one live acquisition.
type Stream interface {
	Tracks() []Track
}

// Track is a single live video track.
type Track interface {
	ID() string
	// Settings returns the currently negotiated values. They can change
	// mid-session (e.g. adaptive screen resolution).
	Settings() Settings
	// Frame returns the most recent presentable frame, if any.
	Frame() (image.Image, bool)
	// Ended is closed when the track stops producing frames for good,
	// whether through Stop or asynchronously (device unplugged,
	// permission revoked, OS-level share stopped).
	Ended() <-chan struct{}
	// Stop releases the underlying hardware. It is safe to call twice.
	Stop() error
}

// Surface presents a stream. Capture samples from the surface, never from
// the track directly, so that only frames the surface could show are
// encoded.
type Surface interface {
	Attach(s Stream)
	// Play blocks until the surface can present frames.
	Play(ctx context.Context) error
	Pause()
	// Ready reports whether a frame is currently presentable.
	Ready() bool
	// Frame returns the currently presented frame; nil when not Ready.
	Frame() image.Image
	// Reset detaches the source and drops any buffered frame.
	Reset() error
}
