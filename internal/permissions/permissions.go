// Package permissions checks the OS permission screen capture depends on.
package permissions

// HasScreenRecording reports whether this process may capture the screen.
// Only macOS gates this; elsewhere it is always true.
func HasScreenRecording() bool { return preflight() }

// RequestScreenRecording asks the OS for screen capture access and
// reports whether it was already granted. On macOS a refusal opens System
// Settings and the process must be restarted once access is granted.
func RequestScreenRecording() bool { return request() }
