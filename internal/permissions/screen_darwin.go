//go:build darwin && cgo

package permissions

/*
#cgo LDFLAGS: -framework CoreGraphics
#include <CoreGraphics/CoreGraphics.h>

// Available since macOS 10.15.
static int screenCapturePreflight() { return CGPreflightScreenCaptureAccess(); }
static int screenCaptureRequest() { return CGRequestScreenCaptureAccess(); }
*/
import "C"

func preflight() bool { return C.screenCapturePreflight() != 0 }

func request() bool { return C.screenCaptureRequest() != 0 }
