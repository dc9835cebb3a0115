package capture

import (
	"encoding/base64"
	"fmt"
)

// DefaultMinPayloadSize is the smallest base64 payload accepted as a real
// compressed frame. Anything shorter is an empty or corrupt capture.
const DefaultMinPayloadSize = 1024

// Validate rejects frames whose payload is not valid base64 or is shorter
// than minSize. It does not inspect image content.
func Validate(f Frame, minSize int) error {
	if _, err := base64.StdEncoding.DecodeString(f.Payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}
	if len(f.Payload) < minSize {
		return fmt.Errorf("%w: %d < %d bytes", ErrPayloadTooSmall, len(f.Payload), minSize)
	}
	return nil
}
