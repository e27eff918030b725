package capture

import (
	"image"
)

// VideoSource is a live feed of decoded frames. Its lifecycle belongs to the
// source itself; the booth only starts it, stops it, and reads frames.
type VideoSource interface {
	// Start acquires the underlying device or display
	Start() error

	// Stop releases the device. Safe to call more than once.
	Stop() error

	// IsReady reports whether a frame with known dimensions is available
	IsReady() bool

	// NativeSize returns the native frame dimensions, or zeros if unknown
	NativeSize() (width, height int)

	// Frame returns the current visual frame. The caller owns the result.
	Frame() (*image.RGBA, error)

	// Name returns a human-readable name for this source
	Name() string
}
