// Package output publishes rendered preview frames to viewers.
package output

import (
	"image"
)

// Output defines the interface for frame output mechanisms
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame sends a frame to the output
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// Config holds common configuration for all output types
type Config struct {
	Width   int
	Height  int
	FPS     int
	Quality int // JPEG quality, 1..100
}

// DefaultQuality is used when Config.Quality is out of range
const DefaultQuality = 80

func (c Config) quality() int {
	if c.Quality < 1 || c.Quality > 100 {
		return DefaultQuality
	}
	return c.Quality
}
