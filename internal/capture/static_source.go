package capture

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"os"
	"sync"

	// Decoders for still images fed as a fake camera
	_ "image/jpeg"
	_ "image/png"
)

// StaticSource serves a fixed image as every frame. It stands in for a camera
// in headless runs and tests.
type StaticSource struct {
	mu      sync.RWMutex
	frame   *image.RGBA
	width   int
	height  int
	started bool
	frames  int
}

// NewStaticSource wraps img. Width and height override the reported native
// size; pass zeros to report the image's own size.
func NewStaticSource(img image.Image, width, height int) *StaticSource {
	b := img.Bounds()
	frame := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(frame, frame.Bounds(), img, b.Min, draw.Src)
	if width == 0 && height == 0 {
		width, height = b.Dx(), b.Dy()
	}
	return &StaticSource{frame: frame, width: width, height: height}
}

// NewStaticSourceFromFile decodes path and serves it
func NewStaticSourceFromFile(path string) (*StaticSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open static image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode static image: %w", err)
	}
	return NewStaticSource(img, 0, 0), nil
}

// NewTestPattern creates a source showing vertical color bars
func NewTestPattern(width, height int) *StaticSource {
	bars := []color.RGBA{
		{255, 255, 255, 255}, {255, 255, 0, 255}, {0, 255, 255, 255}, {0, 255, 0, 255},
		{255, 0, 255, 255}, {255, 0, 0, 255}, {0, 0, 255, 255},
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	barWidth := width / len(bars)
	if barWidth < 1 {
		barWidth = 1
	}
	for i, c := range bars {
		r := image.Rect(i*barWidth, 0, (i+1)*barWidth, height)
		if i == len(bars)-1 {
			r.Max.X = width
		}
		draw.Draw(img, r, &image.Uniform{c}, image.Point{}, draw.Src)
	}
	return NewStaticSource(img, width, height)
}

// Start marks the source as delivering frames
func (s *StaticSource) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

// Stop marks the source as stopped
func (s *StaticSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// IsReady reports whether Start has been called
func (s *StaticSource) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// NativeSize returns the configured size
func (s *StaticSource) NativeSize() (int, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.width, s.height
}

// Frame returns a copy of the static frame
func (s *StaticSource) Frame() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return nil, fmt.Errorf("static source not started")
	}
	s.frames++
	out := image.NewRGBA(s.frame.Bounds())
	copy(out.Pix, s.frame.Pix)
	return out, nil
}

// FramesServed returns how many frames have been read
func (s *StaticSource) FramesServed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

// Name returns the source name
func (s *StaticSource) Name() string {
	return "static"
}
