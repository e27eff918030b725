package overlay

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"sync"
)

// Widget represents a renderable overlay widget
type Widget interface {
	// ID returns the unique identifier for this widget instance
	ID() string

	// Type returns the widget type name
	Type() string

	// Render draws the widget onto the provided frame
	Render(img *image.RGBA) error

	// IsEnabled returns whether the widget should be rendered
	IsEnabled() bool

	// SetEnabled sets whether the widget should be rendered
	SetEnabled(enabled bool)
}

// BaseWidget provides common functionality for all widgets. Widgets are
// updated from session events while the preview loop renders them, so every
// field is guarded by mu.
type BaseWidget struct {
	mu      sync.RWMutex
	id      string
	enabled bool
	x       int
	y       int
	opacity float64 // 0.0 to 1.0
}

// NewBaseWidget creates a new base widget
func NewBaseWidget(id string, x, y int, opacity float64) *BaseWidget {
	return &BaseWidget{
		id:      id,
		enabled: true,
		x:       x,
		y:       y,
		opacity: clampOpacity(opacity),
	}
}

// ID returns the widget's unique identifier
func (w *BaseWidget) ID() string {
	return w.id
}

// IsEnabled returns whether the widget should be rendered
func (w *BaseWidget) IsEnabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.enabled
}

// SetEnabled sets whether the widget should be rendered
func (w *BaseWidget) SetEnabled(enabled bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.enabled = enabled
}

// Position returns the widget's position
func (w *BaseWidget) Position() (int, int) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.x, w.y
}

// SetPosition sets the widget's position
func (w *BaseWidget) SetPosition(x, y int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.x = x
	w.y = y
}

// Opacity returns the widget's opacity
func (w *BaseWidget) Opacity() float64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.opacity
}

// SetOpacity sets the widget's opacity (0.0 to 1.0)
func (w *BaseWidget) SetOpacity(opacity float64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.opacity = clampOpacity(opacity)
}

func clampOpacity(opacity float64) float64 {
	return math.Max(0, math.Min(1, opacity))
}

func opacityMask(opacity float64) *image.Uniform {
	return image.NewUniform(color.Alpha{A: uint8(math.Round(clampOpacity(opacity) * 255))})
}

// BlendImage composites src over dst with its top-left corner at (x, y),
// scaling the source alpha by opacity. Pixels outside dst are clipped.
func BlendImage(dst *image.RGBA, src image.Image, x, y int, opacity float64) {
	if opacity <= 0 {
		return
	}
	b := src.Bounds()
	r := image.Rect(x, y, x+b.Dx(), y+b.Dy())
	draw.DrawMask(dst, r, src, b.Min, opacityMask(opacity), image.Point{}, draw.Over)
}

// DrawRectangle fills r with c at the given opacity
func DrawRectangle(dst *image.RGBA, r image.Rectangle, c color.Color, opacity float64) {
	if opacity <= 0 || r.Empty() {
		return
	}
	draw.DrawMask(dst, r, image.NewUniform(c), image.Point{}, opacityMask(opacity), image.Point{}, draw.Over)
}
