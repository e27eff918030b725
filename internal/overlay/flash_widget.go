package overlay

import (
	"image"
	"image/color"
)

// FlashWidget washes the whole frame in a flat color while active
type FlashWidget struct {
	*BaseWidget
	fill   color.RGBA
	active bool
}

// NewFlashWidget creates an inactive white flash
func NewFlashWidget(id string) *FlashWidget {
	return &FlashWidget{
		BaseWidget: NewBaseWidget(id, 0, 0, 0.85),
		fill:       color.RGBA{255, 255, 255, 255},
	}
}

// Type returns the widget type
func (w *FlashWidget) Type() string {
	return "flash"
}

// SetActive turns the flash on or off
func (w *FlashWidget) SetActive(active bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = active
}

// Active reports whether the flash is showing
func (w *FlashWidget) Active() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.active
}

// Render fills the frame when active
func (w *FlashWidget) Render(img *image.RGBA) error {
	w.mu.RLock()
	active, fill, opacity := w.active, w.fill, w.opacity
	w.mu.RUnlock()

	if !active {
		return nil
	}
	DrawRectangle(img, img.Bounds(), fill, opacity)
	return nil
}
