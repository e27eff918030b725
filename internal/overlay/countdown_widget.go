package overlay

import (
	"image"
	"image/color"
	"strconv"

	"github.com/bryanchriswhite/photobooth/internal/compose"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// countdownScale is the digit height relative to the frame height
const countdownScale = 0.4

// CountdownWidget draws the remaining countdown seconds as a large digit
// centered on the frame. A value of zero or less draws nothing.
type CountdownWidget struct {
	*BaseWidget
	value int
	fill  color.RGBA
}

// NewCountdownWidget creates an empty countdown widget
func NewCountdownWidget(id string) *CountdownWidget {
	return &CountdownWidget{
		BaseWidget: NewBaseWidget(id, 0, 0, 0.9),
		fill:       color.RGBA{255, 255, 255, 255},
	}
}

// Type returns the widget type
func (w *CountdownWidget) Type() string {
	return "countdown"
}

// SetValue sets the digit to draw
func (w *CountdownWidget) SetValue(v int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.value = v
}

// Value returns the digit being drawn
func (w *CountdownWidget) Value() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.value
}

// Render draws the digit with a dark offset shadow so it reads on any frame
func (w *CountdownWidget) Render(img *image.RGBA) error {
	w.mu.RLock()
	value, fill, opacity := w.value, w.fill, w.opacity
	w.mu.RUnlock()

	if value <= 0 {
		return nil
	}

	b := img.Bounds()
	face := compose.NewFace(true, float64(b.Dy())*countdownScale)
	text := strconv.Itoa(value)
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	height := ascent + metrics.Descent.Ceil()
	width := compose.MeasureText(face, text)

	glyph := func(c color.RGBA) *image.RGBA {
		m := image.NewRGBA(image.Rect(0, 0, width, height))
		d := &font.Drawer{
			Dst:  m,
			Src:  image.NewUniform(c),
			Face: face,
			Dot:  fixed.Point26_6{X: 0, Y: fixed.I(ascent)},
		}
		d.DrawString(text)
		return m
	}

	x := b.Min.X + (b.Dx()-width)/2
	y := b.Min.Y + (b.Dy()-height)/2
	offset := max(2, height/40)
	BlendImage(img, glyph(color.RGBA{0, 0, 0, 255}), x+offset, y+offset, opacity*0.6)
	BlendImage(img, glyph(fill), x, y, opacity)
	return nil
}
