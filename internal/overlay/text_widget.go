package overlay

import (
	"fmt"
	"image"
	"image/color"

	"github.com/bryanchriswhite/photobooth/internal/compose"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// TextWidget displays a line of text with an optional background box
type TextWidget struct {
	*BaseWidget
	text      string
	fontSize  float64
	textColor color.RGBA
	bgColor   *color.RGBA // Optional background color
	padding   int
}

// NewTextWidget creates a new text widget at (x, y)
func NewTextWidget(id, text string, x, y int, fontSize float64) *TextWidget {
	return &TextWidget{
		BaseWidget: NewBaseWidget(id, x, y, 1.0),
		text:       text,
		fontSize:   fontSize,
		textColor:  color.RGBA{255, 255, 255, 255},
		padding:    8,
	}
}

// Type returns the widget type
func (w *TextWidget) Type() string {
	return "text"
}

// Render draws the text widget
func (w *TextWidget) Render(img *image.RGBA) error {
	w.mu.RLock()
	text, size, fg, bg := w.text, w.fontSize, w.textColor, w.bgColor
	x, y, padding, opacity := w.x, w.y, w.padding, w.opacity
	w.mu.RUnlock()

	if text == "" {
		return nil
	}

	face := compose.NewFace(false, size)
	metrics := face.Metrics()
	ascent := metrics.Ascent.Ceil()
	height := ascent + metrics.Descent.Ceil()
	width := compose.MeasureText(face, text)

	if bg != nil {
		box := image.Rect(x, y, x+width+padding*2, y+height+padding*2)
		DrawRectangle(img, box, *bg, opacity)
	}

	textImg := image.NewRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(fg),
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: fixed.I(ascent)},
	}
	d.DrawString(text)

	BlendImage(img, textImg, x+padding, y+padding, opacity)
	return nil
}

// SetText updates the text content
func (w *TextWidget) SetText(text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.text = text
}

// Text returns the current text
func (w *TextWidget) Text() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.text
}

// SetColor sets the text color
func (w *TextWidget) SetColor(c color.RGBA) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.textColor = c
}

// SetBackground sets the background color (nil for transparent)
func (w *TextWidget) SetBackground(c *color.RGBA) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.bgColor = c
}

// Validate ensures the widget configuration is valid
func (w *TextWidget) Validate() error {
	if w.Text() == "" {
		return fmt.Errorf("text widget requires non-empty text")
	}
	return nil
}
