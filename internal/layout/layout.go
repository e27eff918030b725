// Package layout maps photos onto the fixed slot tables of a composite.
package layout

import (
	"fmt"
	"image"
	"math"
	"sort"
)

// Slot is a fixed rectangle within the output canvas
type Slot struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Aspect returns width/height, or 0 for a degenerate slot
func (s Slot) Aspect() float64 {
	if s.Height <= 0 {
		return 0
	}
	return s.Width / s.Height
}

// Shrink scales the slot's height by factor about its vertical center.
// Factors outside (0, 1] leave the slot unchanged.
func (s Slot) Shrink(factor float64) Slot {
	if factor <= 0 || factor >= 1 {
		return s
	}
	h := s.Height * factor
	return Slot{
		X:      s.X,
		Y:      s.Y + (s.Height-h)/2,
		Width:  s.Width,
		Height: h,
	}
}

// Rect rounds the slot outward to whole pixels
func (s Slot) Rect() image.Rectangle {
	return image.Rect(
		int(math.Floor(s.X)),
		int(math.Floor(s.Y)),
		int(math.Ceil(s.X+s.Width)),
		int(math.Ceil(s.Y+s.Height)),
	)
}

// Placement is where an image is drawn for a slot. It may extend past the
// slot on one axis; callers clip to the slot.
type Placement struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Rect rounds the placement to whole pixels
func (p Placement) Rect() image.Rectangle {
	x0 := int(math.Round(p.X))
	y0 := int(math.Round(p.Y))
	return image.Rect(x0, y0, x0+int(math.Round(p.Width)), y0+int(math.Round(p.Height)))
}

// Place cover-fits an image of the given size into slot, centered and
// undistorted. A relatively wider image is scaled to the slot height and
// overflows horizontally, otherwise it is scaled to the slot width and
// overflows vertically.
func Place(width, height int, slot Slot) Placement {
	if width <= 0 || height <= 0 || slot.Width <= 0 || slot.Height <= 0 {
		return Placement{X: slot.X, Y: slot.Y}
	}

	imageAspect := float64(width) / float64(height)
	if imageAspect > slot.Aspect() {
		drawH := slot.Height
		drawW := drawH * imageAspect
		return Placement{
			X:      slot.X + (slot.Width-drawW)/2,
			Y:      slot.Y,
			Width:  drawW,
			Height: drawH,
		}
	}

	drawW := slot.Width
	drawH := drawW / imageAspect
	return Placement{
		X:      slot.X,
		Y:      slot.Y + (slot.Height-drawH)/2,
		Width:  drawW,
		Height: drawH,
	}
}

// Strip geometry shared by the built-in tables
const (
	OuterMargin  = 40
	InnerMargin  = 40
	FooterHeight = 220
	PhotoGap     = 30
)

// Layout is a named slot table for a canvas size
type Layout struct {
	Name  string
	Slots []Slot
}

// Builder produces a slot table for a canvas size
type Builder func(width, height int) []Slot

var builders = map[string]Builder{
	"strip4": Strip4,
	"grid8":  Grid8,
}

// Names lists the registered layouts
func Names() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ByName builds the named layout for a canvas
func ByName(name string, width, height int) (Layout, error) {
	build, ok := builders[name]
	if !ok {
		return Layout{}, fmt.Errorf("unknown layout %q", name)
	}
	return Layout{Name: name, Slots: build(width, height)}, nil
}

// contentBox returns the framed area above the footer
func contentBox(width, height int) (x, top, w, h float64) {
	x = OuterMargin + InnerMargin
	top = OuterMargin + InnerMargin
	bottom := float64(height) - OuterMargin - InnerMargin - FooterHeight
	return x, top, float64(width) - 2*x, bottom - top
}

// Strip4 is a single column of four photos above a footer
func Strip4(width, height int) []Slot {
	return column(width, height, 1, 4)
}

// Grid8 is two columns of four photos above a footer
func Grid8(width, height int) []Slot {
	return column(width, height, 2, 4)
}

func column(width, height, cols, rows int) []Slot {
	x, top, w, h := contentBox(width, height)
	photoW := (w - PhotoGap*float64(cols-1)) / float64(cols)
	photoH := (h - PhotoGap*float64(rows-1)) / float64(rows)

	slots := make([]Slot, 0, cols*rows)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			slots = append(slots, Slot{
				X:      x + float64(c)*(photoW+PhotoGap),
				Y:      top + float64(r)*(photoH+PhotoGap),
				Width:  photoW,
				Height: photoH,
			})
		}
	}
	return slots
}
