// Package photo defines the still image type shared by capture, loading and
// compositing, plus the registry of temporary handles that refer to stills
// held in memory.
package photo

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"
)

// StillImage is a decoded raster. It is never mutated after creation.
type StillImage struct {
	// Handle is the temporary reference under which the image is registered,
	// empty for images that were never registered.
	Handle string
	Width  int
	Height int
	Pixels *image.RGBA
	// Tainted marks pixels fetched cross-origin without permission.
	Tainted bool
	// Source is the reference the image was resolved from.
	Source string
}

// New wraps an RGBA raster. The raster is re-based to a zero origin.
func New(img *image.RGBA) *StillImage {
	if img == nil {
		return nil
	}
	b := img.Bounds()
	if b.Min != (image.Point{}) {
		rebased := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		for y := 0; y < b.Dy(); y++ {
			copy(rebased.Pix[y*rebased.Stride:y*rebased.Stride+b.Dx()*4], img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		img = rebased
	}
	return &StillImage{
		Width:  b.Dx(),
		Height: b.Dy(),
		Pixels: img,
	}
}

// Aspect returns width/height, or 0 for an empty image.
func (s *StillImage) Aspect() float64 {
	if s == nil || s.Height == 0 {
		return 0
	}
	return float64(s.Width) / float64(s.Height)
}

// Bounds implements the dimension half of image.Image.
func (s *StillImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.Width, s.Height)
}

// EncodePNG encodes the still as PNG.
func (s *StillImage) EncodePNG() ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, s.Pixels); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// DataURLPrefix prefixes inline PNG references.
const DataURLPrefix = "data:image/png;base64,"

// DataURL encodes the still as an inline PNG reference.
func (s *StillImage) DataURL() (string, error) {
	data, err := s.EncodePNG()
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.Grow(len(DataURLPrefix) + base64.StdEncoding.EncodedLen(len(data)))
	sb.WriteString(DataURLPrefix)
	sb.WriteString(base64.StdEncoding.EncodeToString(data))
	return sb.String(), nil
}
