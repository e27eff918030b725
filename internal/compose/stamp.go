package compose

import (
	"image/color"
	"sync"

	"github.com/bryanchriswhite/photobooth/internal/logger"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

var (
	fontsOnce   sync.Once
	boldFont    *opentype.Font
	regularFont *opentype.Font
)

func loadFonts() {
	fontsOnce.Do(func() {
		var err error
		if boldFont, err = opentype.Parse(gobold.TTF); err != nil {
			logger.WithComponent("compose").Warn().Err(err).Msg("Failed to parse bold font, falling back to basicfont")
		}
		if regularFont, err = opentype.Parse(goregular.TTF); err != nil {
			logger.WithComponent("compose").Warn().Err(err).Msg("Failed to parse regular font, falling back to basicfont")
		}
	})
}

// NewFace returns a face of the given pixel size, or the fixed 7x13 face
// when the vector font is unavailable
func NewFace(bold bool, size float64) font.Face {
	loadFonts()
	f := regularFont
	if bold {
		f = boldFont
	}
	if f == nil || size <= 0 {
		return basicfont.Face7x13
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return basicfont.Face7x13
	}
	return face
}

// stampText draws a shadowed line of text. Alignment is relative to x:
// -1 right-aligns, 0 centers, 1 left-aligns.
func stampText(c *Canvas, face font.Face, text string, x, baseline, align int, fill color.RGBA, shadow *Shadow) {
	w := MeasureText(face, text)
	switch {
	case align < 0:
		x -= w
	case align == 0:
		x -= w / 2
	}
	c.With(func(c *Canvas) {
		c.SetFill(fill)
		c.SetShadow(shadow)
		c.DrawText(face, text, x, baseline)
	})
}
