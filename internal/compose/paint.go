package compose

import (
	"image"
	"image/color"
	"math"

	"github.com/bryanchriswhite/photobooth/internal/theme"
)

// paintBackground fills the canvas with the theme's gradient, or its flat
// background color when it has none
func paintBackground(c *Canvas, th theme.FrameTheme) {
	b := c.Bounds()
	offsets, colors := th.Gradient.StopColors()
	if len(colors) < 2 {
		c.SetFill(th.Background())
		c.FillRect(b)
		return
	}

	w, h := float64(b.Dx()), float64(b.Dy())
	var at func(x, y int) float64
	switch th.Gradient.Type {
	case "radial":
		cx, cy := w/2, h/2
		inner, outer := w*0.2, h/1.2
		at = func(x, y int) float64 {
			d := math.Hypot(float64(x)+0.5-cx, float64(y)+0.5-cy)
			return (d - inner) / (outer - inner)
		}
	default:
		// diagonal from the top-left corner to the bottom-right corner
		norm := w*w + h*h
		at = func(x, y int) float64 {
			return ((float64(x)+0.5)*w + (float64(y)+0.5)*h) / norm
		}
	}

	c.FillFunc(b, func(x, y int) color.RGBA {
		return interpolate(offsets, colors, at(x, y))
	})
}

// interpolate samples a gradient at t, clamping outside the stops
func interpolate(offsets []float64, colors []color.RGBA, t float64) color.RGBA {
	if t <= offsets[0] {
		return colors[0]
	}
	last := len(offsets) - 1
	if t >= offsets[last] {
		return colors[last]
	}
	for i := 1; i <= last; i++ {
		if t > offsets[i] {
			continue
		}
		span := offsets[i] - offsets[i-1]
		if span <= 0 {
			return colors[i]
		}
		f := (t - offsets[i-1]) / span
		return lerp(colors[i-1], colors[i], f)
	}
	return colors[last]
}

func lerp(a, b color.RGBA, f float64) color.RGBA {
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*f))
	}
	return color.RGBA{R: mix(a.R, b.R), G: mix(a.G, b.G), B: mix(a.B, b.B), A: mix(a.A, b.A)}
}


// roundedRect is an axis-aligned rectangle with circular corners
type roundedRect struct {
	x, y, w, h, r float64
}

func (rr roundedRect) empty() bool { return rr.w <= 0 || rr.h <= 0 }

// dist is the signed distance from the center of pixel (x, y) to the
// outline, negative inside
func (rr roundedRect) dist(x, y int) float64 {
	r := math.Max(0, math.Min(rr.r, math.Min(rr.w/2, rr.h/2)))
	qx := math.Abs(float64(x)+0.5-(rr.x+rr.w/2)) - (rr.w/2 - r)
	qy := math.Abs(float64(y)+0.5-(rr.y+rr.h/2)) - (rr.h/2 - r)
	return math.Hypot(math.Max(qx, 0), math.Max(qy, 0)) + math.Min(math.Max(qx, qy), 0) - r
}

func (rr roundedRect) bounds(pad float64) image.Rectangle {
	return image.Rect(
		int(math.Floor(rr.x-pad)), int(math.Floor(rr.y-pad)),
		int(math.Ceil(rr.x+rr.w+pad)), int(math.Ceil(rr.y+rr.h+pad)),
	)
}

// fillRoundedRect blends f over the inside of rr with antialiased edges
func fillRoundedRect(c *Canvas, rr roundedRect, f func(x, y int) color.RGBA) {
	if rr.empty() {
		return
	}
	c.BlendFunc(rr.bounds(1), func(x, y int) color.RGBA {
		return fade(f(x, y), clamp01(0.5-rr.dist(x, y)))
	})
}

// strokeRoundedRect blends a line of the given width centered on rr's outline
func strokeRoundedRect(c *Canvas, rr roundedRect, width float64, col color.RGBA) {
	if rr.empty() {
		return
	}
	half := width / 2
	c.BlendFunc(rr.bounds(half+1), func(x, y int) color.RGBA {
		return fade(col, clamp01(half+0.5-math.Abs(rr.dist(x, y))))
	})
}

// fade scales a premultiplied color by a
func fade(c color.RGBA, a float64) color.RGBA {
	if a >= 1 {
		return c
	}
	m := func(v uint8) uint8 { return uint8(math.Round(float64(v) * a)) }
	return color.RGBA{m(c.R), m(c.G), m(c.B), m(c.A)}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
