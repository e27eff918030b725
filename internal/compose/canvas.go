package compose

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/bryanchriswhite/photobooth/internal/photo"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	xdraw "golang.org/x/image/draw"
)

// Shadow is a drop shadow applied to text draws
type Shadow struct {
	Color   color.RGBA
	OffsetX int
	OffsetY int
	Blur    int
}

// state is the mutable drawing context saved and restored as a unit
type state struct {
	clip   image.Rectangle
	fill   color.RGBA
	shadow *Shadow
}

// Canvas is an RGBA raster with a scoped drawing state. Clip, fill and
// shadow changes made inside With do not leak out of it.
type Canvas struct {
	img     *image.RGBA
	cur     state
	stack   []state
	tainted bool
}

// NewCanvas allocates a canvas filled with transparent black
func NewCanvas(width, height int) (*Canvas, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid canvas size %dx%d", width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	return &Canvas{
		img: img,
		cur: state{clip: img.Bounds(), fill: color.RGBA{0, 0, 0, 255}},
	}, nil
}

// Image returns the backing raster
func (c *Canvas) Image() *image.RGBA { return c.img }

// Bounds returns the full canvas rectangle
func (c *Canvas) Bounds() image.Rectangle { return c.img.Bounds() }

// Tainted reports whether cross-origin pixels were drawn without permission
func (c *Canvas) Tainted() bool { return c.tainted }

// Save pushes the drawing state
func (c *Canvas) Save() {
	c.stack = append(c.stack, c.cur)
}

// Restore pops the drawing state. Unbalanced calls are ignored.
func (c *Canvas) Restore() {
	if len(c.stack) == 0 {
		return
	}
	c.cur = c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
}

// Depth returns the number of saved states
func (c *Canvas) Depth() int { return len(c.stack) }

// With runs fn between Save and Restore
func (c *Canvas) With(fn func(*Canvas)) {
	c.Save()
	defer c.Restore()
	fn(c)
}

// Clip narrows the clip region to r
func (c *Canvas) Clip(r image.Rectangle) {
	c.cur.clip = c.cur.clip.Intersect(r)
}

// ClipRect returns the current clip region
func (c *Canvas) ClipRect() image.Rectangle { return c.cur.clip }

// SetFill sets the color used by FillRect and DrawText
func (c *Canvas) SetFill(col color.RGBA) { c.cur.fill = col }

// SetShadow sets the text shadow; nil disables it
func (c *Canvas) SetShadow(s *Shadow) { c.cur.shadow = s }

// target is the backing raster restricted to the clip
func (c *Canvas) target() *image.RGBA {
	return c.img.SubImage(c.cur.clip).(*image.RGBA)
}

// FillRect replaces the pixels of r with the fill color
func (c *Canvas) FillRect(r image.Rectangle) {
	r = r.Intersect(c.cur.clip)
	if r.Empty() {
		return
	}
	draw.Draw(c.img, r, &image.Uniform{c.cur.fill}, image.Point{}, draw.Src)
}

// FillFunc replaces the pixels of r with colors computed per pixel
func (c *Canvas) FillFunc(r image.Rectangle, f func(x, y int) color.RGBA) {
	r = r.Intersect(c.cur.clip)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c.img.SetRGBA(x, y, f(x, y))
		}
	}
}

// BlendFunc composites per-pixel premultiplied colors over r
func (c *Canvas) BlendFunc(r image.Rectangle, f func(x, y int) color.RGBA) {
	r = r.Intersect(c.cur.clip)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			src := f(x, y)
			if src.A == 0 {
				continue
			}
			dst := c.img.RGBAAt(x, y)
			keep := 255 - uint32(src.A)
			over := func(s, d uint8) uint8 {
				return uint8(uint32(s) + (uint32(d)*keep+127)/255)
			}
			c.img.SetRGBA(x, y, color.RGBA{over(src.R, dst.R), over(src.G, dst.G), over(src.B, dst.B), over(src.A, dst.A)})
		}
	}
}

// DrawImage scales img into dst, composited over the canvas and clipped.
// dst may extend past the clip region.
func (c *Canvas) DrawImage(img *photo.StillImage, dst image.Rectangle) {
	if img == nil || img.Pixels == nil || dst.Empty() {
		return
	}
	if img.Tainted {
		c.tainted = true
	}
	if dst.Intersect(c.cur.clip).Empty() {
		return
	}
	src := img.Pixels
	if dst.Dx() == src.Bounds().Dx() && dst.Dy() == src.Bounds().Dy() {
		xdraw.Draw(c.target(), dst, src, src.Bounds().Min, xdraw.Over)
		return
	}
	xdraw.CatmullRom.Scale(c.target(), dst, src, src.Bounds(), xdraw.Over, nil)
}

// MeasureText returns the advance width of s in pixels
func MeasureText(face font.Face, s string) int {
	return font.MeasureString(face, s).Ceil()
}

// DrawText draws s with its baseline origin at (x, y) using the fill color,
// preceded by the shadow when one is set.
func (c *Canvas) DrawText(face font.Face, s string, x, y int) {
	if s == "" {
		return
	}
	pad := 0
	if c.cur.shadow != nil {
		pad = c.cur.shadow.Blur
	}
	mask, mr := textMask(face, s, pad)
	if mask == nil {
		return
	}
	dst := c.target()

	if sh := c.cur.shadow; sh != nil {
		shadowMask := mask
		if sh.Blur > 0 {
			shadowMask = boxBlur(mask, sh.Blur)
		}
		at := mr.Add(image.Pt(x+sh.OffsetX, y+sh.OffsetY))
		draw.DrawMask(dst, at, &image.Uniform{sh.Color}, image.Point{}, shadowMask, mr.Min, draw.Over)
	}
	draw.DrawMask(dst, mr.Add(image.Pt(x, y)), &image.Uniform{c.cur.fill}, image.Point{}, mask, mr.Min, draw.Over)
}

// textMask renders s into an alpha mask in dot-relative coordinates
func textMask(face font.Face, s string, pad int) (*image.Alpha, image.Rectangle) {
	bounds, _ := font.BoundString(face, s)
	r := image.Rect(
		bounds.Min.X.Floor()-pad,
		bounds.Min.Y.Floor()-pad,
		bounds.Max.X.Ceil()+pad,
		bounds.Max.Y.Ceil()+pad,
	)
	if r.Empty() {
		return nil, r
	}
	mask := image.NewAlpha(r)
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.Point26_6{},
	}
	d.DrawString(s)
	return mask, r
}

// boxBlur returns a copy of m blurred with a square kernel of the given radius
func boxBlur(m *image.Alpha, radius int) *image.Alpha {
	b := m.Bounds()
	w, h := b.Dx(), b.Dy()
	tmp := make([]int, w*h)
	out := image.NewAlpha(b)
	span := 2*radius + 1

	for y := 0; y < h; y++ {
		sum := 0
		for x := -radius; x <= radius; x++ {
			sum += alphaAt(m, b, x, y)
		}
		for x := 0; x < w; x++ {
			tmp[y*w+x] = sum / span
			sum += alphaAt(m, b, x+radius+1, y) - alphaAt(m, b, x-radius, y)
		}
	}
	for x := 0; x < w; x++ {
		sum := 0
		for y := -radius; y <= radius; y++ {
			if y >= 0 && y < h {
				sum += tmp[y*w+x]
			}
		}
		for y := 0; y < h; y++ {
			out.Pix[y*out.Stride+x] = uint8(sum / span)
			if n := y + radius + 1; n < h {
				sum += tmp[n*w+x]
			}
			if o := y - radius; o >= 0 {
				sum -= tmp[o*w+x]
			}
		}
	}
	return out
}

func alphaAt(m *image.Alpha, b image.Rectangle, x, y int) int {
	if x < 0 || x >= b.Dx() {
		return 0
	}
	return int(m.Pix[y*m.Stride+x])
}
