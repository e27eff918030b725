// Package compose rasterizes selected photos, a themed background, an
// optional overlay graphic and text stamps into one output image.
package compose

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/layout"
	"github.com/bryanchriswhite/photobooth/internal/loader"
	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/bryanchriswhite/photobooth/internal/photo"
	"github.com/bryanchriswhite/photobooth/internal/theme"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const overlayCacheSize = 16

// Decoration geometry in canvas pixels
const (
	frameRadius = 40
	frameStroke = 18
	glossAlpha  = 0.22
	slotRadius  = 24
	slotStroke  = 8
)

var (
	frameStrokeColor = color.RGBA{A: 38} // 15% black
	slotStrokeColor  = color.RGBA{A: 20} // 8% black
)

// Options configures the output canvas and text layers
type Options struct {
	Width  int
	Height int
	// Shrink scales each slot's height before fitting and clipping
	Shrink    float64
	StampDate bool
	// Decorate adds the inner border, top gloss and slot outlines
	Decorate   bool
	DateFormat string
	Caption    string
	// Now supplies the stamped date; defaults to time.Now
	Now func() time.Time
}

// SlotOutcome reports what happened to one slot
type SlotOutcome struct {
	Index int
	Ref   string
	Drawn bool
	Err   error
}

// Result is a finished composite
type Result struct {
	Canvas  *Canvas
	Theme   theme.FrameTheme
	Slots   []SlotOutcome
	Overlay bool
}

// Drawn counts the populated slots
func (r *Result) Drawn() int {
	n := 0
	for _, s := range r.Slots {
		if s.Drawn {
			n++
		}
	}
	return n
}

// Tainted reports whether the canvas may not be exported
func (r *Result) Tainted() bool {
	return r.Canvas.Tainted()
}

// Renderer composes frames
type Renderer struct {
	loader   *loader.Loader
	catalog  *theme.Catalog
	opts     Options
	overlays *lru.Cache[string, *photo.StillImage]
	log      zerolog.Logger
}

// NewRenderer creates a renderer
func NewRenderer(l *loader.Loader, catalog *theme.Catalog, opts Options) *Renderer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DateFormat == "" {
		opts.DateFormat = "2006-01-02"
	}
	if catalog == nil {
		catalog = theme.NewCatalog("", nil)
	}
	cache, _ := lru.New[string, *photo.StillImage](overlayCacheSize)
	return &Renderer{
		loader:   l,
		catalog:  catalog,
		opts:     opts,
		overlays: cache,
		log:      *logger.WithComponent("compose"),
	}
}

// Options returns the renderer's canvas options
func (r *Renderer) Options() Options { return r.opts }

// Catalog returns the theme catalog
func (r *Renderer) Catalog() *theme.Catalog { return r.catalog }

// drawOp is one buffered layer of the composite
type drawOp struct {
	name string
	fn   func(*Canvas)
}

// Compose renders refs into slots under the named theme. Failed loads leave
// their slot showing the background and a missing overlay is skipped; the
// only errors are an invalid canvas size or ctx ending.
func (r *Renderer) Compose(ctx context.Context, refs []string, themeName string, slots []layout.Slot) (*Result, error) {
	canvas, err := NewCanvas(r.opts.Width, r.opts.Height)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	th := r.catalog.Resolve(themeName)
	log := r.log.With().Str("theme", th.Name).Int("refs", len(refs)).Logger()

	if len(refs) > len(slots) {
		log.Warn().Int("slots", len(slots)).Msg("More photos than slots, extra photos ignored")
		refs = refs[:len(slots)]
	}

	paintBackground(canvas, th)

	// Scatter both loads, gather before any photo or overlay is drawn
	var (
		results []loader.Result
		overlay *photo.StillImage
		g       errgroup.Group
	)
	g.Go(func() error {
		results = r.loader.LoadAll(ctx, refs)
		return nil
	})
	g.Go(func() error {
		overlay = r.loadOverlay(ctx, th.Name)
		return nil
	})
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("compose canceled: %w", err)
	}

	res := &Result{
		Canvas:  canvas,
		Theme:   th,
		Slots:   make([]SlotOutcome, len(slots)),
		Overlay: overlay != nil,
	}
	for i := range res.Slots {
		res.Slots[i].Index = i
	}

	var ops []drawOp
	if r.opts.Decorate {
		ops = append(ops, r.frameOp())
	}
	if overlay != nil && th.OverlayPosition == theme.Below {
		ops = append(ops, r.overlayOp(overlay))
	}
	for i, lr := range results {
		res.Slots[i].Ref = refs[i]
		if !lr.OK() {
			res.Slots[i].Err = lr.Err
			continue
		}
		res.Slots[i].Drawn = true
		ops = append(ops, r.slotOp(lr.Image, slots[i]))
	}
	if r.opts.Decorate {
		ops = append(ops, r.outlineOp(slots))
	}
	if overlay != nil && th.OverlayPosition == theme.Above {
		ops = append(ops, r.overlayOp(overlay))
	}
	if op, ok := r.captionOp(th); ok {
		ops = append(ops, op)
	}
	if op, ok := r.dateOp(th); ok {
		ops = append(ops, op)
	}

	for _, op := range ops {
		log.Debug().Str("layer", op.name).Msg("Drawing layer")
		canvas.With(op.fn)
	}

	log.Info().
		Int("drawn", res.Drawn()).
		Int("slots", len(slots)).
		Bool("overlay", res.Overlay).
		Bool("tainted", canvas.Tainted()).
		Msg("Composite rendered")
	return res, nil
}

func (r *Renderer) loadOverlay(ctx context.Context, name string) *photo.StillImage {
	path := r.catalog.OverlayPath(name)
	if img, ok := r.overlays.Get(path); ok {
		return img
	}
	img, err := r.loader.Load(ctx, path)
	if err != nil {
		r.log.Debug().Str("path", path).Msg("No overlay for theme, continuing without")
		return nil
	}
	r.overlays.Add(path, img)
	return img
}

func (r *Renderer) overlayOp(overlay *photo.StillImage) drawOp {
	return drawOp{name: "overlay", fn: func(c *Canvas) {
		c.DrawImage(overlay, c.Bounds())
	}}
}

func (r *Renderer) slotOp(img *photo.StillImage, slot layout.Slot) drawOp {
	fitted := slot.Shrink(r.opts.Shrink)
	return drawOp{name: "slot", fn: func(c *Canvas) {
		c.Clip(fitted.Rect())
		c.DrawImage(img, layout.Place(img.Width, img.Height, fitted).Rect())
	}}
}

// frameOp strokes the inner border and lays a white gloss over the top of
// the frame
func (r *Renderer) frameOp() drawOp {
	w, h := float64(r.opts.Width), float64(r.opts.Height)
	inset := float64(layout.OuterMargin) + frameStroke/2
	border := roundedRect{x: inset, y: inset, w: w - 2*inset, h: h - 2*inset, r: frameRadius - 6}

	top := float64(layout.OuterMargin)
	fadeEnd := h * 0.4
	gloss := roundedRect{x: top + 6, y: top + 6, w: w - 2*(top+6), h: h * 0.35, r: frameRadius - 10}
	shine := func(x, y int) color.RGBA {
		t := clamp01((float64(y) + 0.5 - top) / (fadeEnd - top))
		v := uint8(255 * glossAlpha * (1 - t))
		return color.RGBA{v, v, v, v}
	}

	return drawOp{name: "frame", fn: func(c *Canvas) {
		strokeRoundedRect(c, border, frameStroke, frameStrokeColor)
		fillRoundedRect(c, gloss, shine)
	}}
}

// outlineOp strokes every slot, filled or not, around its clip rectangle
func (r *Renderer) outlineOp(slots []layout.Slot) drawOp {
	return drawOp{name: "outline", fn: func(c *Canvas) {
		for _, slot := range slots {
			s := slot.Shrink(r.opts.Shrink)
			strokeRoundedRect(c, roundedRect{x: s.X, y: s.Y, w: s.Width, h: s.Height, r: slotRadius}, slotStroke, slotStrokeColor)
		}
	}}
}

func (r *Renderer) captionOp(th theme.FrameTheme) (drawOp, bool) {
	if r.opts.Caption == "" {
		return drawOp{}, false
	}
	w, h := r.opts.Width, r.opts.Height
	size := float64(w) * 0.084
	baseline := h - layout.OuterMargin - 80 + int(size*0.35)
	return drawOp{name: "caption", fn: func(c *Canvas) {
		face := NewFace(true, size)
		shadow := &Shadow{Color: th.Shadow(), OffsetY: max(1, int(size/20)), Blur: max(1, int(size/8))}
		stampText(c, face, r.opts.Caption, w/2, baseline, 0, th.Text(), shadow)
	}}, true
}

func (r *Renderer) dateOp(th theme.FrameTheme) (drawOp, bool) {
	if !r.opts.StampDate {
		return drawOp{}, false
	}
	text := r.opts.Now().Format(r.opts.DateFormat)
	w, h := r.opts.Width, r.opts.Height
	size := float64(w) * 0.036
	x := w - layout.OuterMargin - layout.InnerMargin
	baseline := h - layout.OuterMargin - int(size*0.5)
	return drawOp{name: "date", fn: func(c *Canvas) {
		face := NewFace(false, size)
		shadow := &Shadow{Color: th.Shadow(), OffsetX: 2, OffsetY: 2, Blur: 2}
		stampText(c, face, text, x, baseline, -1, th.Text(), shadow)
	}}, true
}

// SlotRect returns the clip rectangle used for a slot
func (r *Renderer) SlotRect(slot layout.Slot) image.Rectangle {
	return slot.Shrink(r.opts.Shrink).Rect()
}
