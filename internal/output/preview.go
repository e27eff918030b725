package output

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/bryanchriswhite/photobooth/internal/capture"
	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/rs/zerolog"
	xdraw "golang.org/x/image/draw"
)

// Layer draws on top of a preview frame
type Layer interface {
	Render(img *image.RGBA)
}

// Preview pulls frames from the video source at a fixed rate, letterboxes
// them into the output size, draws the overlay layer and hands the result to
// an Output. It only reads the source; start and stop stay with the owner.
type Preview struct {
	source capture.VideoSource
	layer  Layer
	out    Output
	width  int
	height int
	fps    int
	log    zerolog.Logger
}

// NewPreview creates a preview loop. layer may be nil.
func NewPreview(source capture.VideoSource, layer Layer, out Output, cfg Config) *Preview {
	fps := cfg.FPS
	if fps <= 0 {
		fps = 10
	}
	return &Preview{
		source: source,
		layer:  layer,
		out:    out,
		width:  cfg.Width,
		height: cfg.Height,
		fps:    fps,
		log:    *logger.WithComponent("preview"),
	}
}

// Run renders frames until ctx is done. The output is started on entry and
// stopped on return.
func (p *Preview) Run(ctx context.Context) error {
	if err := p.out.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.out.Name(), err)
	}
	defer p.out.Stop()

	interval := time.Second / time.Duration(p.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.Info().
		Int("fps", p.fps).
		Dur("interval", interval).
		Str("source", p.source.Name()).
		Msg("Preview loop started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.step()
		}
	}
}

func (p *Preview) step() {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("Preview frame panicked")
		}
	}()
	if err := p.out.WriteFrame(p.Frame()); err != nil {
		p.log.Debug().Err(err).Msg("Failed to write preview frame")
	}
}

// Frame renders one preview frame. While the source has no picture the frame
// is black, so the overlay still shows.
func (p *Preview) Frame() *image.RGBA {
	frame := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	xdraw.Draw(frame, frame.Bounds(), image.NewUniform(color.Black), image.Point{}, xdraw.Src)

	if p.source.IsReady() {
		src, err := p.source.Frame()
		if err != nil {
			p.log.Debug().Err(err).Msg("Source frame unavailable")
		} else if src != nil {
			xdraw.ApproxBiLinear.Scale(frame, Letterbox(src.Bounds(), p.width, p.height), src, src.Bounds(), xdraw.Src, nil)
		}
	}

	if p.layer != nil {
		p.layer.Render(frame)
	}
	return frame
}

// Letterbox returns the largest rectangle with src's aspect ratio centered in
// a width x height box
func Letterbox(src image.Rectangle, width, height int) image.Rectangle {
	sw, sh := src.Dx(), src.Dy()
	if sw <= 0 || sh <= 0 || width <= 0 || height <= 0 {
		return image.Rectangle{}
	}
	scale := min(float64(width)/float64(sw), float64(height)/float64(sh))
	dw := int(float64(sw) * scale)
	dh := int(float64(sh) * scale)
	x := (width - dw) / 2
	y := (height - dh) / 2
	return image.Rect(x, y, x+dw, y+dh)
}
