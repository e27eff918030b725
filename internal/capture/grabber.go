package capture

import (
	"image"

	"github.com/bryanchriswhite/photobooth/internal/apperr"
	"github.com/bryanchriswhite/photobooth/internal/logger"
	"github.com/bryanchriswhite/photobooth/internal/photo"
	xdraw "golang.org/x/image/draw"
)

// Fallback raster size used only when a ready source cannot report its
// native dimensions.
const (
	FallbackWidth  = 640
	FallbackHeight = 480
)

// Grabber snapshots a VideoSource into stills
type Grabber struct {
	registry *photo.Registry
}

// NewGrabber creates a grabber. When registry is non-nil every still is
// registered and carries a temporary handle.
func NewGrabber(registry *photo.Registry) *Grabber {
	return &Grabber{registry: registry}
}

// Grab reads the source's current frame into a still at the source's native
// resolution. The source is only read.
func (g *Grabber) Grab(src VideoSource) (*photo.StillImage, error) {
	if src == nil || !src.IsReady() {
		return nil, apperr.ErrSourceNotReady
	}

	log := logger.WithComponent("grabber")

	width, height := src.NativeSize()
	if width <= 0 || height <= 0 {
		log.Warn().
			Str("source", src.Name()).
			Int("width", FallbackWidth).
			Int("height", FallbackHeight).
			Msg("Native size unavailable, using fallback raster size")
		width, height = FallbackWidth, FallbackHeight
	}

	frame, err := src.Frame()
	if err != nil {
		return nil, apperr.Wrap(apperr.KindCaptureFailed, "read frame from "+src.Name(), err)
	}
	if frame == nil || frame.Bounds().Empty() {
		return nil, apperr.New(apperr.KindCaptureFailed, "empty frame from "+src.Name())
	}

	raster := image.NewRGBA(image.Rect(0, 0, width, height))
	fb := frame.Bounds()
	if fb.Dx() == width && fb.Dy() == height {
		xdraw.Copy(raster, image.Point{}, frame, fb, xdraw.Src, nil)
	} else {
		xdraw.ApproxBiLinear.Scale(raster, raster.Bounds(), frame, fb, xdraw.Src, nil)
	}

	still := photo.New(raster)
	still.Source = src.Name()
	if g.registry != nil {
		still = g.registry.Register(still)
	}

	log.Debug().
		Str("source", src.Name()).
		Int("width", width).
		Int("height", height).
		Str("handle", still.Handle).
		Msg("Grabbed frame")
	return still, nil
}
