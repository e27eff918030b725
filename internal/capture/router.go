package capture

import (
	"fmt"
	"image"

	"github.com/bryanchriswhite/photobooth/internal/config"
	"github.com/bryanchriswhite/photobooth/internal/logger"
)

// NewSource builds the video source selected by cfg.Source
func NewSource(cfg config.CameraConfig) (VideoSource, error) {
	log := logger.WithComponent("capture-router")

	switch cfg.Source {
	case config.SourceGStreamer, "":
		log.Info().Str("device", cfg.Device).Msg("Using GStreamer camera source")
		return NewGStreamerSource(cfg.Device, Resolution{Width: cfg.Width, Height: cfg.Height}, cfg.FPS), nil
	case config.SourceX11:
		log.Info().Msg("Using X11 screen source")
		region := image.Rectangle{}
		if cfg.Width > 0 && cfg.Height > 0 {
			region = image.Rect(0, 0, cfg.Width, cfg.Height)
		}
		return NewX11Source(region), nil
	case config.SourceStatic:
		if cfg.StaticImage != "" {
			log.Info().Str("path", cfg.StaticImage).Msg("Using static image source")
			return NewStaticSourceFromFile(cfg.StaticImage)
		}
		log.Info().Msg("Using test pattern source")
		width, height := cfg.Width, cfg.Height
		if width <= 0 || height <= 0 {
			width, height = FallbackWidth, FallbackHeight
		}
		return NewTestPattern(width, height), nil
	default:
		return nil, fmt.Errorf("unknown camera source %q", cfg.Source)
	}
}
